package deltalog_test

import (
	"context"
	"testing"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/deltalog/deltatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filePaths(snap *deltalog.Snapshot) []string {
	var paths []string
	for _, f := range snap.Files() {
		paths = append(paths, f.FileKey())
	}
	return paths
}

func TestSnapshotAt(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit(deltatest.Add("region=eu/a.parquet", "eu"), deltatest.Add("region=us/b.parquet", "us"))
	tb.Commit(deltatest.Remove("region=eu/a.parquet", "eu"), deltatest.Add("region=eu/c.parquet", "eu"))
	dv := deltatest.InlineDV("mask-1")
	tb.Commit(deltatest.Remove("region=us/b.parquet", "us"), deltatest.AddWithDV("region=us/b.parquet", "us", dv))

	log := tb.Log(deltalog.WithFetchConcurrency(2))
	ctx := context.Background()

	snap, err := log.SnapshotAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, []string{"region=eu/a.parquet", "region=us/b.parquet"}, filePaths(snap))
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, []string{"region"}, snap.Metadata.PartitionColumns)
	require.NotNil(t, snap.Protocol)

	snap, err = log.SnapshotAt(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"region=eu/c.parquet", "region=us/b.parquet#imask-1"}, filePaths(snap))
	assert.Equal(t, 2, snap.NumFiles())

	// replay is a pure function of the version
	again, err := log.SnapshotAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"region=eu/a.parquet", "region=us/b.parquet"}, filePaths(again))
}

func TestSnapshotAt_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("version-beyond-latest", func(t *testing.T) {
		tb := deltatest.NewTable(t)
		tb.Bootstrap()
		_, err := tb.Log().SnapshotAt(ctx, 4)
		assert.ErrorIs(t, err, deltalog.ErrVersionNotFound)
	})

	t.Run("cleaned-up-log", func(t *testing.T) {
		tb := deltatest.NewTable(t)
		tb.Bootstrap()
		tb.Commit(deltatest.Add("region=eu/a.parquet", "eu"))
		tb.RemoveVersion(0)
		_, err := tb.Log().SnapshotAt(ctx, 1)
		assert.ErrorIs(t, err, deltalog.ErrSnapshotNotRecreatable)
	})

	t.Run("no-metadata", func(t *testing.T) {
		tb := deltatest.NewTable(t)
		tb.Commit(deltatest.Add("a.parquet", "eu"))
		_, err := tb.Log().SnapshotAt(ctx, 0)
		assert.ErrorIs(t, err, deltalog.ErrMissingMetadata)
	})

	t.Run("cancelled", func(t *testing.T) {
		tb := deltatest.NewTable(t)
		tb.Bootstrap()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := tb.Log().SnapshotAt(cctx, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSnapshot_Advance(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit(deltatest.Add("region=eu/a.parquet", "eu"))
	tb.Commit(deltatest.Remove("region=eu/a.parquet", "eu"), deltatest.Add("region=eu/c.parquet", "eu"))

	log := tb.Log()
	ctx := context.Background()

	snap, err := log.SnapshotAt(ctx, 1)
	require.NoError(t, err)

	actions, err := log.ActionsForVersion(ctx, 2)
	require.NoError(t, err)
	commit, err := log.CommitAt(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, snap.Advance(commit, actions))

	replayed, err := log.SnapshotAt(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, replayed.Version, snap.Version)
	assert.True(t, replayed.Timestamp.Equal(snap.Timestamp))
	assert.Equal(t, filePaths(replayed), filePaths(snap))

	// versions must be applied in order
	err = snap.Advance(commit, actions)
	assert.ErrorIs(t, err, deltalog.ErrVersionNotFound)
	assert.Equal(t, int64(2), snap.Version)
}
