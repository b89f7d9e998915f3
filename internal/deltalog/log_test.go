package deltalog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/deltalog/deltatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Versions(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit(deltatest.Add("region=eu/a.parquet", "eu"))
	tb.Commit(deltatest.Add("region=us/b.parquet", "us"))

	log := tb.Log()
	ctx := context.Background()

	latest, err := log.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)

	h, err := log.History(ctx)
	require.NoError(t, err)
	earliest, err := h.Earliest()
	require.NoError(t, err)
	assert.Equal(t, int64(0), earliest.Version)

	_, err = log.CommitAt(ctx, 3)
	assert.ErrorIs(t, err, deltalog.ErrVersionNotFound)

	actions, err := log.ActionsForVersion(ctx, 1)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "region=eu/a.parquet", actions[0].(*deltalog.AddFile).Path)

	_, err = log.ActionsForVersion(ctx, 9)
	assert.ErrorIs(t, err, deltalog.ErrVersionNotFound)
}

func TestLog_EmptyLog(t *testing.T) {
	log := deltatest.NewTable(t).Log()
	_, err := log.LatestVersion(context.Background())
	assert.ErrorIs(t, err, deltalog.ErrEmptyLog)
}

func TestLog_MissingVersionInTheMiddle(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit()
	tb.Commit()
	tb.RemoveVersion(1)

	_, err := tb.Log().LatestVersion(context.Background())
	assert.ErrorIs(t, err, deltalog.ErrVersionNotFound)
}

func TestLog_CommitTimestamps(t *testing.T) {
	tb := deltatest.NewTable(t)
	t0 := deltatest.Epoch
	tb.CommitAt(t0, deltatest.Metadata())
	// same second: bumped by one millisecond
	tb.CommitAt(t0)
	tb.CommitAt(t0.Add(time.Second))

	ctx := context.Background()
	log := tb.Log()

	c1, err := log.CommitAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, t0.UnixMilli()+1, c1.Timestamp.UnixMilli())

	c, err := log.ActiveCommitAtOrBefore(ctx, t0.Add(500*time.Millisecond), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
}

func TestLog_InCommitTimestamps(t *testing.T) {
	tb := deltatest.NewTable(t)
	ict := deltatest.Epoch.Add(time.Hour).UnixMilli()
	tb.Bootstrap()
	tb.Commit(&deltalog.CommitInfo{Timestamp: ict, InCommitTimestamp: &ict})

	ctx := context.Background()

	c, err := tb.Log().CommitAt(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, ict, c.Timestamp.UnixMilli())

	c, err = tb.Log(deltalog.WithInCommitTimestamps()).CommitAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ict, c.Timestamp.UnixMilli())
}

func TestLog_IgnoresNonCommitFiles(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit()
	deltatest.WriteFile(t, tb.Root, "_delta_log/00000000000000000001.checkpoint.parquet", "PAR1")
	deltatest.WriteFile(t, tb.Root, "_delta_log/_last_checkpoint", `{"version":1}`)

	ctx := context.Background()
	log := tb.Log()

	latest, err := log.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)

	_, err = log.CommitAt(ctx, 1)
	require.NoError(t, err)
}

func TestLog_InvalidCommitFile(t *testing.T) {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	deltatest.WriteFile(t, tb.Root, deltalog.CommitFileKey(1), strings.Repeat("{", 3))

	_, err := tb.Log().ActionsForVersion(context.Background(), 1)
	assert.ErrorIs(t, err, deltalog.ErrInvalidCommitFile)
}
