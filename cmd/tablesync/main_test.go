package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/tablesync/internal/deltalog/deltatest"
	"github.com/openmined/tablesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRoot executes the full CLI with args and returns what it printed on stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// tableArgs points the CLI at the table through a config file so nothing
// from the user's home is picked up.
func tableArgs(t *testing.T, tb *deltatest.Table) []string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := map[string]any{
		"table_uri":    tb.Root,
		"journal_path": filepath.Join(dir, "journal.db"),
		"log_level":    "error",
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))
	return []string{"--config", cfgPath}
}

func millis(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

func newTestTable(t *testing.T) *deltatest.Table {
	tb := deltatest.NewTable(t)
	tb.Bootstrap()
	tb.Commit(deltatest.Add("region=eu/a.parquet", "eu"), deltatest.Add("region=us/b.parquet", "us"))
	return tb
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := &cobra.Command{Use: "tablesync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())

	got := strings.TrimSpace(out.String())
	require.Equal(t, version.Detailed(), got)
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := runRoot(t, "version", "--output", "json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.AppName, info.App)
	assert.Equal(t, version.Version, info.Version)

	_, err = runRoot(t, "version", "--output", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestParseInstant(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "millis", in: "1700000000000", want: time.UnixMilli(1_700_000_000_000).UTC()},
		{name: "rfc3339", in: "2023-11-14T22:13:20Z", want: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{name: "offset", in: "2023-11-14T23:13:20+01:00", want: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{name: "empty", in: " ", wantErr: true},
		{name: "garbage", in: "yesterday", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := parseInstant(test.in)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, test.want.Equal(got), "got %s", got)
		})
	}
}

func TestSnapshotCommand(t *testing.T) {
	tb := newTestTable(t)
	args := tableArgs(t, tb)

	out, err := runRoot(t, append([]string{"snapshot"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "events")
	assert.Contains(t, out, "region=eu/a.parquet")
	assert.Contains(t, out, "region=us/b.parquet")
	assert.Contains(t, out, "2 files")

	out, err = runRoot(t, append([]string{"snapshot", "--include", "region=eu/**"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "region=eu/a.parquet")
	assert.NotContains(t, out, "region=us/b.parquet")
	assert.Contains(t, out, "1 files")

	out, err = runRoot(t, append([]string{"snapshot", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var view snapshotView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "1", view.Commit)
	assert.Equal(t, 2, view.FileCount)
	assert.Equal(t, int64(2048), view.TotalBytes)
	assert.Equal(t, []string{"region"}, view.Table.PartitionColumns)
}

func TestTableCommand(t *testing.T) {
	tb := newTestTable(t)
	args := tableArgs(t, tb)

	out, err := runRoot(t, append([]string{"table", "-o", "yaml", "--version", "0"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "name: events")
	assert.Contains(t, out, "version: 0")
	assert.Contains(t, out, "path: region")
}

func TestBacklogAndChangesCommands(t *testing.T) {
	tb := newTestTable(t)
	tb.Commit(deltatest.Remove("region=eu/a.parquet", "eu"), deltatest.Add("region=eu/c.parquet", "eu"))
	args := tableArgs(t, tb)
	since := millis(deltatest.Epoch)

	out, err := runRoot(t, append([]string{"backlog", "--since", since, "-o", "json"}, args...)...)
	require.NoError(t, err)
	var backlog backlogView
	require.NoError(t, json.Unmarshal([]byte(out), &backlog))
	assert.Equal(t, []int64{1, 2}, backlog.Versions)

	out, err = runRoot(t, append([]string{"changes", "--since", since, "-o", "json"}, args...)...)
	require.NoError(t, err)
	var changes []changeView
	require.NoError(t, json.Unmarshal([]byte(out), &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, int64(2), changes[1].Version)
	require.Len(t, changes[1].Removed, 1)
	assert.True(t, strings.HasSuffix(changes[1].Removed[0].Path, "region=eu/a.parquet"))
	require.Len(t, changes[1].Added, 1)
	assert.True(t, strings.HasSuffix(changes[1].Added[0].Path, "region=eu/c.parquet"))

	out, err = runRoot(t, append([]string{"changes", "--since", since, "--include", "region=us/*"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")
	assert.Contains(t, out, "region=us/b.parquet")
	assert.NotContains(t, out, "region=eu/c.parquet")

	_, err = runRoot(t, append([]string{"changes"}, args...)...)
	assert.Error(t, err)
}

func TestSafeCommand(t *testing.T) {
	tb := newTestTable(t)
	args := tableArgs(t, tb)

	out, err := runRoot(t, append([]string{"safe", "--since", millis(deltatest.Epoch.Add(time.Minute)), "-o", "json"}, args...)...)
	require.NoError(t, err)
	var view safeView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.True(t, view.Safe)

	out, err = runRoot(t, append([]string{"safe", "--since", millis(deltatest.Epoch.Add(-time.Hour)), "-o", "json"}, args...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.False(t, view.Safe)
}

func TestSyncCommand(t *testing.T) {
	tb := newTestTable(t)
	args := tableArgs(t, tb)
	sync := func() syncResult {
		t.Helper()
		out, err := runRoot(t, append([]string{"sync", "-o", "json"}, args...)...)
		require.NoError(t, err)
		var res syncResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		return res
	}

	first := sync()
	assert.Equal(t, syncModeSnapshot, first.Mode)
	assert.Equal(t, int64(1), first.ToVersion)
	assert.Equal(t, 2, first.FilesAdded)
	assert.True(t, deltatest.Epoch.Add(time.Minute).Equal(first.LastSyncInstant))

	tb.Commit(deltatest.Remove("region=eu/a.parquet", "eu"), deltatest.Add("region=eu/c.parquet", "eu"))
	tb.Commit(deltatest.Add("region=us/d.parquet", "us"))

	second := sync()
	assert.Equal(t, syncModeIncremental, second.Mode)
	assert.Equal(t, int64(2), second.FromVersion)
	assert.Equal(t, int64(3), second.ToVersion)
	assert.Equal(t, 2, second.FilesAdded)
	assert.Equal(t, 1, second.FilesRemoved)
	assert.Equal(t, 0, second.Anomalies)

	third := sync()
	assert.Equal(t, syncModeUpToDate, third.Mode)
	assert.Equal(t, int64(3), third.ToVersion)

	out, err := runRoot(t, append([]string{"runs", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var status statusView
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.NotNil(t, status.LastVersion)
	assert.Equal(t, int64(3), *status.LastVersion)
	require.Len(t, status.Runs, 2)
	assert.Equal(t, int64(3), status.Runs[0].ToVersion)
}

func TestSyncCommand_Locked(t *testing.T) {
	tb := newTestTable(t)
	args := tableArgs(t, tb)

	sy, _, cleanup, err := openSyncerForTest(t, args)
	require.NoError(t, err)
	defer cleanup()
	require.True(t, sy.lock.Locked())

	_, err = runRoot(t, append([]string{"sync"}, args...)...)
	assert.ErrorIs(t, err, ErrSyncLocked)
}

// openSyncerForTest resolves the sync command's flags and opens a syncer the
// way the command does, keeping the journal locked until cleanup.
func openSyncerForTest(t *testing.T, args []string) (*syncer, *session, func(), error) {
	t.Helper()
	root := newRootCmd()
	syncCmd, rest, err := root.Find(append([]string{"sync"}, args...))
	require.NoError(t, err)
	require.NoError(t, syncCmd.ParseFlags(rest))
	return openSyncer(syncCmd)
}
