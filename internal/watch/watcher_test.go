package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTableDir(t *testing.T) string {
	t.Helper()
	// tmpdir on macos is a symlink to /private/var
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, deltalog.LogDir), 0o755))
	return dir
}

func TestNew(t *testing.T) {
	w := New("/data/events")
	assert.Equal(t, filepath.Join("/data/events", "_delta_log"), w.LogDir())
	assert.Equal(t, DefaultDebounce, w.debounce)
	assert.True(t, w.filter("/data/events/_delta_log/00000000000000000001.crc"))
	assert.False(t, w.filter("/data/events/_delta_log/00000000000000000001.json"))
}

func TestLogWatcher_CoalescesCommits(t *testing.T) {
	dir := newTableDir(t)
	w := New(dir, WithDebounce(100*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	logDir := filepath.Join(dir, deltalog.LogDir)
	first := filepath.Join(logDir, "00000000000000000000.json")
	second := filepath.Join(logDir, "00000000000000000001.json")
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "00000000000000000000.crc"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(first, []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("{}\n"), 0o644))

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for !seen[first] || !seen[second] {
		select {
		case ev := <-w.Events():
			for _, p := range ev.Paths {
				assert.Equal(t, ".json", filepath.Ext(p))
				seen[p] = true
			}
		case <-deadline:
			require.FailNow(t, "timeout waiting for commit events", "seen %v", seen)
		}
	}
}

func TestLogWatcher_StopClosesEvents(t *testing.T) {
	dir := newTableDir(t)
	w := New(dir)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		require.FailNow(t, "events channel not closed")
	}
}

func TestLogWatcher_FlushOnStop(t *testing.T) {
	w := New("/unused", WithDebounce(time.Hour))
	w.events = make(chan Event, 1)
	w.schedule("/unused/_delta_log/00000000000000000004.json")

	w.mu.Lock()
	w.timer.Stop()
	w.flushLocked()
	w.closed = true
	w.mu.Unlock()

	ev := <-w.events
	assert.Equal(t, []string{"/unused/_delta_log/00000000000000000004.json"}, ev.Paths)

	// nothing is sent once closed
	w.schedule("/unused/_delta_log/00000000000000000005.json")
	w.flush()
	assert.Len(t, w.events, 0)
}
