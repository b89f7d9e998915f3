// Package watch turns filesystem notifications on a local table log into
// debounced "new commits" signals.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/rjeczalik/notify"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	eventBufferSize = 64
)

// Event lists the commit files that appeared or changed since the previous event.
type Event struct {
	Paths []string
	At    time.Time
}

// FilterFunc returns true for paths that should be ignored.
type FilterFunc func(path string) bool

type Option func(*LogWatcher)

func WithDebounce(d time.Duration) Option {
	return func(w *LogWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter replaces the default filter, which ignores everything but commit files.
func WithFilter(f FilterFunc) Option {
	return func(w *LogWatcher) {
		w.filter = f
	}
}

// LogWatcher watches the log directory of a local table. A writer producing
// a commit usually triggers a burst of create and write notifications, and
// several commits may land back to back; all of them are folded into one
// Event once the directory has been quiet for the debounce period.
type LogWatcher struct {
	logDir   string
	debounce time.Duration
	filter   FilterFunc

	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// New watches <tableDir>/_delta_log.
func New(tableDir string, opts ...Option) *LogWatcher {
	w := &LogWatcher{
		logDir:   filepath.Join(tableDir, deltalog.LogDir),
		debounce: DefaultDebounce,
		filter:   ignoreNonCommitFiles,
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func ignoreNonCommitFiles(path string) bool {
	return !deltalog.IsCommitFileName(filepath.Base(path))
}

func (w *LogWatcher) LogDir() string {
	return w.logDir
}

func (w *LogWatcher) Start(ctx context.Context) error {
	slog.Info("log watcher start", "dir", w.logDir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	if err := notify.Watch(w.logDir, w.rawEvents, notify.Create, notify.Write, notify.Rename); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch and closes the events channel after flushing a
// pending event. It is safe to call more than once.
func (w *LogWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.rawEvents != nil {
			notify.Stop(w.rawEvents)
		}
		w.wg.Wait()
		slog.Info("log watcher stopped", "dir", w.logDir)
	})
}

func (w *LogWatcher) Events() <-chan Event {
	return w.events
}

func (w *LogWatcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.flushLocked()
		w.closed = true
		close(w.events)
		w.mu.Unlock()
		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.filter != nil && w.filter(ev.Path()) {
				continue
			}
			w.schedule(ev.Path())
		}
	}
}

func (w *LogWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *LogWatcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked never blocks: a full channel drops the event.
func (w *LogWatcher) flushLocked() {
	if w.closed || len(w.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.timer = nil

	slices.Sort(paths)
	select {
	case w.events <- Event{Paths: paths, At: time.Now()}:
		slog.Debug("log watcher", "commits", len(paths))
	default:
		slog.Warn("log watcher dropped event", "reason", "channel full", "commits", len(paths))
	}
}
