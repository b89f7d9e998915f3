// Package deltalog reads a Delta Lake style transaction log: the ordered,
// append-only commit files under _delta_log and the table state they describe.
package deltalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/tablesync/internal/blob"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultActionCacheSize  = 512
	DefaultFetchConcurrency = 16
)

// Log is a read-only view over a table's transaction log. Committed versions
// are immutable, so parsed commits are cached and shared. Nothing about the
// latest version is cached: every call lists the log again.
type Log struct {
	client           blob.IBlobClient
	basePath         string
	actions          *lru.Cache[int64, []Action]
	cacheSize        int
	fetchConcurrency int
	inCommitTime     bool
}

type Option func(*Log)

// WithActionCacheSize sets how many parsed commits are kept in memory.
func WithActionCacheSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.cacheSize = n
		}
	}
}

// WithFetchConcurrency bounds the number of commit files fetched in parallel
// when replaying a snapshot.
func WithFetchConcurrency(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.fetchConcurrency = n
		}
	}
}

// WithInCommitTimestamps makes the history read commitInfo.inCommitTimestamp
// from every commit instead of relying on commit file modification times.
// Commits without one fall back to the modification time.
func WithInCommitTimestamps() Option {
	return func(l *Log) {
		l.inCommitTime = true
	}
}

func New(client blob.IBlobClient, basePath string, opts ...Option) (*Log, error) {
	if client == nil {
		return nil, fmt.Errorf("deltalog: blob client is nil")
	}

	l := &Log{
		client:           client,
		basePath:         strings.TrimSuffix(basePath, "/"),
		cacheSize:        DefaultActionCacheSize,
		fetchConcurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}

	cache, err := lru.New[int64, []Action](l.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("deltalog: action cache: %w", err)
	}
	l.actions = cache

	return l, nil
}

// BasePath is the table root that relative file paths in the log resolve against.
func (l *Log) BasePath() string {
	return l.basePath
}

// LatestVersion lists the log and returns the newest committed version.
func (l *Log) LatestVersion(ctx context.Context) (int64, error) {
	files, err := listCommitFiles(ctx, l.client)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, ErrEmptyLog
	}
	return files[len(files)-1].version, nil
}

// ActionsForVersion returns the actions of exactly one commit, in file order.
func (l *Log) ActionsForVersion(ctx context.Context, version int64) ([]Action, error) {
	if actions, ok := l.actions.Get(version); ok {
		return actions, nil
	}

	key := CommitFileKey(version)
	resp, err := l.client.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
		}
		return nil, fmt.Errorf("read commit %d: %w", version, err)
	}
	defer resp.Body.Close()

	actions, err := ParseActions(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("commit %d: %w", version, err)
	}

	l.actions.Add(version, actions)
	slog.Debug("deltalog commit loaded", "version", version, "actions", len(actions))
	return actions, nil
}

// History lists the log and resolves the timestamp of every commit.
func (l *Log) History(ctx context.Context) (*History, error) {
	files, err := listCommitFiles(ctx, l.client)
	if err != nil {
		return nil, err
	}

	versions := make([]int64, len(files))
	millis := make([]int64, len(files))
	for i, f := range files {
		versions[i] = f.version
		millis[i] = f.lastModified.UnixMilli()
	}

	if l.inCommitTime && len(files) > 0 {
		ict, err := l.fetchAll(ctx, versions)
		if err != nil {
			return nil, err
		}
		for i, actions := range ict {
			if ts, ok := inCommitTimestamp(actions); ok {
				millis[i] = ts
			}
		}
	}

	return newHistory(versions, millis), nil
}

func inCommitTimestamp(actions []Action) (int64, bool) {
	for _, a := range actions {
		if ci, ok := a.(*CommitInfo); ok && ci.InCommitTimestamp != nil {
			return *ci.InCommitTimestamp, true
		}
	}
	return 0, false
}

// CommitAt returns the commit of version with its resolved timestamp.
func (l *Log) CommitAt(ctx context.Context, version int64) (Commit, error) {
	h, err := l.History(ctx)
	if err != nil {
		return Commit{}, err
	}
	return h.CommitAt(version)
}

// ActiveCommitAtOrBefore resolves ts to the most recent commit at or before
// it. See History.ActiveCommitAtOrBefore.
func (l *Log) ActiveCommitAtOrBefore(ctx context.Context, ts time.Time, inclusive bool) (Commit, error) {
	h, err := l.History(ctx)
	if err != nil {
		return Commit{}, err
	}
	return h.ActiveCommitAtOrBefore(ts, inclusive)
}

// fetchAll loads the actions of every version concurrently. The result is
// indexed like versions.
func (l *Log) fetchAll(ctx context.Context, versions []int64) ([][]Action, error) {
	start := time.Now()
	results := make([][]Action, len(versions))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.fetchConcurrency)
	for i, v := range versions {
		eg.Go(func() error {
			actions, err := l.ActionsForVersion(egCtx, v)
			if err != nil {
				return err
			}
			results[i] = actions
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("deltalog commits fetched", "count", len(versions), "took", time.Since(start))
	return results, nil
}
