package delta

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/tablesync/internal/model"
)

// BacklogPlanner turns the instant of the last sync into the versions still
// to be processed.
type BacklogPlanner struct {
	log       LogReader
	cacheSize int
}

func NewBacklogPlanner(log LogReader, cacheSize int) *BacklogPlanner {
	if cacheSize <= 0 {
		cacheSize = DefaultStateCacheSize
	}
	return &BacklogPlanner{log: log, cacheSize: cacheSize}
}

// Plan resolves lastSyncInstant to the commit active at that instant and
// starts a new session at the version after it.
func (p *BacklogPlanner) Plan(ctx context.Context, lastSyncInstant time.Time) (*IncrementalChangesState, *model.CommitsBacklog, error) {
	commit, err := p.log.ActiveCommitAtOrBefore(ctx, lastSyncInstant, true)
	if err != nil {
		return nil, nil, err
	}

	state, err := newIncrementalChangesState(ctx, p.log, commit.Version+1, p.cacheSize)
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("commits backlog planned",
		"lastSyncInstant", lastSyncInstant,
		"activeVersion", commit.Version,
		"startVersion", state.StartVersion(),
		"pending", len(state.versions),
	)

	return state, &model.CommitsBacklog{CommitsToProcess: state.Versions()}, nil
}

// IsSafeFrom reports whether a commit exists at or before instant. Every
// commit carries both its additions and its removals, so that is the only
// condition for resuming from it.
func (p *BacklogPlanner) IsSafeFrom(ctx context.Context, instant time.Time) (bool, error) {
	commit, err := p.log.ActiveCommitAtOrBefore(ctx, instant, true)
	if err != nil {
		return false, err
	}
	ts := commit.Timestamp.UnixMilli()
	target := instant.UnixMilli()
	return ts == target || ts < target, nil
}
