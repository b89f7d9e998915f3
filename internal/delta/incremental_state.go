package delta

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/tablesync/internal/deltalog"
)

const DefaultStateCacheSize = 128

// IncrementalChangesState is one incremental sync session: the versions that
// follow the last synced commit, as of the moment the backlog was planned,
// and the actions already read for them.
type IncrementalChangesState struct {
	log          LogReader
	startVersion int64
	versions     []int64
	actions      *lru.Cache[int64, []deltalog.Action]

	// table state as of the last extracted version, advanced commit by commit
	snapshot *deltalog.Snapshot
}

func newIncrementalChangesState(ctx context.Context, log LogReader, startVersion int64, cacheSize int) (*IncrementalChangesState, error) {
	latest, err := log.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}

	versions := make([]int64, 0)
	for v := startVersion; v <= latest; v++ {
		versions = append(versions, v)
	}

	cache, err := lru.New[int64, []deltalog.Action](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("changes state cache: %w", err)
	}

	return &IncrementalChangesState{
		log:          log,
		startVersion: startVersion,
		versions:     versions,
		actions:      cache,
	}, nil
}

func (s *IncrementalChangesState) StartVersion() int64 {
	return s.startVersion
}

// Versions returns the pending versions in increasing order.
func (s *IncrementalChangesState) Versions() []int64 {
	return slices.Clone(s.versions)
}

func (s *IncrementalChangesState) Contains(version int64) bool {
	_, found := slices.BinarySearch(s.versions, version)
	return found
}

// ActionsForVersion returns the actions of a pending version.
func (s *IncrementalChangesState) ActionsForVersion(ctx context.Context, version int64) ([]deltalog.Action, error) {
	if !s.Contains(version) {
		return nil, fmt.Errorf("%w: %d (backlog starts at %d)", ErrVersionNotInBacklog, version, s.startVersion)
	}
	if actions, ok := s.actions.Get(version); ok {
		return actions, nil
	}

	actions, err := s.log.ActionsForVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	s.actions.Add(version, actions)
	return actions, nil
}

// SnapshotAt returns the table state as of a pending version. Walking the
// backlog in order replays the log once for the whole session.
func (s *IncrementalChangesState) SnapshotAt(ctx context.Context, version int64) (*deltalog.Snapshot, error) {
	if !s.Contains(version) {
		return nil, fmt.Errorf("%w: %d (backlog starts at %d)", ErrVersionNotInBacklog, version, s.startVersion)
	}
	if s.snapshot == nil || s.snapshot.Version > version {
		snap, err := s.log.SnapshotAt(ctx, version)
		if err != nil {
			return nil, err
		}
		s.snapshot = snap
		return snap, nil
	}

	for v := s.snapshot.Version + 1; v <= version; v++ {
		actions, err := s.ActionsForVersion(ctx, v)
		if err != nil {
			return nil, err
		}
		commit, err := s.log.CommitAt(ctx, v)
		if err != nil {
			return nil, err
		}
		if err := s.snapshot.Advance(commit, actions); err != nil {
			return nil, err
		}
	}
	return s.snapshot, nil
}

func (s *IncrementalChangesState) purge() {
	s.actions.Purge()
	s.versions = nil
	s.snapshot = nil
}
