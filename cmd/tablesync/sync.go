package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/tablesync/internal/delta"
	"github.com/openmined/tablesync/internal/journal"
	"github.com/openmined/tablesync/internal/utils"
)

var ErrSyncLocked = errors.New("another sync of this journal is running")

const (
	syncModeSnapshot    = "snapshot"
	syncModeIncremental = "incremental"
	syncModeUpToDate    = "up-to-date"
)

type syncResult struct {
	Mode            string    `json:"mode" yaml:"mode"`
	FromVersion     int64     `json:"fromVersion" yaml:"fromVersion"`
	ToVersion       int64     `json:"toVersion" yaml:"toVersion"`
	FilesAdded      int       `json:"filesAdded" yaml:"filesAdded"`
	FilesRemoved    int       `json:"filesRemoved" yaml:"filesRemoved"`
	Anomalies       int       `json:"anomalies" yaml:"anomalies"`
	LastSyncInstant time.Time `json:"lastSyncInstant" yaml:"lastSyncInstant"`
	Took            string    `json:"took" yaml:"took"`
}

// syncer advances the journaled progress of one table to its latest version,
// incrementally when the journal allows it and from a full snapshot otherwise.
type syncer struct {
	tableURI  string
	journal   *journal.Journal
	lock      *flock.Flock
	source    *delta.ConversionSource
	anomalies int
}

func (s *syncer) onAnomaly(a delta.ReconciliationAnomaly) {
	s.anomalies++
}

// Lock keeps other tablesync processes from advancing the same journal.
func (s *syncer) Lock() error {
	if err := utils.EnsureParent(s.lock.Path()); err != nil {
		return err
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock journal: %w", err)
	}
	if !locked {
		return ErrSyncLocked
	}
	return nil
}

func (s *syncer) Unlock() error {
	if !s.lock.Locked() {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock journal: %w", err)
	}
	return os.Remove(s.lock.Path())
}

func (s *syncer) Run(ctx context.Context) (*syncResult, error) {
	started := time.Now()
	s.anomalies = 0

	state, err := s.journal.Get(ctx, s.tableURI)
	if err != nil {
		return nil, err
	}

	var res *syncResult
	if state != nil {
		safe, err := s.source.IsIncrementalSyncSafeFrom(ctx, state.LastSyncInstant)
		if err != nil {
			return nil, err
		}
		if safe {
			res, err = s.incremental(ctx, state)
		} else {
			slog.Warn("sync incremental not possible, falling back to snapshot", "table", s.tableURI, "lastSyncInstant", state.LastSyncInstant)
		}
		if err != nil {
			return nil, err
		}
	}
	if res == nil {
		if res, err = s.snapshot(ctx); err != nil {
			return nil, err
		}
	}

	res.Anomalies = s.anomalies
	res.Took = time.Since(started).Round(time.Millisecond).String()
	if res.Mode == syncModeUpToDate {
		return res, nil
	}

	err = s.journal.RecordRun(ctx, &journal.SyncRun{
		TableURI:     s.tableURI,
		FromVersion:  res.FromVersion,
		ToVersion:    res.ToVersion,
		FilesAdded:   res.FilesAdded,
		FilesRemoved: res.FilesRemoved,
		Anomalies:    res.Anomalies,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("sync done", "table", s.tableURI, "mode", res.Mode, "from", res.FromVersion, "to", res.ToVersion,
		"added", res.FilesAdded, "removed", res.FilesRemoved, "anomalies", res.Anomalies, "took", res.Took)
	return res, nil
}

func (s *syncer) snapshot(ctx context.Context) (*syncResult, error) {
	snap, err := s.source.GetCurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	err = s.journal.Set(ctx, &journal.SyncState{
		TableURI:        s.tableURI,
		LastVersion:     snap.Table.Version,
		LastSyncInstant: snap.Table.LatestCommitTime,
	})
	if err != nil {
		return nil, err
	}

	return &syncResult{
		Mode:            syncModeSnapshot,
		FromVersion:     0,
		ToVersion:       snap.Table.Version,
		FilesAdded:      snap.FileCount(),
		LastSyncInstant: snap.Table.LatestCommitTime,
	}, nil
}

func (s *syncer) incremental(ctx context.Context, state *journal.SyncState) (*syncResult, error) {
	backlog, err := s.source.GetCommitsBacklog(ctx, state.LastSyncInstant)
	if err != nil {
		return nil, err
	}

	res := &syncResult{
		Mode:            syncModeUpToDate,
		FromVersion:     state.LastVersion,
		ToVersion:       state.LastVersion,
		LastSyncInstant: state.LastSyncInstant,
	}
	if backlog.IsEmpty() {
		return res, nil
	}

	res.Mode = syncModeIncremental
	res.FromVersion = backlog.CommitsToProcess[0]
	for _, v := range backlog.CommitsToProcess {
		change, err := s.source.GetTableChangeForCommit(ctx, v)
		if err != nil {
			return nil, err
		}
		res.FilesAdded += len(change.FilesDiff.FilesAdded)
		res.FilesRemoved += len(change.FilesDiff.FilesRemoved)
		res.ToVersion = v
		res.LastSyncInstant = change.TableAsOfChange.LatestCommitTime

		// progress is saved per version so an interrupted run resumes where it stopped
		err = s.journal.Set(ctx, &journal.SyncState{
			TableURI:        s.tableURI,
			LastVersion:     v,
			LastSyncInstant: res.LastSyncInstant,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("sync version", "table", s.tableURI, "version", v,
			"added", len(change.FilesDiff.FilesAdded), "removed", len(change.FilesDiff.FilesRemoved))
	}
	return res, nil
}
