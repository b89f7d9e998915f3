// Package delta extracts table state and per-version file changes from a
// table transaction log, and plans incremental syncs over it.
package delta

import (
	"context"
	"time"

	"github.com/openmined/tablesync/internal/deltalog"
)

// LogReader is the read access to a transaction log the conversion source
// needs. *deltalog.Log implements it.
type LogReader interface {
	BasePath() string
	LatestVersion(ctx context.Context) (int64, error)
	ActionsForVersion(ctx context.Context, version int64) ([]deltalog.Action, error)
	ActiveCommitAtOrBefore(ctx context.Context, ts time.Time, inclusive bool) (deltalog.Commit, error)
	CommitAt(ctx context.Context, version int64) (deltalog.Commit, error)
	SnapshotAt(ctx context.Context, version int64) (*deltalog.Snapshot, error)
}

var _ LogReader = (*deltalog.Log)(nil)
