package delta

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/openmined/tablesync/internal/model"
)

// ConversionSource reads table state and incremental changes from a log.
//
// A source starts without a backlog. GetCommitsBacklog starts an incremental
// session, replacing any previous one, and unlocks GetTableChangeForCommit for
// the versions it returned. After Close every call fails. A source is used by
// one caller at a time; independent sources over the same log may run
// concurrently.
type ConversionSource struct {
	log       LogReader
	tables    *TableExtractor
	files     DataFileExtractor
	changes   *ChangeExtractor
	planner   *BacklogPlanner
	state     *IncrementalChangesState
	closed    bool
	tableName string
	cacheSize int
	onAnomaly AnomalyHandler
}

type SourceOption func(*ConversionSource)

// WithTableName overrides the name reported for the table.
func WithTableName(name string) SourceOption {
	return func(s *ConversionSource) {
		s.tableName = name
	}
}

// WithDataFileExtractor replaces how snapshot files are enumerated.
func WithDataFileExtractor(files DataFileExtractor) SourceOption {
	return func(s *ConversionSource) {
		s.files = files
	}
}

// WithAnomalyHandler receives reconciliation anomalies in addition to the
// warning log.
func WithAnomalyHandler(h AnomalyHandler) SourceOption {
	return func(s *ConversionSource) {
		s.onAnomaly = h
	}
}

// WithStateCacheSize sets how many versions' actions a session keeps.
func WithStateCacheSize(n int) SourceOption {
	return func(s *ConversionSource) {
		s.cacheSize = n
	}
}

func NewConversionSource(log LogReader, opts ...SourceOption) *ConversionSource {
	s := &ConversionSource{
		log:       log,
		files:     SnapshotFileExtractor{},
		cacheSize: DefaultStateCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tables = NewTableExtractor(log, s.tableName)
	s.changes = NewChangeExtractor(s.tables, s.onAnomaly)
	s.planner = NewBacklogPlanner(log, s.cacheSize)
	return s
}

// GetTable returns the table definition as of version.
func (s *ConversionSource) GetTable(ctx context.Context, version int64) (*model.InternalTable, error) {
	if err := s.checkOpen("get table"); err != nil {
		return nil, err
	}
	return s.tables.Table(ctx, version)
}

// GetCurrentTable returns the table definition as of the latest version at
// the time of the call.
func (s *ConversionSource) GetCurrentTable(ctx context.Context) (*model.InternalTable, error) {
	if err := s.checkOpen("get current table"); err != nil {
		return nil, err
	}
	latest, err := s.log.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	return s.tables.Table(ctx, latest)
}

// GetCurrentSnapshot returns the table and all of its live data files grouped
// by partition. Everything is read as of the latest version resolved at the
// start of the call, even if the log advances meanwhile.
func (s *ConversionSource) GetCurrentSnapshot(ctx context.Context) (*model.InternalSnapshot, error) {
	if err := s.checkOpen("get current snapshot"); err != nil {
		return nil, err
	}

	latest, err := s.log.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.log.SnapshotAt(ctx, latest)
	if err != nil {
		return nil, err
	}
	table, err := s.tables.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}

	it, err := s.files.Iterator(ctx, snap, table)
	if err != nil {
		return nil, &ReadError{Version: latest, Op: "list data files", Err: err}
	}
	files, err := drain(it)
	if err != nil {
		return nil, &ReadError{Version: latest, Op: "list data files", Err: err}
	}

	return &model.InternalSnapshot{
		Table:                table,
		PartitionedDataFiles: model.GroupFilesByPartition(files),
		SourceIdentifier:     s.GetCommitIdentifier(latest),
	}, nil
}

// drain reads the iterator to the end and always closes it.
func drain(it DataFileIterator) (files []*model.DataFile, err error) {
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		f, err := it.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
}

// GetTableChangeForCommit returns the files added and removed by version,
// which must be part of the current backlog.
func (s *ConversionSource) GetTableChangeForCommit(ctx context.Context, version int64) (*model.TableChange, error) {
	const op = "get table change for commit"
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	if s.state == nil {
		return nil, &StateError{Op: op, Err: ErrChangesStateNotInitialized}
	}

	change, err := s.changes.ExtractChange(ctx, s.state, version)
	if err != nil {
		if errors.Is(err, ErrVersionNotInBacklog) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ReadError{Version: version, Op: "extract change", Err: err}
	}
	return change, nil
}

// GetCommitsBacklog starts a new incremental session after the commit active
// at lastSyncInstant and returns the versions to process.
func (s *ConversionSource) GetCommitsBacklog(ctx context.Context, lastSyncInstant time.Time) (*model.CommitsBacklog, error) {
	if err := s.checkOpen("get commits backlog"); err != nil {
		return nil, err
	}

	state, backlog, err := s.planner.Plan(ctx, lastSyncInstant)
	if err != nil {
		return nil, err
	}
	if s.state != nil {
		s.state.purge()
	}
	s.state = state
	return backlog, nil
}

// ChangesState returns the current incremental session, or nil before the
// first backlog.
func (s *ConversionSource) ChangesState() *IncrementalChangesState {
	return s.state
}

// IsIncrementalSyncSafeFrom reports whether an incremental sync may resume
// from instant.
func (s *ConversionSource) IsIncrementalSyncSafeFrom(ctx context.Context, instant time.Time) (bool, error) {
	if err := s.checkOpen("is incremental sync safe from"); err != nil {
		return false, err
	}
	return s.planner.IsSafeFrom(ctx, instant)
}

// GetCommitIdentifier returns the identifier of version as recorded in table changes.
func (s *ConversionSource) GetCommitIdentifier(version int64) string {
	return strconv.FormatInt(version, 10)
}

// Close discards the incremental session. Closing twice is a no-op.
func (s *ConversionSource) Close() error {
	if s.closed {
		return nil
	}
	if s.state != nil {
		s.state.purge()
		s.state = nil
	}
	s.closed = true
	slog.Debug("conversion source closed", "basePath", s.log.BasePath())
	return nil
}

func (s *ConversionSource) checkOpen(op string) error {
	if s.closed {
		return &StateError{Op: op, Err: ErrSourceClosed}
	}
	return nil
}
