// Package journal persists incremental sync progress per table in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/tablesync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
    table_uri TEXT PRIMARY KEY,
    last_version INTEGER NOT NULL,
    last_sync_instant TEXT NOT NULL, -- RFC3339Nano
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id TEXT PRIMARY KEY,
    table_uri TEXT NOT NULL,
    from_version INTEGER NOT NULL,
    to_version INTEGER NOT NULL,
    files_added INTEGER NOT NULL,
    files_removed INTEGER NOT NULL,
    anomalies INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_table ON sync_runs(table_uri, started_at);
`

var ErrJournalClosed = errors.New("sync journal is not open")

// SyncState is the progress of a table: the last version fully processed and
// the commit timestamp of that version.
type SyncState struct {
	TableURI        string
	LastVersion     int64
	LastSyncInstant time.Time
	UpdatedAt       time.Time
}

// SyncRun is one completed pass over a commits backlog.
type SyncRun struct {
	ID           string
	TableURI     string
	FromVersion  int64
	ToVersion    int64
	FilesAdded   int
	FilesRemoved int
	Anomalies    int
	StartedAt    time.Time
	FinishedAt   time.Time
}

type dbSyncState struct {
	TableURI        string `db:"table_uri"`
	LastVersion     int64  `db:"last_version"`
	LastSyncInstant string `db:"last_sync_instant"`
	UpdatedAt       string `db:"updated_at"`
}

type dbSyncRun struct {
	ID           string `db:"id"`
	TableURI     string `db:"table_uri"`
	FromVersion  int64  `db:"from_version"`
	ToVersion    int64  `db:"to_version"`
	FilesAdded   int    `db:"files_added"`
	FilesRemoved int    `db:"files_removed"`
	Anomalies    int    `db:"anomalies"`
	StartedAt    string `db:"started_at"`
	FinishedAt   string `db:"finished_at"`
}

type Journal struct {
	db     *sqlx.DB
	dbPath string
}

// Open creates or opens the journal at dbPath. db.MemoryPath gives a
// throwaway journal.
func Open(dbPath string) (*Journal, error) {
	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open sync journal: %w", err)
	}
	return &Journal{db: conn, dbPath: dbPath}, nil
}

func (j *Journal) Path() string {
	return j.dbPath
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("close sync journal: %w", err)
	}
	slog.Debug("sync journal closed", "path", j.dbPath)
	return nil
}

// Get returns the state of tableURI, or nil if the table was never synced.
func (j *Journal) Get(ctx context.Context, tableURI string) (*SyncState, error) {
	if j.db == nil {
		return nil, ErrJournalClosed
	}

	var row dbSyncState
	err := j.db.GetContext(ctx, &row,
		"SELECT table_uri, last_version, last_sync_instant, updated_at FROM sync_state WHERE table_uri = ?", tableURI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query sync state %s: %w", tableURI, err)
	}

	instant, err := parseTime(row.LastSyncInstant)
	if err != nil {
		return nil, fmt.Errorf("sync state %s: %w", tableURI, err)
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sync state %s: %w", tableURI, err)
	}

	return &SyncState{
		TableURI:        row.TableURI,
		LastVersion:     row.LastVersion,
		LastSyncInstant: instant,
		UpdatedAt:       updatedAt,
	}, nil
}

// Set records the progress of a table. UpdatedAt is set to now.
func (j *Journal) Set(ctx context.Context, state *SyncState) error {
	if j.db == nil {
		return ErrJournalClosed
	}
	if state == nil {
		return errors.New("cannot set nil state")
	}

	state.UpdatedAt = time.Now().UTC()
	row := dbSyncState{
		TableURI:        state.TableURI,
		LastVersion:     state.LastVersion,
		LastSyncInstant: formatTime(state.LastSyncInstant),
		UpdatedAt:       formatTime(state.UpdatedAt),
	}

	_, err := j.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO sync_state (table_uri, last_version, last_sync_instant, updated_at)
		VALUES (:table_uri, :last_version, :last_sync_instant, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", state.TableURI, err)
	}
	slog.Debug("sync journal set", "table", state.TableURI, "version", state.LastVersion)
	return nil
}

func (j *Journal) Delete(ctx context.Context, tableURI string) error {
	if j.db == nil {
		return ErrJournalClosed
	}
	if _, err := j.db.ExecContext(ctx, "DELETE FROM sync_state WHERE table_uri = ?", tableURI); err != nil {
		return fmt.Errorf("delete sync state %s: %w", tableURI, err)
	}
	return nil
}

// RecordRun stores a completed run, assigning it an id when it has none.
func (j *Journal) RecordRun(ctx context.Context, run *SyncRun) error {
	if j.db == nil {
		return ErrJournalClosed
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	row := dbSyncRun{
		ID:           run.ID,
		TableURI:     run.TableURI,
		FromVersion:  run.FromVersion,
		ToVersion:    run.ToVersion,
		FilesAdded:   run.FilesAdded,
		FilesRemoved: run.FilesRemoved,
		Anomalies:    run.Anomalies,
		StartedAt:    formatTime(run.StartedAt),
		FinishedAt:   formatTime(run.FinishedAt),
	}
	_, err := j.db.NamedExecContext(ctx, `INSERT INTO sync_runs
		(id, table_uri, from_version, to_version, files_added, files_removed, anomalies, started_at, finished_at)
		VALUES (:id, :table_uri, :from_version, :to_version, :files_added, :files_removed, :anomalies, :started_at, :finished_at)`, row)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs of a table, newest first.
func (j *Journal) Runs(ctx context.Context, tableURI string, limit int) ([]*SyncRun, error) {
	if j.db == nil {
		return nil, ErrJournalClosed
	}
	if limit <= 0 {
		limit = 20
	}

	var rows []dbSyncRun
	err := j.db.SelectContext(ctx, &rows, `SELECT id, table_uri, from_version, to_version, files_added, files_removed, anomalies, started_at, finished_at
		FROM sync_runs WHERE table_uri = ? ORDER BY started_at DESC LIMIT ?`, tableURI, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs %s: %w", tableURI, err)
	}

	runs := make([]*SyncRun, 0, len(rows))
	for _, row := range rows {
		startedAt, err := parseTime(row.StartedAt)
		if err != nil {
			slog.Warn("sync journal skipping run", "id", row.ID, "error", err)
			continue
		}
		finishedAt, err := parseTime(row.FinishedAt)
		if err != nil {
			slog.Warn("sync journal skipping run", "id", row.ID, "error", err)
			continue
		}
		runs = append(runs, &SyncRun{
			ID:           row.ID,
			TableURI:     row.TableURI,
			FromVersion:  row.FromVersion,
			ToVersion:    row.ToVersion,
			FilesAdded:   row.FilesAdded,
			FilesRemoved: row.FilesRemoved,
			Anomalies:    row.Anomalies,
			StartedAt:    startedAt,
			FinishedAt:   finishedAt,
		})
	}
	return runs, nil
}

// times are stored in UTC with a fixed width fraction so they sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
