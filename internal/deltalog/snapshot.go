package deltalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Snapshot is the table state as of a version: the last metadata and protocol
// seen, and the live set of files after replaying every commit up to it.
type Snapshot struct {
	Version   int64
	Timestamp time.Time
	Metadata  *Metadata
	Protocol  *Protocol

	files map[string]*AddFile
}

// Files returns the live files ordered by path, then by deletion vector.
func (s *Snapshot) Files() []*AddFile {
	files := make([]*AddFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b *AddFile) int {
		return strings.Compare(a.FileKey(), b.FileKey())
	})
	return files
}

func (s *Snapshot) NumFiles() int {
	return len(s.files)
}

// apply folds the actions of one commit into the snapshot.
func (s *Snapshot) apply(actions []Action) {
	for _, a := range actions {
		switch v := a.(type) {
		case *AddFile:
			s.files[v.FileKey()] = v
		case *RemoveFile:
			delete(s.files, v.FileKey())
		case *Metadata:
			s.Metadata = v
		case *Protocol:
			s.Protocol = v
		}
	}
}

// Advance moves the snapshot forward by one commit. commit must be the version
// right after the snapshot's.
func (s *Snapshot) Advance(commit Commit, actions []Action) error {
	if commit.Version != s.Version+1 {
		return fmt.Errorf("%w: snapshot at %d cannot advance to %d", ErrVersionNotFound, s.Version, commit.Version)
	}
	s.apply(actions)
	s.Version = commit.Version
	s.Timestamp = commit.Timestamp
	return nil
}

// SnapshotAt replays the log from version 0 up to and including version.
// Commit files are fetched concurrently and applied in order. A log whose
// first commits have been cleaned up cannot be replayed without a checkpoint
// and yields ErrSnapshotNotRecreatable.
func (l *Log) SnapshotAt(ctx context.Context, version int64) (*Snapshot, error) {
	h, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	commit, err := h.CommitAt(version)
	if err != nil {
		return nil, err
	}
	earliest, _ := h.Earliest()
	if earliest.Version != 0 {
		return nil, fmt.Errorf("%w: log starts at version %d", ErrSnapshotNotRecreatable, earliest.Version)
	}

	versions := make([]int64, 0, version+1)
	for v := int64(0); v <= version; v++ {
		versions = append(versions, v)
	}
	commits, err := l.fetchAll(ctx, versions)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:   commit.Version,
		Timestamp: commit.Timestamp,
		files:     make(map[string]*AddFile),
	}
	for _, actions := range commits {
		snap.apply(actions)
	}
	if snap.Metadata == nil {
		return nil, fmt.Errorf("%w: version %d", ErrMissingMetadata, version)
	}

	slog.Debug("deltalog snapshot replayed", "version", version, "files", len(snap.files))
	return snap, nil
}
