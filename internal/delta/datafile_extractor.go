package delta

import (
	"context"
	"errors"
	"io"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/model"
)

var errIteratorClosed = errors.New("data file iterator is closed")

// DataFileIterator is a single pass over the data files of a snapshot. Next
// returns io.EOF once drained. Close must be called on every path.
type DataFileIterator interface {
	Next() (*model.DataFile, error)
	Close() error
}

// DataFileExtractor enumerates the live data files of a snapshot.
type DataFileExtractor interface {
	Iterator(ctx context.Context, snap *deltalog.Snapshot, table *model.InternalTable) (DataFileIterator, error)
}

// SnapshotFileExtractor converts the add actions of a replayed snapshot,
// including column stats.
type SnapshotFileExtractor struct{}

func (SnapshotFileExtractor) Iterator(ctx context.Context, snap *deltalog.Snapshot, table *model.InternalTable) (DataFileIterator, error) {
	if snap.Metadata == nil {
		return nil, ErrMissingMetadata
	}
	format, err := FileFormat(snap.Metadata)
	if err != nil {
		return nil, err
	}
	return &snapshotFileIterator{
		ctx:       ctx,
		files:     snap.Files(),
		converter: NewActionsConverter(table, format),
	}, nil
}

type snapshotFileIterator struct {
	ctx       context.Context
	files     []*deltalog.AddFile
	pos       int
	converter *ActionsConverter
	closed    bool
}

func (it *snapshotFileIterator) Next() (*model.DataFile, error) {
	if it.closed {
		return nil, errIteratorClosed
	}
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.files) {
		return nil, io.EOF
	}
	add := it.files[it.pos]
	it.pos++
	return it.converter.AddToDataFile(add, true)
}

func (it *snapshotFileIterator) Close() error {
	it.closed = true
	it.files = nil
	return nil
}
