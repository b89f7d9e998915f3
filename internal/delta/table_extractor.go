package delta

import (
	"context"
	"fmt"
	"path"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/model"
)

// TableExtractor projects the table definition at a version.
type TableExtractor struct {
	log  LogReader
	name string
}

// NewTableExtractor returns an extractor naming tables name; an empty name
// falls back to the metadata name, then to the last segment of the base path.
func NewTableExtractor(log LogReader, name string) *TableExtractor {
	return &TableExtractor{log: log, name: name}
}

func (e *TableExtractor) Table(ctx context.Context, version int64) (*model.InternalTable, error) {
	snap, err := e.log.SnapshotAt(ctx, version)
	if err != nil {
		return nil, err
	}
	return e.FromSnapshot(snap)
}

// FromSnapshot builds the table definition from an already replayed snapshot.
func (e *TableExtractor) FromSnapshot(snap *deltalog.Snapshot) (*model.InternalTable, error) {
	if snap.Metadata == nil {
		return nil, fmt.Errorf("%w: version %d", ErrMissingMetadata, snap.Version)
	}

	schema, err := ParseSchema(snap.Metadata.SchemaString)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", snap.Version, err)
	}
	partitionFields, err := PartitionFields(schema, snap.Metadata.PartitionColumns)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", snap.Version, err)
	}

	return &model.InternalTable{
		Name:               e.tableName(snap.Metadata),
		TableFormat:        model.TableFormatDelta,
		BasePath:           e.log.BasePath(),
		ReadSchema:         schema,
		PartitioningFields: partitionFields,
		LatestCommitTime:   snap.Timestamp,
		Version:            snap.Version,
	}, nil
}

func (e *TableExtractor) tableName(meta *deltalog.Metadata) string {
	if e.name != "" {
		return e.name
	}
	if meta.Name != "" {
		return meta.Name
	}
	return path.Base(e.log.BasePath())
}
