// Package model holds the format-neutral representation of a table, its data
// files and the changes between versions.
package model

import "time"

type TableFormat string

const (
	TableFormatDelta TableFormat = "DELTA"
)

// InternalTable describes a table as of a single version.
type InternalTable struct {
	Name               string
	TableFormat        TableFormat
	BasePath           string
	ReadSchema         *InternalSchema
	PartitioningFields []*PartitionField
	LatestCommitTime   time.Time
	Version            int64
}

// IsPartitioned reports whether the table has at least one partition field.
func (t *InternalTable) IsPartitioned() bool {
	return len(t.PartitioningFields) > 0
}
