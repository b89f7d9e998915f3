package model

import (
	"fmt"
	"strings"
	"time"
)

type FileFormat string

const (
	FileFormatParquet FileFormat = "APACHE_PARQUET"
	FileFormatORC     FileFormat = "APACHE_ORC"
)

// Range holds the bounds of a value. A single partition value is a Range with
// equal bounds.
type Range struct {
	Min any
	Max any
}

func ScalarRange(v any) Range {
	return Range{Min: v, Max: v}
}

type PartitionValue struct {
	PartitionField *PartitionField
	Range          Range
}

type ColumnStat struct {
	Field     *InternalField
	Range     Range
	NumNulls  int64
	NumValues int64
}

// DataFile is a physical data file referenced by the table log.
type DataFile struct {
	PhysicalPath    string
	FileFormat      FileFormat
	PartitionValues []PartitionValue
	FileSizeBytes   int64
	RecordCount     int64
	ColumnStats     []ColumnStat
	LastModified    time.Time
	// DeletionVectorRef locates the row-level delete mask attached to the file, if any.
	DeletionVectorRef string
}

// PartitionKey renders the partition values as a stable string usable as a grouping key.
func (f *DataFile) PartitionKey() string {
	return PartitionKey(f.PartitionValues)
}

func PartitionKey(values []PartitionValue) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, pv := range values {
		name := ""
		if pv.PartitionField != nil && pv.PartitionField.SourceField != nil {
			name = pv.PartitionField.SourceField.Path()
		}
		if pv.Range.Min == nil {
			parts = append(parts, name+"=null")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, pv.Range.Min))
	}
	return strings.Join(parts, "/")
}
