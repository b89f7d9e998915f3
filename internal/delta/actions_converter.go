package delta

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/model"
)

// FileFormat maps the format provider of a metadata action to a file format.
func FileFormat(meta *deltalog.Metadata) (model.FileFormat, error) {
	switch strings.ToLower(meta.Format.Provider) {
	case "parquet", "":
		return model.FileFormatParquet, nil
	case "orc":
		return model.FileFormatORC, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileFormat, meta.Format.Provider)
}

// ActionsConverter turns file actions into data files of one table version.
type ActionsConverter struct {
	table  *model.InternalTable
	format model.FileFormat
}

func NewActionsConverter(table *model.InternalTable, format model.FileFormat) *ActionsConverter {
	return &ActionsConverter{table: table, format: format}
}

// Convert converts an add or remove action. Other actions are not files.
func (c *ActionsConverter) Convert(a deltalog.Action) (*model.DataFile, error) {
	switch v := a.(type) {
	case *deltalog.AddFile:
		return c.AddToDataFile(v, true)
	case *deltalog.RemoveFile:
		return c.RemoveToDataFile(v)
	}
	return nil, fmt.Errorf("action %s is not a file action", a.Kind())
}

// AddToDataFile converts an add action. Column stats are parsed only when
// includeStats is set; the record count is read either way.
func (c *ActionsConverter) AddToDataFile(add *deltalog.AddFile, includeStats bool) (*model.DataFile, error) {
	partitionValues, err := PartitionValues(c.table.PartitioningFields, add.PartitionValues)
	if err != nil {
		return nil, err
	}

	var stats *FileStats
	if includeStats {
		stats, err = ParseStats(add.Stats, c.table.ReadSchema)
	} else {
		stats, err = ParseStats(add.Stats, &model.InternalSchema{})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", add.Path, err)
	}

	dvRef, err := c.DeletionVectorRef(add.DeletionVector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", add.Path, err)
	}

	return &model.DataFile{
		PhysicalPath:      c.FullPath(add.Path),
		FileFormat:        c.format,
		PartitionValues:   partitionValues,
		FileSizeBytes:     add.Size,
		RecordCount:       stats.RecordCount,
		ColumnStats:       stats.Columns,
		LastModified:      time.UnixMilli(add.ModificationTime).UTC(),
		DeletionVectorRef: dvRef,
	}, nil
}

// RemoveToDataFile converts a remove action. Removes written without extended
// file metadata carry no partition values or size.
func (c *ActionsConverter) RemoveToDataFile(rm *deltalog.RemoveFile) (*model.DataFile, error) {
	var partitionValues []model.PartitionValue
	if rm.PartitionValues != nil {
		var err error
		partitionValues, err = PartitionValues(c.table.PartitioningFields, rm.PartitionValues)
		if err != nil {
			return nil, err
		}
	}

	df := &model.DataFile{
		PhysicalPath:    c.FullPath(rm.Path),
		FileFormat:      c.format,
		PartitionValues: partitionValues,
	}
	if rm.Size != nil {
		df.FileSizeBytes = *rm.Size
	}
	if rm.DeletionTimestamp != nil {
		df.LastModified = time.UnixMilli(*rm.DeletionTimestamp).UTC()
	}

	dvRef, err := c.DeletionVectorRef(rm.DeletionVector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rm.Path, err)
	}
	df.DeletionVectorRef = dvRef
	return df, nil
}

// FullPath resolves a path from the log against the table base path. Relative
// paths in the log are URL encoded.
func (c *ActionsConverter) FullPath(p string) string {
	if strings.Contains(p, "://") || strings.HasPrefix(p, "/") {
		return p
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return strings.TrimSuffix(c.table.BasePath, "/") + "/" + p
}

// DeletionVectorRef locates the delete mask of a file. Inline masks have no
// file and are referenced by their unique id.
func (c *ActionsConverter) DeletionVectorRef(dv *deltalog.DeletionVector) (string, error) {
	if dv == nil {
		return "", nil
	}
	if dv.IsInline() {
		return dv.UniqueID(), nil
	}
	return dv.AbsolutePath(c.table.BasePath)
}
