package main

import (
	"fmt"
	"time"

	"github.com/openmined/tablesync/internal/model"
)

// The model types carry pointers between schema nodes; these flat views are
// what json and yaml output render.

type fieldView struct {
	Path     string `json:"path" yaml:"path"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

type tableView struct {
	Name             string      `json:"name" yaml:"name"`
	Format           string      `json:"format" yaml:"format"`
	BasePath         string      `json:"basePath" yaml:"basePath"`
	Version          int64       `json:"version" yaml:"version"`
	LatestCommitTime time.Time   `json:"latestCommitTime" yaml:"latestCommitTime"`
	PartitionColumns []string    `json:"partitionColumns" yaml:"partitionColumns"`
	Fields           []fieldView `json:"fields" yaml:"fields"`
}

type fileView struct {
	Path              string            `json:"path" yaml:"path"`
	Format            string            `json:"format" yaml:"format"`
	SizeBytes         int64             `json:"sizeBytes" yaml:"sizeBytes"`
	RecordCount       int64             `json:"recordCount" yaml:"recordCount"`
	Partition         map[string]string `json:"partition,omitempty" yaml:"partition,omitempty"`
	DeletionVectorRef string            `json:"deletionVector,omitempty" yaml:"deletionVector,omitempty"`
}

type partitionView struct {
	Partition string     `json:"partition" yaml:"partition"`
	Files     []fileView `json:"files" yaml:"files"`
}

type snapshotView struct {
	Table      tableView       `json:"table" yaml:"table"`
	Commit     string          `json:"commit" yaml:"commit"`
	FileCount  int             `json:"fileCount" yaml:"fileCount"`
	TotalBytes int64           `json:"totalBytes" yaml:"totalBytes"`
	Partitions []partitionView `json:"partitions" yaml:"partitions"`
}

type changeView struct {
	Version int64      `json:"version" yaml:"version"`
	Commit  string     `json:"commit" yaml:"commit"`
	At      time.Time  `json:"at" yaml:"at"`
	Added   []fileView `json:"added" yaml:"added"`
	Removed []fileView `json:"removed" yaml:"removed"`
}

func newTableView(t *model.InternalTable) tableView {
	v := tableView{
		Name:             t.Name,
		Format:           string(t.TableFormat),
		BasePath:         t.BasePath,
		Version:          t.Version,
		LatestCommitTime: t.LatestCommitTime,
		PartitionColumns: make([]string, 0, len(t.PartitioningFields)),
	}
	for _, p := range t.PartitioningFields {
		v.PartitionColumns = append(v.PartitionColumns, p.SourceField.Path())
	}
	for _, f := range t.ReadSchema.AllFields() {
		v.Fields = append(v.Fields, fieldView{
			Path:     f.Path(),
			Type:     string(f.Schema.DataType),
			Nullable: f.Schema.IsNullable,
			Comment:  f.Schema.Comment,
		})
	}
	return v
}

func newFileView(f *model.DataFile) fileView {
	v := fileView{
		Path:              f.PhysicalPath,
		Format:            string(f.FileFormat),
		SizeBytes:         f.FileSizeBytes,
		RecordCount:       f.RecordCount,
		DeletionVectorRef: f.DeletionVectorRef,
	}
	if len(f.PartitionValues) > 0 {
		v.Partition = make(map[string]string, len(f.PartitionValues))
		for _, pv := range f.PartitionValues {
			v.Partition[pv.PartitionField.SourceField.Path()] = partitionValueString(pv.Range.Min)
		}
	}
	return v
}

func newFileViews(files []*model.DataFile) []fileView {
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, newFileView(f))
	}
	return out
}

func partitionValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
