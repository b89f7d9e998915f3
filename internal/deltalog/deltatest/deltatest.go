// Package deltatest writes small transaction logs into temporary directories
// for tests.
package deltatest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/tablesync/internal/blob"
	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/stretchr/testify/require"
)

// Schema is a two column table partitioned by region.
const Schema = `{"type":"struct","fields":[` +
	`{"name":"id","type":"long","nullable":false,"metadata":{}},` +
	`{"name":"name","type":"string","nullable":true,"metadata":{"comment":"display name"}},` +
	`{"name":"region","type":"string","nullable":true,"metadata":{}}]}`

// Epoch is the timestamp of the first commit written by a Table unless told otherwise.
var Epoch = time.UnixMilli(1_700_000_000_000).UTC()

// Table is a transaction log rooted in a temporary directory. Commit
// timestamps are carried by the commit files' modification times.
type Table struct {
	t    testing.TB
	Root string
	next int64
	last time.Time
}

func NewTable(t testing.TB) *Table {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, deltalog.LogDir), 0o755))
	return &Table{t: t, Root: root, last: Epoch.Add(-time.Minute)}
}

// Client returns a blob client over the table root.
func (tb *Table) Client() *blob.LocalClient {
	return blob.NewLocalClient(tb.Root)
}

// Log opens the table's log.
func (tb *Table) Log(opts ...deltalog.Option) *deltalog.Log {
	tb.t.Helper()
	l, err := deltalog.New(tb.Client(), tb.Root, opts...)
	require.NoError(tb.t, err)
	return l
}

// Commit writes the next version one minute after the previous one.
func (tb *Table) Commit(actions ...deltalog.Action) int64 {
	return tb.CommitAt(tb.last.Add(time.Minute), actions...)
}

// CommitAt writes the next version with the given timestamp.
func (tb *Table) CommitAt(ts time.Time, actions ...deltalog.Action) int64 {
	tb.t.Helper()
	v := tb.next
	tb.WriteVersion(v, ts, actions...)
	tb.next++
	tb.last = ts
	return v
}

// WriteVersion writes a commit file for an arbitrary version.
func (tb *Table) WriteVersion(version int64, ts time.Time, actions ...deltalog.Action) {
	tb.t.Helper()

	var buf bytes.Buffer
	for _, a := range actions {
		line, err := deltalog.EncodeAction(a)
		require.NoError(tb.t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	p := tb.commitPath(version)
	require.NoError(tb.t, os.WriteFile(p, buf.Bytes(), 0o644))
	require.NoError(tb.t, os.Chtimes(p, ts, ts))
}

// RemoveVersion deletes a commit file, as log cleanup would.
func (tb *Table) RemoveVersion(version int64) {
	tb.t.Helper()
	require.NoError(tb.t, os.Remove(tb.commitPath(version)))
}

func (tb *Table) commitPath(version int64) string {
	return filepath.Join(tb.Root, filepath.FromSlash(deltalog.CommitFileKey(version)))
}

// Bootstrap writes version 0 with protocol and metadata for Schema,
// partitioned by region.
func (tb *Table) Bootstrap() int64 {
	return tb.Commit(
		&deltalog.Protocol{MinReaderVersion: 3, MinWriterVersion: 7,
			ReaderFeatures: []string{"deletionVectors"}, WriterFeatures: []string{"deletionVectors"}},
		Metadata("region"),
		&deltalog.CommitInfo{Timestamp: Epoch.UnixMilli(), Operation: "CREATE TABLE"},
	)
}

func Metadata(partitionColumns ...string) *deltalog.Metadata {
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	return &deltalog.Metadata{
		ID:               "4c2a4f5e-5c55-4e0b-9a43-8f8c0b6e3f11",
		Name:             "events",
		Format:           deltalog.Format{Provider: "parquet"},
		SchemaString:     Schema,
		PartitionColumns: partitionColumns,
	}
}

func Add(path string, region string) *deltalog.AddFile {
	return &deltalog.AddFile{
		Path:             path,
		PartitionValues:  map[string]*string{"region": &region},
		Size:             1024,
		ModificationTime: Epoch.UnixMilli(),
		DataChange:       true,
		Stats:            `{"numRecords":10,"minValues":{"id":1,"name":"a"},"maxValues":{"id":10,"name":"z"},"nullCount":{"id":0,"name":2}}`,
	}
}

// AddWithDV re-adds path with a deletion vector attached.
func AddWithDV(path string, region string, dv *deltalog.DeletionVector) *deltalog.AddFile {
	a := Add(path, region)
	a.DataChange = false
	a.DeletionVector = dv
	return a
}

func Remove(path string, region string) *deltalog.RemoveFile {
	size := int64(1024)
	ts := Epoch.UnixMilli()
	return &deltalog.RemoveFile{
		Path:              path,
		PartitionValues:   map[string]*string{"region": &region},
		Size:              &size,
		DeletionTimestamp: &ts,
		DataChange:        true,
	}
}

// RemoveWithDV removes the entry of path that carried dv.
func RemoveWithDV(path string, region string, dv *deltalog.DeletionVector) *deltalog.RemoveFile {
	r := Remove(path, region)
	r.DataChange = false
	r.DeletionVector = dv
	return r
}

// InlineDV returns an inline deletion vector; distinct payloads give distinct
// unique ids.
func InlineDV(payload string) *deltalog.DeletionVector {
	return &deltalog.DeletionVector{
		StorageType:    deltalog.StorageTypeInline,
		PathOrInlineDv: payload,
		SizeInBytes:    int32(len(payload)),
		Cardinality:    1,
	}
}

// WriteFile writes an arbitrary file under root, creating parent directories.
func WriteFile(t testing.TB, root, key, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
