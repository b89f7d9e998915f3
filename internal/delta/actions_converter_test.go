package delta

import (
	"testing"

	"github.com/google/uuid"
	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/deltalog/deltatest"
	"github.com/openmined/tablesync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConverter(t *testing.T, basePath string) *ActionsConverter {
	t.Helper()
	schema, err := ParseSchema(deltatest.Schema)
	require.NoError(t, err)
	fields, err := PartitionFields(schema, []string{"region"})
	require.NoError(t, err)
	table := &model.InternalTable{BasePath: basePath, ReadSchema: schema, PartitioningFields: fields}
	return NewActionsConverter(table, model.FileFormatParquet)
}

func TestFileFormat(t *testing.T) {
	tests := []struct {
		provider string
		expected model.FileFormat
		error    bool
	}{
		{provider: "parquet", expected: model.FileFormatParquet},
		{provider: "PARQUET", expected: model.FileFormatParquet},
		{provider: "", expected: model.FileFormatParquet},
		{provider: "orc", expected: model.FileFormatORC},
		{provider: "avro", error: true},
	}

	for _, test := range tests {
		t.Run(test.provider, func(t *testing.T) {
			got, err := FileFormat(&deltalog.Metadata{Format: deltalog.Format{Provider: test.provider}})
			if test.error {
				assert.ErrorIs(t, err, ErrUnsupportedFileFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestActionsConverter_FullPath(t *testing.T) {
	c := testConverter(t, "s3://bucket/events/")

	assert.Equal(t, "s3://bucket/events/region=eu/a.parquet", c.FullPath("region=eu/a.parquet"))
	assert.Equal(t, "s3://bucket/events/region=new york/a b.parquet", c.FullPath("region=new%20york/a%20b.parquet"))
	assert.Equal(t, "s3://other/x.parquet", c.FullPath("s3://other/x.parquet"))
	assert.Equal(t, "/abs/x.parquet", c.FullPath("/abs/x.parquet"))
}

func TestActionsConverter_Convert(t *testing.T) {
	c := testConverter(t, "/tables/events")

	add := deltatest.Add("region=eu/a.parquet", "eu")
	df, err := c.Convert(add)
	require.NoError(t, err)
	assert.Equal(t, "/tables/events/region=eu/a.parquet", df.PhysicalPath)
	assert.Equal(t, int64(10), df.RecordCount)
	assert.Len(t, df.ColumnStats, 2)
	assert.Equal(t, deltatest.Epoch, df.LastModified)
	assert.Empty(t, df.DeletionVectorRef)

	noStats, err := c.AddToDataFile(add, false)
	require.NoError(t, err)
	assert.Equal(t, int64(10), noStats.RecordCount)
	assert.Empty(t, noStats.ColumnStats)

	rm := deltatest.Remove("region=eu/a.parquet", "eu")
	df, err = c.Convert(rm)
	require.NoError(t, err)
	assert.Equal(t, "/tables/events/region=eu/a.parquet", df.PhysicalPath)
	assert.Equal(t, int64(1024), df.FileSizeBytes)
	assert.Equal(t, "region=eu", df.PartitionKey())

	bare := &deltalog.RemoveFile{Path: "region=eu/a.parquet"}
	df, err = c.Convert(bare)
	require.NoError(t, err)
	assert.Empty(t, df.PartitionValues)
	assert.Zero(t, df.FileSizeBytes)

	_, err = c.Convert(&deltalog.CommitInfo{})
	assert.Error(t, err)
}

func TestActionsConverter_DeletionVectorRef(t *testing.T) {
	c := testConverter(t, "s3://bucket/events")
	id := uuid.MustParse("d2c639aa-8816-431a-aaf6-d3fe2512ff61")

	ref, err := c.DeletionVectorRef(&deltalog.DeletionVector{
		StorageType:    deltalog.StorageTypeUUIDRelative,
		PathOrInlineDv: deltalog.UUIDPathOrInlineDv("", id),
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/events/deletion_vector_d2c639aa-8816-431a-aaf6-d3fe2512ff61.bin", ref)

	ref, err = c.DeletionVectorRef(deltatest.InlineDV("m1"))
	require.NoError(t, err)
	assert.Equal(t, "im1", ref)

	ref, err = c.DeletionVectorRef(nil)
	require.NoError(t, err)
	assert.Empty(t, ref)

	_, err = c.DeletionVectorRef(&deltalog.DeletionVector{StorageType: "x"})
	assert.ErrorIs(t, err, deltalog.ErrInvalidDeletionVector)
}
