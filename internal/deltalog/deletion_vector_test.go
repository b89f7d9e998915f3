package deltalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZ85(t *testing.T) {
	raw := []byte{0x86, 0x4F, 0xD2, 0x6F, 0xB5, 0x59, 0xF7, 0x5B}
	assert.Equal(t, "HelloWorld", encodeZ85(raw))

	decoded, err := decodeZ85("HelloWorld")
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)

	_, err = decodeZ85("Hello")
	require.NoError(t, err)

	_, err = decodeZ85("Hell")
	assert.ErrorIs(t, err, ErrInvalidDeletionVector)

	_, err = decodeZ85("Hell~")
	assert.ErrorIs(t, err, ErrInvalidDeletionVector)
}

func TestDeletionVector_AbsolutePath(t *testing.T) {
	id := uuid.MustParse("d2c639aa-8816-431a-aaf6-d3fe2512ff61")
	offset := int32(1)

	tests := []struct {
		name     string
		dv       DeletionVector
		expected string
		error    bool
	}{
		{
			name:     "uuid-with-prefix",
			dv:       DeletionVector{StorageType: StorageTypeUUIDRelative, PathOrInlineDv: UUIDPathOrInlineDv("ab", id), Offset: &offset},
			expected: "s3://bucket/events/ab/deletion_vector_d2c639aa-8816-431a-aaf6-d3fe2512ff61.bin",
		},
		{
			name:     "uuid-without-prefix",
			dv:       DeletionVector{StorageType: StorageTypeUUIDRelative, PathOrInlineDv: UUIDPathOrInlineDv("", id)},
			expected: "s3://bucket/events/deletion_vector_d2c639aa-8816-431a-aaf6-d3fe2512ff61.bin",
		},
		{
			name:     "absolute",
			dv:       DeletionVector{StorageType: StorageTypeAbsolute, PathOrInlineDv: "s3://other/dv.bin"},
			expected: "s3://other/dv.bin",
		},
		{name: "inline", dv: DeletionVector{StorageType: StorageTypeInline, PathOrInlineDv: "abc"}, error: true},
		{name: "short-uuid", dv: DeletionVector{StorageType: StorageTypeUUIDRelative, PathOrInlineDv: "abc"}, error: true},
		{name: "unknown", dv: DeletionVector{StorageType: "x"}, error: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.dv.AbsolutePath("s3://bucket/events/")
			if test.error {
				assert.ErrorIs(t, err, ErrInvalidDeletionVector)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestDeletionVector_UniqueID(t *testing.T) {
	offset := int32(7)
	dv := &DeletionVector{StorageType: "u", PathOrInlineDv: "abc", Offset: &offset}
	assert.Equal(t, "uabc@7", dv.UniqueID())

	dv.Offset = nil
	assert.Equal(t, "uabc", dv.UniqueID())

	assert.Equal(t, "p.parquet", fileKey("p.parquet", nil))
	assert.Equal(t, "p.parquet#uabc", fileKey("p.parquet", dv))
}
