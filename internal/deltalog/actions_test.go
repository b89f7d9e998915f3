package deltalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActions(t *testing.T) {
	commit := strings.Join([]string{
		`{"commitInfo":{"timestamp":1700000000000,"inCommitTimestamp":1700000000123,"operation":"DELETE"}}`,
		``,
		`{"remove":{"path":"region=eu/part-0.parquet","deletionTimestamp":1700000000000,"dataChange":true}}`,
		`{"add":{"path":"region=eu/part-0.parquet","partitionValues":{"region":"eu"},"size":10,"modificationTime":1,"dataChange":true,"deletionVector":{"storageType":"i","pathOrInlineDv":"wi5b=000010000siXQKl0rr91000f55c8Xg0@@D72lkbi5=-{L","sizeInBytes":40,"cardinality":6}}}`,
		`{"domainMetadata":{"domain":"x","configuration":"{}","removed":false}}`,
		`{"txn":{"appId":"app","version":3}}`,
	}, "\n")

	actions, err := ParseActions(strings.NewReader(commit))
	require.NoError(t, err)
	require.Len(t, actions, 4)

	assert.Equal(t, KindCommitInfo, actions[0].Kind())
	ci := actions[0].(*CommitInfo)
	require.NotNil(t, ci.InCommitTimestamp)
	assert.Equal(t, int64(1700000000123), *ci.InCommitTimestamp)

	assert.Equal(t, KindRemove, actions[1].Kind())
	assert.Equal(t, KindAdd, actions[2].Kind())
	add := actions[2].(*AddFile)
	require.NotNil(t, add.DeletionVector)
	assert.True(t, add.DeletionVector.IsInline())
	assert.Equal(t, "eu", *add.PartitionValues["region"])
	assert.NotEqual(t, add.Path, add.FileKey())

	assert.Equal(t, KindTxn, actions[3].Kind())
}

func TestParseActions_Invalid(t *testing.T) {
	_, err := ParseActions(strings.NewReader(`{"add":{"path":`))
	assert.ErrorIs(t, err, ErrInvalidCommitFile)
}

func TestEncodeAction_RoundTrip(t *testing.T) {
	region := "us"
	add := &AddFile{Path: "a.parquet", PartitionValues: map[string]*string{"region": &region, "day": nil}, Size: 3, DataChange: true}

	line, err := EncodeAction(add)
	require.NoError(t, err)

	actions, err := ParseActions(strings.NewReader(string(line)))
	require.NoError(t, err)
	require.Len(t, actions, 1)

	got := actions[0].(*AddFile)
	assert.Equal(t, "a.parquet", got.Path)
	assert.Equal(t, "us", *got.PartitionValues["region"])
	v, ok := got.PartitionValues["day"]
	assert.True(t, ok)
	assert.Nil(t, v)
}
