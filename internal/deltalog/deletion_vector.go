package deltalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tilinna/z85"
)

const (
	StorageTypeUUIDRelative = "u"
	StorageTypeInline       = "i"
	StorageTypeAbsolute     = "p"

	// z85-encoded 16 byte UUID
	encodedUUIDLength = 20
)

// DeletionVector describes the row-level delete mask attached to a data file.
type DeletionVector struct {
	StorageType    string `json:"storageType"`
	PathOrInlineDv string `json:"pathOrInlineDv"`
	Offset         *int32 `json:"offset,omitempty"`
	SizeInBytes    int32  `json:"sizeInBytes"`
	Cardinality    int64  `json:"cardinality"`
	MaxRowIndex    *int64 `json:"maxRowIndex,omitempty"`
}

// UniqueID identifies the mask within the table.
func (dv *DeletionVector) UniqueID() string {
	id := dv.StorageType + dv.PathOrInlineDv
	if dv.Offset != nil {
		id += "@" + strconv.FormatInt(int64(*dv.Offset), 10)
	}
	return id
}

func (dv *DeletionVector) IsInline() bool {
	return dv.StorageType == StorageTypeInline
}

// AbsolutePath resolves the file holding the mask. Inline masks live in the
// log itself and have no file.
func (dv *DeletionVector) AbsolutePath(basePath string) (string, error) {
	switch dv.StorageType {
	case StorageTypeAbsolute:
		return dv.PathOrInlineDv, nil
	case StorageTypeUUIDRelative:
		p := dv.PathOrInlineDv
		if len(p) < encodedUUIDLength {
			return "", fmt.Errorf("%w: uuid path %q too short", ErrInvalidDeletionVector, p)
		}
		prefix, encoded := p[:len(p)-encodedUUIDLength], p[len(p)-encodedUUIDLength:]
		raw, err := decodeZ85(encoded)
		if err != nil {
			return "", err
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidDeletionVector, err)
		}
		name := "deletion_vector_" + id.String() + ".bin"
		base := strings.TrimSuffix(basePath, "/")
		if prefix != "" {
			return base + "/" + prefix + "/" + name, nil
		}
		return base + "/" + name, nil
	case StorageTypeInline:
		return "", fmt.Errorf("%w: inline deletion vector has no file", ErrInvalidDeletionVector)
	default:
		return "", fmt.Errorf("%w: unknown storage type %q", ErrInvalidDeletionVector, dv.StorageType)
	}
}

func fileKey(path string, dv *DeletionVector) string {
	if dv == nil {
		return path
	}
	return path + "#" + dv.UniqueID()
}

func decodeZ85(s string) ([]byte, error) {
	if len(s)%5 != 0 {
		return nil, fmt.Errorf("%w: z85 input length %d is not a multiple of 5", ErrInvalidDeletionVector, len(s))
	}
	out := make([]byte, z85.DecodedLen(len(s)))
	if _, err := z85.Decode(out, []byte(s)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDeletionVector, err)
	}
	return out, nil
}

// encodeZ85 drops a trailing partial block.
func encodeZ85(b []byte) string {
	b = b[:len(b)-len(b)%4]
	out := make([]byte, z85.EncodedLen(len(b)))
	if _, err := z85.Encode(out, b); err != nil {
		return ""
	}
	return string(out)
}

// UUIDPathOrInlineDv builds the pathOrInlineDv value of a uuid-relative
// deletion vector stored under prefix.
func UUIDPathOrInlineDv(prefix string, id uuid.UUID) string {
	return prefix + encodeZ85(id[:])
}
