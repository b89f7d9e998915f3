package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
)

// IBlobClient is the read-only object access the table log needs. Keys are
// relative to the client's root (a bucket prefix or a local directory).
type IBlobClient interface {
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)
	ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error)
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

type BlobInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}
