package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// LocalClient serves objects from a directory on the local filesystem.
type LocalClient struct {
	rootDir string
	fsys    fs.FS
}

func NewLocalClient(rootDir string) *LocalClient {
	return &LocalClient{
		rootDir: rootDir,
		fsys:    os.DirFS(rootDir),
	}
}

func (c *LocalClient) RootDir() string {
	return c.rootDir
}

func (c *LocalClient) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(c.rootDir, filepath.FromSlash(key))
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, fullPath)
		}
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &GetObjectResponse{
		Body:         file,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// ListObjects returns every file whose key starts with prefix. Like S3, the
// prefix is a plain string match, not a directory.
func (c *LocalClient) ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	pattern := "**"
	if dir := path.Dir(prefix); dir != "." && dir != "/" {
		pattern = dir + "/**"
	}
	if strings.HasSuffix(prefix, "/") {
		pattern = strings.TrimSuffix(prefix, "/") + "/**"
	}

	var objects []*BlobInfo
	err := doublestar.GlobWalk(c.fsys, pattern, func(key string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", key, err)
		}
		objects = append(objects, &BlobInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	return objects, nil
}

var _ IBlobClient = (*LocalClient)(nil)
