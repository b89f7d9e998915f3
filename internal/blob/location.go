package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported location scheme")
)

// Location is a parsed table location.
type Location struct {
	Scheme   string
	Bucket   string
	Prefix   string
	LocalDir string
}

// BasePath returns the location rendered as the prefix of data file paths.
func (l *Location) BasePath() string {
	if l.Scheme == "s3" {
		if l.Prefix == "" {
			return "s3://" + l.Bucket
		}
		return "s3://" + l.Bucket + "/" + l.Prefix
	}
	return filepath.ToSlash(l.LocalDir)
}

// ParseLocation accepts s3://, s3a://, file:// URIs and bare filesystem paths.
func ParseLocation(uri string) (*Location, error) {
	if uri == "" {
		return nil, errors.New("location cannot be empty")
	}

	if !strings.Contains(uri, "://") {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return nil, err
		}
		return &Location{Scheme: "file", LocalDir: filepath.Clean(abs)}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", uri, err)
	}

	switch u.Scheme {
	case "s3", "s3a":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid location %q: missing bucket", uri)
		}
		return &Location{
			Scheme: "s3",
			Bucket: u.Host,
			Prefix: strings.Trim(u.Path, "/"),
		}, nil
	case "file":
		return &Location{Scheme: "file", LocalDir: filepath.Clean(filepath.FromSlash(u.Path))}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// OpenLocation parses uri and returns a client rooted at it. s3cfg supplies
// credentials and endpoint for s3 locations; bucket and prefix come from uri.
func OpenLocation(ctx context.Context, uri string, s3cfg *S3BlobConfig) (IBlobClient, *Location, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, nil, err
	}

	if loc.Scheme == "file" {
		return NewLocalClient(loc.LocalDir), loc, nil
	}

	cfg := &S3BlobConfig{}
	if s3cfg != nil {
		*cfg = *s3cfg
	}
	cfg.BucketName = loc.Bucket
	cfg.Prefix = loc.Prefix

	client, err := NewBlobClientWithS3Config(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, loc, nil
}
