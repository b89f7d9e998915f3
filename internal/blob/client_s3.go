package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type BlobClient struct {
	s3Client *s3.Client
	config   *S3BlobConfig
}

func NewBlobClient(s3Client *s3.Client, config *S3BlobConfig) *BlobClient {
	return &BlobClient{
		s3Client: s3Client,
		config:   config,
	}
}

func NewBlobClientWithS3Config(ctx context.Context, cfg *S3BlobConfig) (*BlobClient, error) {
	// the buildable client lets the SDK add a custom CA bundle (AWS_CA_BUNDLE)
	httpClient := awshttp.NewBuildableClient().
		WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyFromEnvironment
			tr.MaxIdleConns = 64
			tr.MaxIdleConnsPerHost = 32
			tr.IdleConnTimeout = 90 * time.Second
			tr.TLSHandshakeTimeout = 10 * time.Second
			tr.ExpectContinueTimeout = 1 * time.Second
			tr.ForceAttemptHTTP2 = true
		}).
		WithTimeout(30 * time.Second)

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	// fall back to the default credential chain when no static keys are configured
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewBlobClient(awsClient, cfg), nil
}

func (s *BlobClient) objectKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return path.Join(s.config.Prefix, key)
}

func (s *BlobClient) relativeKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.config.Prefix), "/")
}

// ===================================================================================================

func (s *BlobClient) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	fullKey := s.objectKey(key)
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &fullKey,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, s.config.BucketName, fullKey)
		}
		return nil, err
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         strings.ReplaceAll(aws.ToString(resp.ETag), "\"", ""),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

// ===================================================================================================

func (s *BlobClient) ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error) {
	var objects []*BlobInfo

	fullPrefix := s.objectKey(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}

	// Create a paginator from the ListObjectsV2 API
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: aws.String(fullPrefix),
	})

	// Iterate through all pages
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			objects = append(objects, &BlobInfo{
				Key:          s.relativeKey(aws.ToString(obj.Key)),
				ETag:         strings.ReplaceAll(aws.ToString(obj.ETag), "\"", ""),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// check if BlobClient implements IBlobClient interface
var _ IBlobClient = (*BlobClient)(nil)
