package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yagpt/gateway/pkg/logger"
)

var ErrNoBucket = errors.New("bucket not configured")

// Config locates a bucket in S3-compatible storage
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// Object describes a stored document
type Object struct {
	Key  string
	ETag string
	Size int64
}

type Service struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Service{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// List returns every object under the configured prefix, skipping folder markers
func (s *Service) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, Object{
			Key:  info.Key,
			ETag: info.ETag,
			Size: info.Size,
		})
	}

	log := logger.For(logger.INDEX)
	log.Debug().
		Str("bucket", s.bucket).
		Str("prefix", s.prefix).
		Int("objects", len(objects)).
		Msg("Listed corpus objects")

	return objects, nil
}

// Read downloads an object as text
func (s *Service) Read(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return string(data), nil
}

// parseEndpoint accepts either a bare host or a URL and reports whether TLS should be used
func parseEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("storage endpoint not configured")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse storage endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("storage endpoint %q has no host", endpoint)
	}

	return u.Host, u.Scheme != "http", nil
}
