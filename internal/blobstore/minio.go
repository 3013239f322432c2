package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioObjects is the production ObjectStore, keeping payloads as chunked
// objects in a single bucket.
type MinioObjects struct {
	client *minio.Client
	bucket string
}

// keyPrefix keeps payload objects under a stable, non-guessable prefix so
// bucket keys never derive from client-supplied names.
const keyPrefix = "blobs/"

// MinioConfig carries the connection settings for the payload bucket.
type MinioConfig struct {
	Endpoint  string // "minio:9000" or "http://minio:9000"
	AccessKey string
	SecretKey string
	Bucket    string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinioObjects connects to the bucket and verifies it exists. Called once
// at process start; the returned client is shared by all requests.
func NewMinioObjects(ctx context.Context, cfg MinioConfig) (*MinioObjects, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("object store configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket does not exist: %s", cfg.Bucket)
	}

	return &MinioObjects{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioObjects) Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) (int64, error) {
	info, err := m.client.PutObject(ctx, m.bucket, keyPrefix+id, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (m *MinioObjects) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, keyPrefix+id, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat forces an early error for a missing object.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *MinioObjects) Remove(ctx context.Context, id string) error {
	return m.client.RemoveObject(ctx, m.bucket, keyPrefix+id, minio.RemoveObjectOptions{})
}

func (m *MinioObjects) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket does not exist: %s", m.bucket)
	}
	return nil
}
