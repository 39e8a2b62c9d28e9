package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kamilpajak/deoptviewer/internal/commonroot"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

const objectScheme = "s3://"

// ObjectStore reads objects from an S3-compatible store.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// MinioStore is an ObjectStore backed by minio-go.
type MinioStore struct {
	mc *minio.Client
}

// NewMinioStore connects to an S3-compatible endpoint. region may be empty.
func NewMinioStore(endpoint, accessKey, secretKey, region string, useSSL bool) (*MinioStore, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &MinioStore{mc: mc}, nil
}

// GetObject downloads the whole object.
func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// parseObjectURI splits s3://bucket/key into its parts.
func parseObjectURI(id string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(id, objectScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object URI %q, want s3://bucket/key", id)
	}
	return bucket, key, nil
}

func (l *Locator) resolveObject(ctx context.Context, id, root string) (models.Resolution, error) {
	res := models.Resolution{SrcPath: id, RelativePath: commonroot.Relative(id, root)}

	bucket, key, err := parseObjectURI(id)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	data, err := l.objects.GetObject(ctx, bucket, key)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	res.Src = toText(data)
	return res, nil
}
