// Package avatar stores user avatar images in S3-compatible object storage.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/user/contacts-api/config"
)

var (
	ErrUnsupportedType = errors.New("avatar: unsupported content type")
	ErrTooLarge        = errors.New("avatar: file too large")
	ErrEmpty           = errors.New("avatar: empty file")
)

// Storage uploads an avatar and returns the URL it can be fetched from.
type Storage interface {
	Upload(ctx context.Context, userID int64, r io.Reader, size int64, contentType string) (string, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Allowed reports whether contentType is an accepted avatar format.
func Allowed(contentType string) bool {
	_, ok := extensions[contentType]
	return ok
}

// Key returns the object key "avatars/<userID>/<uuid>.<ext>".
func Key(userID int64, contentType string) string {
	return path.Join("avatars", strconv.FormatInt(userID, 10), uuid.NewString()+extensions[contentType])
}

// MinioStorage is the MinIO/S3 adapter for Storage.
type MinioStorage struct {
	client    *mclient.Client
	bucket    string
	publicURL string
	maxBytes  int64
}

// NewMinioStorage connects to the endpoint and creates the bucket when it
// is missing.
func NewMinioStorage(ctx context.Context, cfg *config.StorageConfig) (*MinioStorage, error) {
	const op = "avatar.NewMinioStorage"

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, mclient.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: create bucket %q: %w", op, cfg.Bucket, err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		publicURL = scheme + "://" + endpoint + "/" + cfg.Bucket
	}

	return &MinioStorage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  cfg.MaxAvatarBytes,
	}, nil
}

func (s *MinioStorage) Upload(ctx context.Context, userID int64, r io.Reader, size int64, contentType string) (string, error) {
	const op = "avatar.MinioStorage.Upload"

	if !Allowed(contentType) {
		return "", ErrUnsupportedType
	}
	if size <= 0 {
		return "", ErrEmpty
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return "", ErrTooLarge
	}

	key := Key(userID, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, mclient.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s.publicURL + "/" + key, nil
}

var _ Storage = (*MinioStorage)(nil)
