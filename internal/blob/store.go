package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrObjectNotFound = errors.New("blob object not found")

// Store holds uploaded submission files and request logs.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	// PublicURL returns a URL the object can be downloaded from without
	// credentials.
	PublicURL(key string) string
	// Bucket names the container objects are written to; it is recorded on
	// every file upload row.
	Bucket() string
}

type Config struct {
	Backend           string
	FSRoot            string
	Bucket            string
	PublicBaseURL     string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
}

func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "filesystem"
	}

	switch backend {
	case "filesystem", "fs", "local":
		return NewFilesystemStore(cfg.FSRoot, cfg.Bucket, cfg.PublicBaseURL)
	case "s3", "r2":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", backend)
	}
}

// joinURL appends an object key to a base URL, escaping each path segment.
func joinURL(base, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
