package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrObjectNotFound is returned when a source object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	errEmptyKey       = errors.New("storage: object key is required")
)

// Object describes a stored object and its public address.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// PutOptions carry optional object metadata.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Size         int64
}

// ObjectStore is the object storage collaborator used for photos and music.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Object, error)
	Copy(ctx context.Context, srcKey, dstKey string) (Object, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	Ping(ctx context.Context) error
}

const defaultCacheControl = "public, max-age=31536000, immutable"

func joinURL(base, key string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	key = strings.TrimLeft(key, "/")
	if base == "" {
		return "/" + key
	}
	return base + "/" + key
}

func normaliseKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errEmptyKey
	}
	if strings.Contains(key, "..") {
		return "", errors.New("storage: object key contains invalid traversal sequence")
	}
	return key, nil
}

func cacheControlOrDefault(value string) string {
	if strings.TrimSpace(value) == "" {
		return defaultCacheControl
	}
	return value
}
