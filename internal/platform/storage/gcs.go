package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSStore stores objects in a Cloud Storage bucket.
type GCSStore struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

// NewGCSStore constructs a GCSStore. publicBaseURL defaults to the
// storage.googleapis.com address of the bucket.
func NewGCSStore(client *gcs.Client, bucket, publicBaseURL string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage gcs: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage gcs: bucket is required")
	}
	if strings.TrimSpace(publicBaseURL) == "" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{client: client, bucket: bucket, baseURL: publicBaseURL}, nil
}

// Put streams body into the bucket.
func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Object, error) {
	key, err := normaliseKey(key)
	if err != nil {
		return Object{}, err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = cacheControlOrDefault(opts.CacheControl)

	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("storage gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage gcs: close %s: %w", key, err)
	}
	return Object{Key: key, URL: s.PublicURL(key), ContentType: opts.ContentType, Size: n}, nil
}

// Copy duplicates srcKey to dstKey within the bucket.
func (s *GCSStore) Copy(ctx context.Context, srcKey, dstKey string) (Object, error) {
	src, err := normaliseKey(srcKey)
	if err != nil {
		return Object{}, err
	}
	dst, err := normaliseKey(dstKey)
	if err != nil {
		return Object{}, err
	}
	bucket := s.client.Bucket(s.bucket)
	if src == dst {
		return Object{Key: dst, URL: s.PublicURL(dst)}, nil
	}
	copier := bucket.Object(dst).CopierFrom(bucket.Object(src))
	attrs, err := copier.Run(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, src)
		}
		return Object{}, fmt.Errorf("storage gcs: copy %s: %w", src, err)
	}
	return Object{Key: dst, URL: s.PublicURL(dst), ContentType: attrs.ContentType, Size: attrs.Size}, nil
}

// Delete removes key. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage gcs: delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the anonymous read address of key.
func (s *GCSStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

// Ping checks bucket access.
func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage gcs: bucket attrs: %w", err)
	}
	return nil
}
