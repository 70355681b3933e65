package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps objects in process memory. It backs local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore constructs an empty store whose public URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), baseURL: baseURL}
}

// Put stores a copy of body.
func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Object, error) {
	key, err := normaliseKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Object{}, fmt.Errorf("storage memory: read %s: %w", key, err)
	}
	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: opts.ContentType}
	s.mu.Unlock()
	return Object{Key: key, URL: s.PublicURL(key), ContentType: opts.ContentType, Size: int64(len(data))}, nil
}

// Copy duplicates srcKey to dstKey.
func (s *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) (Object, error) {
	src, err := normaliseKey(srcKey)
	if err != nil {
		return Object{}, err
	}
	dst, err := normaliseKey(dstKey)
	if err != nil {
		return Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[src]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, src)
	}
	s.objects[dst] = memoryObject{data: bytes.Clone(obj.data), contentType: obj.contentType}
	return Object{Key: dst, URL: s.PublicURL(dst), ContentType: obj.contentType, Size: int64(len(obj.data))}, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Get returns the stored bytes of key.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// PublicURL returns baseURL joined with key.
func (s *MemoryStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
