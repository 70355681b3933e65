package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestMemoryStorePutCopyDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("https://cdn.example.com/lg/")

	obj, err := store.Put(ctx, "/drafts/d1/photos/a.jpg", strings.NewReader("jpeg"), PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Key != "drafts/d1/photos/a.jpg" || obj.URL != "https://cdn.example.com/lg/drafts/d1/photos/a.jpg" || obj.Size != 4 {
		t.Fatalf("unexpected object %+v", obj)
	}

	copied, err := store.Copy(ctx, obj.Key, "galleries/photos/a.jpg")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if data, ok := store.Get(copied.Key); !ok || string(data) != "jpeg" {
		t.Fatalf("copied data mismatch: %q", data)
	}

	if err := store.Delete(ctx, obj.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Copy(ctx, obj.Key, "x"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one object left, got %d", store.Len())
	}
}

func TestMemoryStoreRejectsTraversal(t *testing.T) {
	store := NewMemoryStore("")
	if _, err := store.Put(context.Background(), "a/../b", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("expected traversal error")
	}
}

type stubS3 struct {
	put    *s3.PutObjectInput
	body   string
	copy   *s3.CopyObjectInput
	copyFn func() error
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.put = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	s.copy = in
	if s.copyFn != nil {
		if err := s.copyFn(); err != nil {
			return nil, err
		}
	}
	return &s3.CopyObjectOutput{}, nil
}

func (s *stubS3) DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func (s *stubS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3StorePutUsesSeekableBody(t *testing.T) {
	api := &stubS3{}
	store, err := NewS3Store(api, S3Config{
		Bucket:        "love",
		PublicBaseURL: "https://abc.supabase.co/storage/v1/object/public/love",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	obj, err := store.Put(context.Background(), "galleries/photos/a b.jpg", io.MultiReader(strings.NewReader("hello")), PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if api.body != "hello" || aws.ToInt64(api.put.ContentLength) != 5 {
		t.Fatalf("unexpected upload body=%q length=%d", api.body, aws.ToInt64(api.put.ContentLength))
	}
	if aws.ToString(api.put.ContentType) != "image/jpeg" || aws.ToString(api.put.CacheControl) != defaultCacheControl {
		t.Fatalf("unexpected metadata %+v", api.put)
	}
	if obj.URL != "https://abc.supabase.co/storage/v1/object/public/love/galleries/photos/a b.jpg" {
		t.Fatalf("unexpected url %s", obj.URL)
	}
}

func TestS3StoreCopyMapsMissingSource(t *testing.T) {
	api := &stubS3{copyFn: func() error { return &s3types.NoSuchKey{} }}
	store, err := NewS3Store(api, S3Config{Bucket: "love", Region: "ap-south-1"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Copy(context.Background(), "drafts/d 1/a.jpg", "galleries/a.jpg")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if got := aws.ToString(api.copy.CopySource); got != "love/drafts/d%201/a.jpg" {
		t.Fatalf("unexpected copy source %q", got)
	}
	if store.PublicURL("x.jpg") != "https://love.s3.ap-south-1.amazonaws.com/x.jpg" {
		t.Fatalf("unexpected default public url %s", store.PublicURL("x.jpg"))
	}
}
