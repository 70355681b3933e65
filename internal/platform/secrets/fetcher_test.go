package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("sm://stripe-api-key?version=3&project=lg-prod")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if ref.Name != "stripe-api-key" || ref.Version != "3" || ref.Project != "lg-prod" {
		t.Fatalf("unexpected reference %+v", ref)
	}
	if ref.Key() != "secret://stripe-api-key" {
		t.Fatalf("unexpected key %q", ref.Key())
	}
	for _, raw := range []string{"", "postgres://db", "secret://", "stripe-api-key"} {
		if _, err := ParseReference(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestResolveCachesUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	name := "projects/lg/secrets/database-url/versions/latest"
	client.values[name] = "postgres://remote"

	now := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx,
		withClient(client),
		withClock(func() time.Time { return now }),
		WithProject("lg"),
		WithCacheTTL(time.Minute),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://database-url")
		if err != nil || got != "postgres://remote" {
			t.Fatalf("Resolve = %q, %v", got, err)
		}
	}
	if calls := client.calls(name); calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := fetcher.Resolve(ctx, "secret://database-url"); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if calls := client.calls(name); calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", calls)
	}

	fetcher.Invalidate("sm://database-url")
	if _, err := fetcher.Resolve(ctx, "secret://database-url"); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if calls := client.calls(name); calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerUnreachable(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.errs["projects/lg/secrets/stripe-api-key/versions/latest"] = status.Error(codes.Unavailable, "down")
	client.errs["projects/lg/secrets/S3_SECRET/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	path := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# dev secrets\nsm://stripe-api-key=\"sk_test_local\"\nS3_SECRET=abc\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("lg"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://stripe-api-key")
	if err != nil || got != "sk_test_local" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	got, err = fetcher.Resolve(ctx, "secret://S3_SECRET")
	if err != nil || got != "abc" {
		t.Fatalf("Resolve bare key = %q, %v", got, err)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("secret://missing=local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	fetcher, err := NewFetcher(ctx, withClient(newFakeClient()), WithProject("lg"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://missing"); err == nil {
		t.Fatal("expected not found to surface")
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	fetcher, err := NewFetcher(ctx, WithFallbackFile(filepath.Join(t.TempDir(), "absent")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()
	if _, err := fetcher.Resolve(ctx, "secret://database-url"); err == nil {
		t.Fatal("expected error for unknown secret")
	}
}

type fakeClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	count  map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, errs: map[string]error{}, count: map[string]int{}}
}

func (f *fakeClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count[req.GetName()]++
	if err := f.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[name]
}
