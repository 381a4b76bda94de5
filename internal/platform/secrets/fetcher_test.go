package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeResource = "projects/brickmini/secrets/stripe_secret_key/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_test_remote"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("brickmini"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "sk_test_remote" {
			t.Fatalf("expected sk_test_remote, got %s", got)
		}
	}

	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveRefetchesAfterCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_test_old"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("brickmini"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	client.set(stripeResource, "sk_test_rotated")
	now = now.Add(2 * time.Minute)

	got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_test_rotated" {
		t.Fatalf("expected rotated secret, got %s", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_test_remote"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("brickmini"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	fetcher.Invalidate("secret://stripe_secret_key")
	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if calls := client.callCount(stripeResource); calls != 2 {
		t.Fatalf("expected two remote fetches, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/other/secrets/paypal_client_secret/versions/5"
	client.values[resource] = "paypal-v5"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("brickmini"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://paypal_client_secret?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "paypal-v5" {
		t.Fatalf("expected paypal-v5, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "# local secrets\nsecret://stripe_secret_key=sk_test_local\n")

	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("brickmini"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_test_local" {
		t.Fatalf("expected fallback secret, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "secret://stripe_secret_key=sk_test_local\n")

	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("brickmini"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	path := writeFallback(t, "sm://session_secret=local-session-secret\n")
	fetcher, err := NewFetcher(ctx, WithProject("brickmini"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.ResolveSecret(ctx, "secret://session_secret")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if value != "local-session-secret" {
		t.Fatalf("expected local secret, got %s", value)
	}
}

func TestResolveRejectsMalformedReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	for _, ref := range []string{"", "https://example.com/secret", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	f.values[name] = value
	f.mu.Unlock()
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
