package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/requestctx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubPlacer struct{}

func (stubPlacer) Place(context.Context, domain.OrderDraft) domain.OrderResult {
	return domain.OrderResult{Success: true, OrderNumber: "ORD-1", OrderID: "1"}
}

func newManager(t *testing.T, store Store) *Manager {
	t.Helper()
	svc, err := checkout.NewService(checkout.Deps{Orders: stubPlacer{}})
	require.NoError(t, err)
	tokens, err := NewTokens(testSecret, time.Hour, nil)
	require.NoError(t, err)
	m, err := NewManager(ManagerDeps{Checkout: svc, Store: store, Tokens: tokens})
	require.NoError(t, err)
	return m
}

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Hour, nil)
	require.NoError(t, err)

	raw, expires, err := tokens.Issue("01HSESSION")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	id, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "01HSESSION", id)
}

func TestTokensRejectBadInput(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, err := NewTokens(testSecret, time.Minute, clock)
	require.NoError(t, err)

	_, err = tokens.Parse("  ")
	assert.ErrorIs(t, err, ErrTokenMissing)

	_, err = tokens.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewTokens("fedcba9876543210fedcba9876543210", time.Minute, clock)
	require.NoError(t, err)
	foreign, _, err := other.Issue("abc")
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	raw, _, err := tokens.Issue("abc")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = NewTokens("short", time.Minute, nil)
	assert.Error(t, err)
}

func TestMemoryStoreExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	state := checkout.Initial()
	state.Form.Email = "jane@example.com"
	require.NoError(t, store.Save(ctx, "s1", state, time.Minute))

	got, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", got.Form.Email)

	now = now.Add(time.Minute)
	_, ok, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "short", checkout.Initial(), time.Minute))
	require.NoError(t, store.Save(ctx, "long", checkout.Initial(), time.Hour))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	_, ok, err := store.Load(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, "")
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	state := checkout.Initial()
	state.Cart.Add(domain.Product{ID: 7, Name: "Rocket", Price: 19.99})
	require.NoError(t, store.Save(ctx, "s1", state, 30*time.Minute))
	assert.Equal(t, 30*time.Minute, mr.TTL(defaultRedisPrefix+"s1"))

	got, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Cart.Count())

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists(defaultRedisPrefix+"s1"))
}

func TestManagerRestoresEvictedSession(t *testing.T) {
	store := NewMemoryStore(nil)
	m := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	id, err := m.Resolve(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, id)

	ctrl, err := m.Controller(ctx, id)
	require.NoError(t, err)
	_, err = ctrl.AddToCart(domain.Product{ID: 3, Name: "Castle", Price: 49.5})
	require.NoError(t, err)
	require.NoError(t, m.Persist(ctx, id))

	m.Evict(id)
	assert.True(t, ctrl.Closed())
	assert.Equal(t, 0, m.Live())

	restored, err := m.Controller(ctx, id)
	require.NoError(t, err)
	assert.NotSame(t, ctrl, restored)
	assert.Equal(t, 1, restored.Snapshot().Cart.Count())
}

type blockingPlacer struct {
	release chan struct{}
}

func (p blockingPlacer) Place(context.Context, domain.OrderDraft) domain.OrderResult {
	<-p.release
	return domain.OrderResult{Success: true, OrderNumber: "ORD-2", OrderID: "2"}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManagerSweepsIdleControllers(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	placer := blockingPlacer{release: make(chan struct{})}
	svc, err := checkout.NewService(checkout.Deps{Orders: placer, Clock: clock.Now})
	require.NoError(t, err)
	tokens, err := NewTokens(testSecret, time.Hour, clock.Now)
	require.NoError(t, err)
	m, err := NewManager(ManagerDeps{Checkout: svc, Store: store, Tokens: tokens, Clock: clock.Now, IdleTimeout: 15 * time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	idle, err := m.Create(ctx)
	require.NoError(t, err)
	active, err := m.Create(ctx)
	require.NoError(t, err)
	busy, err := m.Create(ctx)
	require.NoError(t, err)

	idleCtrl, err := m.Controller(ctx, idle.ID)
	require.NoError(t, err)
	_, err = idleCtrl.AddToCart(domain.Product{ID: 3, Name: "Castle", Price: 49.5})
	require.NoError(t, err)

	busyCtrl, err := m.Controller(ctx, busy.ID)
	require.NoError(t, err)
	_, err = busyCtrl.AddToCart(domain.Product{ID: 4, Name: "Rocket", Price: 19.5})
	require.NoError(t, err)
	form := map[domain.Field]string{
		domain.FieldFirstName: "Jane", domain.FieldLastName: "Doe", domain.FieldEmail: "jane@example.com",
		domain.FieldAddress: "1 Main St", domain.FieldCity: "Springfield", domain.FieldState: "IL", domain.FieldZip: "62704",
	}
	for field, value := range form {
		_, err = busyCtrl.EditField(field, value)
		require.NoError(t, err)
	}
	_, err = busyCtrl.Select(domain.PaymentCashOnDelivery, checkout.Capabilities{})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = busyCtrl.Submit(ctx, checkout.SubmitInput{})
	}()
	require.Eventually(t, func() bool { return busyCtrl.Snapshot().Busy() }, time.Second, time.Millisecond)

	clock.Advance(20 * time.Minute)
	activeCtrl, err := m.Controller(ctx, active.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, 2, m.Live())
	assert.True(t, idleCtrl.Closed())
	assert.False(t, activeCtrl.Closed())
	assert.False(t, busyCtrl.Closed(), "a submission in flight keeps its controller")

	restored, err := m.Controller(ctx, idle.ID)
	require.NoError(t, err)
	assert.NotSame(t, idleCtrl, restored)
	assert.Equal(t, 1, restored.Snapshot().Cart.Count(), "unsaved changes are flushed before eviction")

	close(placer.release)
	<-done
}

func TestManagerSweepReleasesExpiredSessions(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	svc, err := checkout.NewService(checkout.Deps{Orders: stubPlacer{}, Clock: clock.Now})
	require.NoError(t, err)
	tokens, err := NewTokens(testSecret, time.Hour, clock.Now)
	require.NoError(t, err)
	m, err := NewManager(ManagerDeps{Checkout: svc, Store: store, Tokens: tokens, Clock: clock.Now})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := m.Create(ctx)
		require.NoError(t, err)
	}
	clock.Advance(48 * time.Hour)
	assert.Equal(t, 50, store.Sweep())
	assert.Equal(t, 50, m.Sweep(ctx))
	assert.Equal(t, 0, m.Live())
}

func TestManagerReleasesInterruptedSubmission(t *testing.T) {
	store := NewMemoryStore(nil)
	m := newManager(t, store)
	ctx := context.Background()

	busy := checkout.Initial()
	busy.Phase = checkout.PhasePaymentPending
	busy.Submitting = true
	busy.PaymentProcessing = true
	require.NoError(t, store.Save(ctx, "s1", busy, time.Hour))

	ctrl, err := m.Controller(ctx, "s1")
	require.NoError(t, err)
	state := ctrl.Snapshot()
	assert.False(t, state.Busy())
	assert.Equal(t, checkout.PhaseFailed, state.Phase)
	assert.Equal(t, interruptedSubmission, state.PaymentError)
}

func TestManagerEndDeletesState(t *testing.T) {
	store := NewMemoryStore(nil)
	m := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	ctrl, err := m.Controller(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, sess.ID))
	assert.True(t, ctrl.Closed())

	_, err = m.Controller(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequireMiddleware(t *testing.T) {
	m := newManager(t, nil)
	sess, err := m.Create(context.Background())
	require.NoError(t, err)

	var seen string
	handler := m.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.SessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "invalid", token: "garbage", status: http.StatusUnauthorized},
		{name: "valid", token: sess.Token, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/cart", nil)
			if tc.token != "" {
				req.Header.Set(HeaderName, tc.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, sess.ID, seen)
}
