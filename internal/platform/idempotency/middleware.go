package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brickmini/storefront/internal/platform/httpx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks responses served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	anonymousScope = "anonymous"
)

// Logger receives store failures that cannot be surfaced to the client.
type Logger interface {
	Printf(format string, args ...any)
}

type guard struct {
	store  Store
	next   http.Handler
	ttl    time.Duration
	now    func() time.Time
	scope  func(*http.Request) string
	logger Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*guard)

// WithTTL sets how long responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithScope namespaces keys per caller, for example by session id.
func WithScope(scope func(*http.Request) string) MiddlewareOption {
	return func(g *guard) {
		if scope != nil {
			g.scope = scope
		}
	}
}

// WithLogger receives persistence failures.
func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) {
		g.logger = logger
	}
}

// Middleware makes the wrapped handler safe to retry: the first response for an Idempotency-Key is stored
// and replayed for identical requests within the TTL. Requests without the header are rejected.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := &guard{
			store: store,
			next:  next,
			ttl:   DefaultTTL,
			now:   time.Now,
			scope: func(*http.Request) string { return anonymousScope },
		}
		for _, opt := range opts {
			if opt != nil {
				opt(g)
			}
		}
		return g
	}
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(HeaderName))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing Idempotency-Key header", http.StatusBadRequest))
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	scope := strings.TrimSpace(g.scope(r))
	if scope == "" {
		scope = anonymousScope
	}
	scoped := scope + "|" + key
	fingerprint := fingerprintOf(r, body, scope)

	reservation, err := g.store.Reserve(ctx, scoped, fingerprint, g.now(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	case err != nil:
		g.logf("idempotency: reserve %s: %v", key, err)
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
		return
	}

	rec := &bufferedWriter{header: make(http.Header)}
	g.next.ServeHTTP(rec, r)

	resp := Response{Status: rec.statusCode(), Headers: rec.header, Body: rec.body.Bytes()}
	if err := g.store.SaveResponse(ctx, scoped, fingerprint, resp, g.now(), g.ttl); err != nil {
		g.logf("idempotency: save %s: %v", key, err)
		if releaseErr := g.store.Release(ctx, scoped, fingerprint); releaseErr != nil {
			g.logf("idempotency: release %s: %v", key, releaseErr)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
		return
	}
	rec.flushTo(w)
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintOf(r *http.Request, body []byte, scope string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		scope,
		digest(body),
	}
	return digest([]byte(strings.Join(parts, "|")))
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append([]string(nil), values...)
	}
	header.Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}
