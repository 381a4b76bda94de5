package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/platform/httpx"
	"github.com/brickmini/storefront/internal/platform/requestctx"
	"github.com/brickmini/storefront/internal/session"
)

// Sessions is the subset of session.Manager the handlers use.
type Sessions interface {
	Create(ctx context.Context) (session.Session, error)
	End(ctx context.Context, id string) error
	Controller(ctx context.Context, id string) (*checkout.Controller, error)
	Persist(ctx context.Context, id string) error
}

// SessionHandlers issues and ends shopper sessions.
type SessionHandlers struct {
	sessions Sessions
	require  func(http.Handler) http.Handler
	limiter  *windowLimiter
}

// SessionOption customises SessionHandlers.
type SessionOption func(*SessionHandlers)

// WithSessionRateLimit caps how many sessions one client address may open per window.
func WithSessionRateLimit(limit int, every time.Duration, clock func() time.Time) SessionOption {
	return func(h *SessionHandlers) {
		h.limiter = newWindowLimiter(limit, every, clock)
	}
}

// NewSessionHandlers constructs the handlers. require authenticates DELETE requests.
func NewSessionHandlers(sessions Sessions, require func(http.Handler) http.Handler, opts ...SessionOption) *SessionHandlers {
	h := &SessionHandlers{sessions: sessions, require: require}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /session endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Group(func(authed chi.Router) {
		if h.require != nil {
			authed.Use(h.require)
		}
		authed.Delete("/", h.end)
	})
}

func (h *SessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ok, wait := h.limiter.allow(clientKey(r)); !ok {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many sessions requested; try again later", http.StatusTooManyRequests).
			WithRetryAfter(wait))
		return
	}
	sess, err := h.sessions.Create(ctx)
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, sess)
}

func (h *SessionHandlers) end(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := requestctx.SessionID(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session token is required", http.StatusUnauthorized))
		return
	}
	if err := h.sessions.End(ctx, id); err != nil {
		writeSessionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// shopper resolves the authenticated session's controller.
type shopper struct {
	id   string
	ctrl *checkout.Controller
}

func loadShopper(ctx context.Context, w http.ResponseWriter, sessions Sessions) (shopper, bool) {
	id, ok := requestctx.SessionID(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session token is required", http.StatusUnauthorized))
		return shopper{}, false
	}
	ctrl, err := sessions.Controller(ctx, id)
	if err != nil {
		writeSessionError(ctx, w, err)
		return shopper{}, false
	}
	return shopper{id: id, ctrl: ctrl}, true
}

// persist saves the session after a mutation. A failed save is logged; the in-process state
// stays authoritative.
func persist(ctx context.Context, sessions Sessions, id string) {
	if err := sessions.Persist(ctx, id); err != nil {
		requestctx.Logger(ctx).Sugar().Warnw("session persist failed", "error", err)
	}
}
