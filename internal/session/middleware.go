package session

import (
	"errors"
	"net/http"

	"github.com/brickmini/storefront/internal/platform/httpx"
	"github.com/brickmini/storefront/internal/platform/requestctx"
)

// HeaderName carries the session token on every shopper request.
const HeaderName = "X-Session-Token"

// Require rejects requests without a valid session token and stores the session id on the
// request context.
func (m *Manager) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, err := m.Resolve(r.Header.Get(HeaderName))
			switch {
			case errors.Is(err, ErrTokenMissing):
				httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session token is required", http.StatusUnauthorized))
				return
			case err != nil:
				httpx.WriteError(ctx, w, httpx.NewError("session_invalid", "session token is invalid or expired", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(ctx, id)))
		})
	}
}
