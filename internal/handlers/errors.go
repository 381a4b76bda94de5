package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/httpx"
	"github.com/brickmini/storefront/internal/platform/requestctx"
	"github.com/brickmini/storefront/internal/session"
)

// unavailableRetry is the Retry-After hint sent with 503 responses.
const unavailableRetry = 5 * time.Second

var catalogueUnavailable = httpx.NewError("catalogue_unavailable", "products could not be loaded", http.StatusServiceUnavailable).
	WithRetryAfter(unavailableRetry)

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func writeSessionError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, checkout.ErrClosed) {
		httpx.WriteError(ctx, w, httpx.NewError("session_invalid", "session has expired; start a new one", http.StatusUnauthorized))
		return
	}
	requestctx.Logger(ctx).Sugar().Warnw("session store unavailable", "error", err)
	httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session storage is temporarily unavailable", http.StatusServiceUnavailable).
		WithRetryAfter(unavailableRetry))
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("submission_in_flight", "an order is being submitted; try again when it finishes", http.StatusConflict))
	case errors.Is(err, checkout.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "your cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, checkout.ErrOrderLocked):
		httpx.WriteError(ctx, w, httpx.NewError("order_locked", "the order has been placed; the checkout resets shortly", http.StatusConflict))
	case errors.Is(err, checkout.ErrMethodUnavailable):
		const message = "the selected payment method is not available"
		httpx.WriteError(ctx, w, httpx.NewError("method_unavailable", message, http.StatusUnprocessableEntity).
			WithFieldErrors(domain.FieldErrors{domain.FieldPaymentMethod: message}))
	case errors.Is(err, checkout.ErrNotAwaitingAcknowledgement):
		httpx.WriteError(ctx, w, httpx.NewError("not_awaiting_acknowledgement", "no order is awaiting acknowledgement", http.StatusConflict))
	case errors.Is(err, checkout.ErrQuantityLimit):
		limit := "quantity must not exceed " + strconv.Itoa(domain.MaxLineQuantity)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", limit, http.StatusBadRequest).WithField("quantity", limit))
	case errors.Is(err, checkout.ErrUnknownField):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, checkout.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, checkout.ErrClosed), errors.Is(err, session.ErrNotFound):
		writeSessionError(ctx, w, err)
	default:
		requestctx.Logger(ctx).Sugar().Errorw("checkout operation failed", "error", err)
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
