package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/brickmini/storefront/internal/domain"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestWriteErrorCarriesFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	err := NewError("invalid_request", "checkout form is incomplete", http.StatusUnprocessableEntity).
		WithFieldErrors(domain.FieldErrors{
			domain.FieldZip:   "ZIP code must be 5 digits",
			domain.FieldEmail: "Please enter a valid email address",
		}).
		WithRequestID("req-1")
	WriteError(context.Background(), rr, err)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := decodeEnvelope(t, rr)
	if body.Code != "invalid_request" || body.Status != http.StatusUnprocessableEntity || body.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.Fields["zip"] != "ZIP code must be 5 digits" || len(body.Fields) != 2 {
		t.Fatalf("unexpected fields %v", body.Fields)
	}
}

func TestWithFieldDoesNotShareMaps(t *testing.T) {
	base := NewError("invalid_request", "bad input", http.StatusBadRequest).WithField("quantity", "too large")
	derived := base.WithField("productId", "required")
	if len(base.Fields) != 1 || len(derived.Fields) != 2 {
		t.Fatalf("expected copy on write, got base=%v derived=%v", base.Fields, derived.Fields)
	}
	if unchanged := base.WithField(" ", "ignored"); len(unchanged.Fields) != 1 {
		t.Fatalf("blank field names should be ignored, got %v", unchanged.Fields)
	}
}

func TestWriteErrorRetryAfterRoundsUp(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("rate_limited", "slow down", http.StatusTooManyRequests).WithRetryAfter(1500*time.Millisecond))
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	rr = httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("internal_error", "boom", 0))
	if rr.Code != http.StatusInternalServerError || rr.Header().Get("Retry-After") != "" {
		t.Fatalf("unexpected response %d %v", rr.Code, rr.Header())
	}
}

func TestNewErrorCleansInput(t *testing.T) {
	err := NewError("bad\ncode", strings.Repeat("é", messageLimit), http.StatusBadRequest)
	if err.Code != "bad code" {
		t.Fatalf("expected control characters replaced, got %q", err.Code)
	}
	if len(err.Message) > messageLimit || !strings.HasPrefix(err.Message, "é") {
		t.Fatalf("unexpected truncation to %d bytes", len(err.Message))
	}
	if !utf8.ValidString(err.Message) {
		t.Fatalf("truncation split a rune")
	}
}
