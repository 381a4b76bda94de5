package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brickmini/storefront/internal/domain"
)

func newPayPalServer(t *testing.T, capture http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/", capture)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newTestPayPalExecutor(t *testing.T, baseURL string) *PayPalExecutor {
	t.Helper()
	exec, err := NewPayPalExecutor(PayPalConfig{BaseURL: baseURL, ClientID: "client", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("new paypal executor: %v", err)
	}
	return exec
}

func TestPayPalExecutorCapturesOrder(t *testing.T) {
	var requestID string
	srv, tokenCalls := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/checkout/orders/ORDER-1/capture" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		requestID = r.Header.Get("PayPal-Request-Id")
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED"}]}}]}`))
	})
	exec := newTestPayPalExecutor(t, srv.URL)

	for i := 0; i < 2; i++ {
		ref, err := exec.Execute(context.Background(), Request{Method: domain.PaymentPayPal, Token: "ORDER-1", Amount: 2500, IdempotencyKey: "attempt"})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if ref.Token != "ORDER-1" || ref.Kind != domain.ReferencePayPalOrder || ref.Processor != domain.ProcessorPayPal || ref.Amount != 2500 {
			t.Fatalf("unexpected reference %+v", ref)
		}
	}
	if atomic.LoadInt32(tokenCalls) != 1 {
		t.Fatalf("expected access token to be cached, got %d token calls", *tokenCalls)
	}
	if requestID != "attempt" {
		t.Fatalf("expected PayPal-Request-Id header, got %q", requestID)
	}
}

func TestPayPalExecutorEmptyTokenIsCancellation(t *testing.T) {
	exec := newTestPayPalExecutor(t, "http://127.0.0.1:1")
	_, err := exec.Execute(context.Background(), Request{Method: domain.PaymentPayPal})
	if UserMessage(err) != msgPayPalCancelled {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
}

func TestPayPalExecutorCaptureErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "not approved", status: http.StatusUnprocessableEntity, body: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`, message: msgPayPalCancelled},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, message: msgPayPalCaptureFailed},
		{name: "pending", status: http.StatusOK, body: `{"id":"ORDER-1","status":"PENDING"}`, message: msgPayPalCaptureFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newPayPalServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			exec := newTestPayPalExecutor(t, srv.URL)
			_, err := exec.Execute(context.Background(), Request{Method: domain.PaymentPayPal, Token: "ORDER-1"})
			if UserMessage(err) != tc.message {
				t.Fatalf("expected %q, got %q (%v)", tc.message, UserMessage(err), err)
			}
		})
	}
}

func TestPayPalExecutorTokenFailure(t *testing.T) {
	srv, _ := newPayPalServer(t, func(http.ResponseWriter, *http.Request) {})
	exec, err := NewPayPalExecutor(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "wrong"})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	_, err = exec.Execute(context.Background(), Request{Method: domain.PaymentPayPal, Token: "ORDER-1"})
	if UserMessage(err) != msgPayPalFailed {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
}
