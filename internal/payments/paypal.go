package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

const (
	// DefaultPayPalBaseURL targets the PayPal sandbox.
	DefaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

	msgPayPalCancelled     = "PayPal payment was cancelled. Please try again."
	msgPayPalFailed        = "PayPal payment failed. Please try again or use a different payment method."
	msgPayPalCaptureFailed = "Failed to capture PayPal payment. Please try again."

	maxPayPalResponseBytes = 1 << 20
	tokenExpiryMargin      = time.Minute
)

// PayPalConfig configures the PayPalExecutor.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       Logger
	Clock        func() time.Time
}

// PayPalExecutor captures orders the shopper approved in the PayPal popup.
type PayPalExecutor struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	logger       Logger
	clock        func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewPayPalExecutor constructs a PayPalExecutor.
func NewPayPalExecutor(cfg PayPalConfig) (*PayPalExecutor, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultPayPalBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("paypal: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PayPalExecutor{
		baseURL:      base,
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		http:         httpClient,
		logger:       logger,
		clock:        clock,
	}, nil
}

type paypalCapture struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// Execute implements Executor. req.Token is the approved PayPal order id; an empty token means the
// shopper closed the PayPal window.
func (e *PayPalExecutor) Execute(ctx context.Context, req Request) (domain.PaymentReference, error) {
	orderID := strings.TrimSpace(req.Token)
	if orderID == "" {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalCancelled}
	}

	token, err := e.token(ctx)
	if err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalFailed, Err: err}
	}

	endpoint := e.baseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalFailed, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("PayPal-Request-Id", key)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalFailed, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayPalResponseBytes))
	if err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalFailed, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var perr paypalError
		_ = json.Unmarshal(body, &perr)
		message := msgPayPalCaptureFailed
		for _, detail := range perr.Details {
			if detail.Issue == "ORDER_NOT_APPROVED" {
				message = msgPayPalCancelled
			}
		}
		return domain.PaymentReference{}, &PaymentError{
			Method:  req.Method,
			Message: message,
			Err:     fmt.Errorf("paypal: capture status %d: %s %s", resp.StatusCode, perr.Name, perr.Message),
		}
	}

	var capture paypalCapture
	if err := json.Unmarshal(body, &capture); err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgPayPalCaptureFailed, Err: fmt.Errorf("paypal: decode capture: %w", err)}
	}
	if !strings.EqualFold(capture.Status, "COMPLETED") {
		return domain.PaymentReference{}, &PaymentError{
			Method:  req.Method,
			Message: msgPayPalCaptureFailed,
			Err:     fmt.Errorf("paypal: order %s in status %s", capture.ID, capture.Status),
		}
	}

	captureID := ""
	if len(capture.PurchaseUnits) > 0 && len(capture.PurchaseUnits[0].Payments.Captures) > 0 {
		captureID = capture.PurchaseUnits[0].Payments.Captures[0].ID
	}
	e.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"paypalOrder": capture.ID,
		"captureId":   captureID,
	})

	return domain.PaymentReference{
		Processor: domain.ProcessorPayPal,
		Token:     defaultString(capture.ID, orderID),
		Kind:      domain.ReferencePayPalOrder,
		Amount:    req.Amount,
	}, nil
}

func (e *PayPalExecutor) token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	if e.accessToken != "" && now.Add(tokenExpiryMargin).Before(e.expiresAt) {
		return e.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(e.clientID, e.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayPalResponseBytes))
		return "", fmt.Errorf("paypal: token request status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayPalResponseBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("paypal: decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("paypal: empty access token")
	}
	e.accessToken = payload.AccessToken
	e.expiresAt = now.Add(time.Duration(payload.ExpiresIn) * time.Second)
	return e.accessToken, nil
}
