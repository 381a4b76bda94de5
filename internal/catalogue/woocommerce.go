package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultWooCommerceTimeout = 10 * time.Second
	wooCommercePageSize       = "100"
	maxWooCommerceBody        = 8 << 20
)

// ErrSourceNotConfigured is returned when credentials or the base URL are missing.
var ErrSourceNotConfigured = &SourceError{Message: "WooCommerce API is not configured. Please set the store URL, consumer key and consumer secret."}

// SourceError carries a message that is safe to show to shoppers.
type SourceError struct {
	Message string
	Status  int
}

func (e *SourceError) Error() string {
	return e.Message
}

// WooCommerceConfig holds REST API credentials.
type WooCommerceConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	HTTPClient     *http.Client
}

// WooCommerceSource reads published products from the WooCommerce REST API (v3).
type WooCommerceSource struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	http           *http.Client
}

// NewWooCommerceSource builds a source. An incomplete configuration yields a source whose fetches fail
// with ErrSourceNotConfigured so the loader falls back to the bundled catalogue.
func NewWooCommerceSource(cfg WooCommerceConfig) *WooCommerceSource {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultWooCommerceTimeout}
	}
	return &WooCommerceSource{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		consumerKey:    strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret: strings.TrimSpace(cfg.ConsumerSecret),
		http:           client,
	}
}

// Configured reports whether the source has everything it needs to call the API.
func (s *WooCommerceSource) Configured() bool {
	return s != nil && s.baseURL != "" && s.consumerKey != "" && s.consumerSecret != ""
}

// FetchProducts lists up to one page of published products.
func (s *WooCommerceSource) FetchProducts(ctx context.Context, query Query) ([]RawProduct, error) {
	if !s.Configured() {
		return nil, ErrSourceNotConfigured
	}
	endpoint, err := s.endpoint("products", query.normalized())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWooCommerceBody))
	if err != nil {
		return nil, fmt.Errorf("catalogue: read woocommerce response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SourceError{Message: wooCommerceError(resp.StatusCode, body), Status: resp.StatusCode}
	}

	var products []RawProduct
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("catalogue: decode woocommerce products: %w", err)
	}
	return products, nil
}

func (s *WooCommerceSource) endpoint(resource string, query Query) (string, error) {
	endpoint, err := url.JoinPath(s.baseURL, "wp-json", "wc", "v3", resource)
	if err != nil {
		return "", fmt.Errorf("catalogue: build woocommerce url: %w", err)
	}
	values := url.Values{}
	values.Set("per_page", wooCommercePageSize)
	values.Set("status", "publish")
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	if query.Featured {
		values.Set("featured", "true")
	}
	values.Set("consumer_key", s.consumerKey)
	values.Set("consumer_secret", s.consumerSecret)
	return endpoint + "?" + values.Encode(), nil
}

func wooCommerceError(status int, body []byte) string {
	fallback := fmt.Sprintf("WooCommerce request failed with status %d.", status)
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return fallback
}
