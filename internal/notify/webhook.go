package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

const (
	// PlaceholderWebhookURL is the unconfigured value shipped in sample environments.
	PlaceholderWebhookURL = "your_make_webhook_url_here"
	// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is configured.
	SignatureHeader = "X-Storefront-Signature"

	defaultWebhookTimeout = 10 * time.Second
)

// WebhookConfig configures the automation webhook.
type WebhookConfig struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     Logger
}

// WebhookNotifier posts order payloads to an automation webhook such as a Make.com scenario.
type WebhookNotifier struct {
	url    string
	secret []byte
	http   *http.Client
	now    func() time.Time
	logger Logger
}

// NewWebhookNotifier builds a notifier for cfg. An empty or placeholder URL yields a notifier that skips every order.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    strings.TrimSpace(cfg.URL),
		http:   cfg.HTTPClient,
		now:    cfg.Clock,
		logger: cfg.Logger,
	}
	if secret := strings.TrimSpace(cfg.Secret); secret != "" {
		n.secret = []byte(secret)
	}
	if n.http == nil {
		n.http = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.logger == nil {
		n.logger = nopLogger
	}
	return n
}

// Enabled reports whether a real webhook URL is configured.
func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.url != "" && n.url != PlaceholderWebhookURL
}

func (n *WebhookNotifier) Notify(ctx context.Context, draft domain.OrderDraft, orderNumber, orderID string) bool {
	if !n.Enabled() {
		n.logger(ctx, "notify.webhook_disabled", map[string]any{"orderNumber": orderNumber})
		return false
	}

	body, err := json.Marshal(NewOrderPayload(draft, orderNumber, orderID, n.now()))
	if err != nil {
		n.logger(ctx, "notify.webhook_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger(ctx, "notify.webhook_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.http.Do(req)
	if err != nil {
		n.logger(ctx, "notify.webhook_failed", map[string]any{"orderNumber": orderNumber, "error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger(ctx, "notify.webhook_failed", map[string]any{"orderNumber": orderNumber, "status": resp.StatusCode})
		return false
	}
	n.logger(ctx, "notify.webhook_sent", map[string]any{"orderNumber": orderNumber})
	return true
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
