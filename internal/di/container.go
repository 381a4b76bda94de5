package di

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/brickmini/storefront/internal/catalogue"
	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/notify"
	"github.com/brickmini/storefront/internal/orders"
	"github.com/brickmini/storefront/internal/payments"
	"github.com/brickmini/storefront/internal/platform/config"
	pfirestore "github.com/brickmini/storefront/internal/platform/firestore"
	"github.com/brickmini/storefront/internal/platform/idempotency"
	"github.com/brickmini/storefront/internal/platform/observability"
	"github.com/brickmini/storefront/internal/session"
)

// Infra carries the external clients the container builds on. A nil member selects the
// in-process implementation of whatever depends on it.
type Infra struct {
	Redis       redis.UniversalClient
	Firestore   *pfirestore.Provider
	OrderTopic  *pubsub.Topic
	ImageSigner catalogue.URLSigner
	HTTPClient  *http.Client
	Meter       metric.Meter
}

// Container wires payments, orders, catalogue, checkout and sessions for runtime use.
type Container struct {
	Config      config.Config
	Payments    *payments.Registry
	Orders      *orders.Service
	Catalogue   *catalogue.Loader
	Checkout    *checkout.Service
	Sessions    *session.Manager
	Idempotency idempotency.Store

	sweepers []func() int
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, infra Infra, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	events := func(name string) observability.EventFunc {
		return observability.EventLogger(logger.Named(name))
	}
	c := &Container{Config: cfg}

	idem, err := c.buildIdempotency(infra)
	if err != nil {
		return nil, fmt.Errorf("build idempotency store: %w", err)
	}
	c.Idempotency = idem

	registry, err := buildPayments(cfg, infra, payments.Logger(events("payments")))
	if err != nil {
		return nil, fmt.Errorf("build payments: %w", err)
	}
	c.Payments = registry

	backend, err := buildOrderBackend(cfg, infra)
	if err != nil {
		return nil, fmt.Errorf("build order backend: %w", err)
	}
	orderSvc, err := orders.NewService(orders.Deps{
		Backend:     backend,
		Idempotency: idem,
		Logger:      orders.Logger(events("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	c.Orders = orderSvc

	loader, err := buildCatalogue(cfg, infra, catalogue.Logger(events("catalogue")))
	if err != nil {
		return nil, fmt.Errorf("build catalogue: %w", err)
	}
	c.Catalogue = loader

	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Payments:             registry,
		Orders:               orderSvc,
		Notifier:             buildNotifier(cfg, infra, notify.Logger(events("notify"))),
		Bank:                 checkout.BankAccount(cfg.Bank),
		Currency:             cfg.Payments.Currency,
		CompletionDelay:      cfg.Checkout.CompletionDelay,
		AcknowledgementDelay: cfg.Checkout.AcknowledgementDelay,
		SubmitTimeout:        cfg.Checkout.SubmitTimeout,
		Logger:               checkout.Logger(events("checkout")),
		Meter:                infra.Meter,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}
	c.Checkout = checkoutSvc

	secret := strings.TrimSpace(cfg.Session.Secret)
	if secret == "" && cfg.Local() {
		secret, err = ephemeralSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("session secret not configured; issuing tokens with an ephemeral secret")
	}
	tokens, err := session.NewTokens(secret, cfg.Session.TTL, nil)
	if err != nil {
		return nil, fmt.Errorf("build session tokens: %w", err)
	}
	store, err := c.buildSessionStore(infra)
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}
	manager, err := session.NewManager(session.ManagerDeps{
		Checkout:    checkoutSvc,
		Store:       store,
		Tokens:      tokens,
		IdleTimeout: cfg.Session.IdleTimeout,
		Logger:      session.Logger(events("session")),
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	c.Sessions = manager
	c.sweepers = append(c.sweepers, func() int { return manager.Sweep(context.Background()) })

	logger.Info("container ready",
		zap.String("orderBackend", cfg.Orders.Backend),
		zap.Bool("redis", infra.Redis != nil),
		zap.Bool("stripe", registry.Configured(domain.PaymentCreditCard)),
		zap.Bool("paypal", registry.Configured(domain.PaymentPayPal)),
	)
	return c, nil
}

// Sweep drops expired entries from the in-process stores and idle session controllers, and reports
// how many were removed. Redis and Firestore expire stored entries on their own.
func (c *Container) Sweep() int {
	if c == nil {
		return 0
	}
	removed := 0
	for _, sweep := range c.sweepers {
		removed += sweep()
	}
	return removed
}

func (c *Container) buildIdempotency(infra Infra) (idempotency.Store, error) {
	switch {
	case infra.Redis != nil:
		return idempotency.NewRedisStore(infra.Redis)
	case infra.Firestore != nil:
		return idempotency.NewFirestoreStore(infra.Firestore), nil
	default:
		store := idempotency.NewMemoryStore()
		c.sweepers = append(c.sweepers, func() int { return store.Sweep(time.Now()) })
		return store, nil
	}
}

func (c *Container) buildSessionStore(infra Infra) (session.Store, error) {
	if infra.Redis != nil {
		return session.NewRedisStore(infra.Redis, "")
	}
	store := session.NewMemoryStore(nil)
	c.sweepers = append(c.sweepers, store.Sweep)
	return store, nil
}

func buildPayments(cfg config.Config, infra Infra, logger payments.Logger) (*payments.Registry, error) {
	var opts []payments.RegistryOption
	if key := strings.TrimSpace(cfg.Payments.StripeSecretKey); key != "" {
		stripeExec, err := payments.NewStripeExecutor(payments.StripeConfig{
			APIKey:    key,
			AccountID: cfg.Payments.StripeAccountID,
			Currency:  cfg.Payments.Currency,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, payments.WithExecutor(stripeExec, payments.StripeMethods...))
	}
	if strings.TrimSpace(cfg.Payments.PayPalClientID) != "" {
		paypalExec, err := payments.NewPayPalExecutor(payments.PayPalConfig{
			BaseURL:      cfg.Payments.PayPalBaseURL,
			ClientID:     cfg.Payments.PayPalClientID,
			ClientSecret: cfg.Payments.PayPalClientSecret,
			HTTPClient:   infra.HTTPClient,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, payments.WithExecutor(paypalExec, domain.PaymentPayPal))
	}
	return payments.NewRegistry(opts...)
}

func buildOrderBackend(cfg config.Config, infra Infra) (orders.Backend, error) {
	if cfg.Orders.Backend != config.OrderBackendFirestore {
		return orders.NewMemoryBackend(), nil
	}
	if infra.Firestore == nil {
		return nil, errors.New("firestore order backend selected without a firestore provider")
	}
	return orders.NewFirestoreBackend(infra.Firestore)
}

func buildCatalogue(cfg config.Config, infra Infra, logger catalogue.Logger) (*catalogue.Loader, error) {
	deps := catalogue.LoaderDeps{
		Source: catalogue.NewWooCommerceSource(catalogue.WooCommerceConfig{
			BaseURL:        cfg.Catalogue.WooCommerceURL,
			ConsumerKey:    cfg.Catalogue.ConsumerKey,
			ConsumerSecret: cfg.Catalogue.ConsumerSecret,
			HTTPClient:     infra.HTTPClient,
		}),
		Logger: logger,
	}
	if infra.Redis != nil {
		cache, err := catalogue.NewRedisCache(infra.Redis, catalogue.WithCacheTTL(cfg.Catalogue.CacheTTL))
		if err != nil {
			return nil, err
		}
		deps.Cache = cache
	}
	if infra.ImageSigner != nil && strings.TrimSpace(cfg.Catalogue.FallbackImageBucket) != "" {
		deps.Images = &catalogue.ImageResolver{
			Bucket:    cfg.Catalogue.FallbackImageBucket,
			Signer:    infra.ImageSigner,
			ExpiresIn: cfg.Catalogue.ImageURLTTL,
			Logger:    logger,
		}
	}
	return catalogue.NewLoader(deps)
}

func buildNotifier(cfg config.Config, infra Infra, logger notify.Logger) checkout.Notifier {
	var fanout notify.Fanout
	webhook := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:        cfg.Notify.WebhookURL,
		Secret:     cfg.Notify.WebhookSecret,
		HTTPClient: infra.HTTPClient,
		Logger:     logger,
	})
	if webhook.Enabled() {
		fanout = append(fanout, webhook)
	}
	if infra.OrderTopic != nil {
		if publisher, err := notify.NewPubSubNotifier(infra.OrderTopic, logger); err == nil {
			fanout = append(fanout, publisher)
		}
	}
	if len(fanout) == 0 {
		logger(context.Background(), "notify.disabled", map[string]any{"reason": "no webhook or topic configured"})
		return nil
	}
	return fanout
}

func ephemeralSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
