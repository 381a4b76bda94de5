package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "STOREFRONT_"

	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 60 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 60 * time.Second
	defaultEnvironment          = "local"
	defaultOrderBackend         = OrderBackendMemory
	defaultCatalogueCacheTTL    = 5 * time.Minute
	defaultImageURLTTL          = time.Hour
	defaultCurrency             = "USD"
	defaultPayPalBaseURL        = "https://api-m.sandbox.paypal.com"
	defaultSessionTTL           = 24 * time.Hour
	defaultSessionCreateLimit   = 30
	defaultSessionCreateWindow  = time.Minute
	defaultSessionIdleTimeout   = 15 * time.Minute
	defaultCompletionDelay      = 5 * time.Second
	defaultAcknowledgementDelay = 100 * time.Millisecond
	defaultSubmitTimeout        = 45 * time.Second
	defaultIdempotencyTTL       = 24 * time.Hour
	minSessionSecretLength      = 32
)

// Order backends.
const (
	OrderBackendMemory    = "memory"
	OrderBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	GCP         GCPConfig
	Firestore   FirestoreConfig
	Orders      OrdersConfig
	Catalogue   CatalogueConfig
	Payments    PaymentsConfig
	Notify      NotifyConfig
	Redis       RedisConfig
	Session     SessionConfig
	Checkout    CheckoutConfig
	Bank        BankConfig
	Idempotency IdempotencyConfig
}

// Local reports whether the service runs on a developer machine.
func (c Config) Local() bool {
	return c.Environment == defaultEnvironment
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// GCPConfig identifies the Google Cloud project used for Secret Manager and Pub/Sub.
type GCPConfig struct {
	ProjectID string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// OrdersConfig selects where orders are persisted.
type OrdersConfig struct {
	Backend string
}

// CatalogueConfig points at the WooCommerce store and the fallback image bucket.
type CatalogueConfig struct {
	WooCommerceURL      string
	ConsumerKey         string
	ConsumerSecret      string
	CacheTTL            time.Duration
	FallbackImageBucket string
	ImageSignerKeyFile  string
	ImageURLTTL         time.Duration
}

// PaymentsConfig collects payment processor credentials.
type PaymentsConfig struct {
	StripeSecretKey    string
	StripeAccountID    string
	Currency           string
	PayPalBaseURL      string
	PayPalClientID     string
	PayPalClientSecret string
}

// NotifyConfig configures order notifications.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
	OrderTopic    string
}

// RedisConfig configures the shared Redis client. An empty address keeps state in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig configures shopper session tokens. CreateLimit sessions may be opened per client
// address in each CreateWindow; zero disables the limit.
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	CreateLimit  int
	CreateWindow time.Duration
	// IdleTimeout is how long an untouched session keeps its controller in process.
	IdleTimeout time.Duration
}

// CheckoutConfig tunes the submission pipeline.
type CheckoutConfig struct {
	CompletionDelay      time.Duration
	AcknowledgementDelay time.Duration
	SubmitTimeout        time.Duration
}

// BankConfig is the account shown in bank transfer instructions.
type BankConfig struct {
	AccountName   string
	AccountNumber string
	RoutingNumber string
	BankName      string
	SWIFT         string
}

// IdempotencyConfig controls the submit idempotency guard.
type IdempotencyConfig struct {
	TTL time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Names are redacted.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns stable hashes of the missing secret names.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the missing secret field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values. They take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Payments.StripeSecretKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Lookup returns a key lookup applying the same precedence as Load (explicit map, process
// environment, .env file). Keys are given without the STOREFRONT_ prefix. It lets callers build
// the secret resolver before Load runs.
func Lookup(opts ...Option) (func(key string) (string, bool), error) {
	options := newLoaderOptions(opts)
	return options.lookup()
}

func (o loaderOptions) lookup() (func(key string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		key = envPrefix + key
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnv[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

// Load assembles the configuration from defaults, the .env file, the process environment and
// explicit overrides, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		GCP: GCPConfig{
			ProjectID: stringWithDefault(lookup, "GCP_PROJECT_ID", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Orders: OrdersConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "ORDER_BACKEND", defaultOrderBackend)),
		},
		Catalogue: CatalogueConfig{
			WooCommerceURL:      stringWithDefault(lookup, "WOOCOMMERCE_URL", ""),
			ConsumerKey:         stringWithDefault(lookup, "WOOCOMMERCE_CONSUMER_KEY", ""),
			ConsumerSecret:      stringWithDefault(lookup, "WOOCOMMERCE_CONSUMER_SECRET", ""),
			CacheTTL:            durationWithDefault(lookup, "CATALOGUE_CACHE_TTL", defaultCatalogueCacheTTL),
			FallbackImageBucket: stringWithDefault(lookup, "FALLBACK_IMAGE_BUCKET", ""),
			ImageSignerKeyFile:  stringWithDefault(lookup, "FALLBACK_IMAGE_SIGNER_KEY_FILE", ""),
			ImageURLTTL:         durationWithDefault(lookup, "FALLBACK_IMAGE_URL_TTL", defaultImageURLTTL),
		},
		Payments: PaymentsConfig{
			StripeSecretKey:    stringWithDefault(lookup, "STRIPE_SECRET_KEY", ""),
			StripeAccountID:    stringWithDefault(lookup, "STRIPE_ACCOUNT_ID", ""),
			Currency:           strings.ToUpper(stringWithDefault(lookup, "STRIPE_CURRENCY", defaultCurrency)),
			PayPalBaseURL:      stringWithDefault(lookup, "PAYPAL_BASE_URL", defaultPayPalBaseURL),
			PayPalClientID:     stringWithDefault(lookup, "PAYPAL_CLIENT_ID", ""),
			PayPalClientSecret: stringWithDefault(lookup, "PAYPAL_CLIENT_SECRET", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:    stringWithDefault(lookup, "WEBHOOK_URL", ""),
			WebhookSecret: stringWithDefault(lookup, "WEBHOOK_SECRET", ""),
			OrderTopic:    stringWithDefault(lookup, "ORDER_EVENTS_TOPIC", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret:       stringWithDefault(lookup, "SESSION_SECRET", ""),
			TTL:          durationWithDefault(lookup, "SESSION_TTL", defaultSessionTTL),
			CreateLimit:  intWithDefault(lookup, "SESSION_CREATE_LIMIT", defaultSessionCreateLimit),
			CreateWindow: durationWithDefault(lookup, "SESSION_CREATE_WINDOW", defaultSessionCreateWindow),
			IdleTimeout:  durationWithDefault(lookup, "SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout),
		},
		Checkout: CheckoutConfig{
			CompletionDelay:      durationWithDefault(lookup, "COMPLETION_DELAY", defaultCompletionDelay),
			AcknowledgementDelay: durationWithDefault(lookup, "ACKNOWLEDGEMENT_DELAY", defaultAcknowledgementDelay),
			SubmitTimeout:        durationWithDefault(lookup, "SUBMIT_TIMEOUT", defaultSubmitTimeout),
		},
		Bank: BankConfig{
			AccountName:   stringWithDefault(lookup, "BANK_ACCOUNT_NAME", ""),
			AccountNumber: stringWithDefault(lookup, "BANK_ACCOUNT_NUMBER", ""),
			RoutingNumber: stringWithDefault(lookup, "BANK_ROUTING_NUMBER", ""),
			BankName:      stringWithDefault(lookup, "BANK_NAME", ""),
			SWIFT:         stringWithDefault(lookup, "BANK_SWIFT", ""),
		},
		Idempotency: IdempotencyConfig{
			TTL: durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Firestore shares the GCP project unless configured separately.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.GCP.ProjectID
	}

	resolver := options.secret
	if resolver == nil {
		resolver = SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errSecretResolverNotConfigured
		})
	}
	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Catalogue.ConsumerSecret", &cfg.Catalogue.ConsumerSecret},
		{"Payments.StripeSecretKey", &cfg.Payments.StripeSecretKey},
		{"Payments.PayPalClientSecret", &cfg.Payments.PayPalClientSecret},
		{"Notify.WebhookSecret", &cfg.Notify.WebhookSecret},
		{"Redis.Password", &cfg.Redis.Password},
		{"Session.Secret", &cfg.Session.Secret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, resolver)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		invalid = append(invalid, "Server.RequestTimeout")
	}
	switch cfg.Orders.Backend {
	case OrderBackendMemory:
	case OrderBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "Orders.Backend")
	}
	if cfg.Notify.OrderTopic != "" && cfg.GCP.ProjectID == "" {
		invalid = append(invalid, "GCP.ProjectID")
	}
	if cfg.Catalogue.CacheTTL <= 0 {
		invalid = append(invalid, "Catalogue.CacheTTL")
	}
	if cfg.Catalogue.FallbackImageBucket != "" && cfg.Catalogue.ImageSignerKeyFile == "" {
		invalid = append(invalid, "Catalogue.ImageSignerKeyFile")
	}
	if len(cfg.Payments.Currency) != 3 {
		invalid = append(invalid, "Payments.Currency")
	}
	if (cfg.Payments.PayPalClientID == "") != (cfg.Payments.PayPalClientSecret == "") {
		invalid = append(invalid, "Payments.PayPalClientSecret")
	}
	// A local run may omit the session secret; the server generates an ephemeral one.
	if secret := strings.TrimSpace(cfg.Session.Secret); len(secret) < minSessionSecretLength && (secret != "" || !cfg.Local()) {
		invalid = append(invalid, "Session.Secret")
	}
	if cfg.Session.TTL <= 0 {
		invalid = append(invalid, "Session.TTL")
	}
	if cfg.Session.CreateLimit < 0 {
		invalid = append(invalid, "Session.CreateLimit")
	}
	if cfg.Session.CreateLimit > 0 && cfg.Session.CreateWindow <= 0 {
		invalid = append(invalid, "Session.CreateWindow")
	}
	if cfg.Session.IdleTimeout <= 0 {
		invalid = append(invalid, "Session.IdleTimeout")
	}
	if cfg.Checkout.CompletionDelay <= 0 {
		invalid = append(invalid, "Checkout.CompletionDelay")
	}
	if cfg.Checkout.AcknowledgementDelay <= 0 {
		invalid = append(invalid, "Checkout.AcknowledgementDelay")
	}
	if cfg.Checkout.SubmitTimeout <= 0 {
		invalid = append(invalid, "Checkout.SubmitTimeout")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
