package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.Local() {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Orders.Backend != OrderBackendMemory {
		t.Errorf("expected memory order backend, got %s", cfg.Orders.Backend)
	}
	if cfg.Catalogue.CacheTTL != defaultCatalogueCacheTTL {
		t.Errorf("unexpected catalogue cache ttl: %s", cfg.Catalogue.CacheTTL)
	}
	if cfg.Payments.Currency != "USD" {
		t.Errorf("expected USD, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.PayPalBaseURL != defaultPayPalBaseURL {
		t.Errorf("unexpected paypal base url %s", cfg.Payments.PayPalBaseURL)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("unexpected session ttl: %s", cfg.Session.TTL)
	}
	if cfg.Session.CreateLimit != 30 || cfg.Session.CreateWindow != time.Minute {
		t.Errorf("unexpected session create limit %d per %s", cfg.Session.CreateLimit, cfg.Session.CreateWindow)
	}
	if cfg.Session.IdleTimeout != 15*time.Minute {
		t.Errorf("unexpected session idle timeout: %s", cfg.Session.IdleTimeout)
	}
	if cfg.Checkout.CompletionDelay != 5*time.Second {
		t.Errorf("unexpected completion delay: %s", cfg.Checkout.CompletionDelay)
	}
	if cfg.Checkout.AcknowledgementDelay != 100*time.Millisecond {
		t.Errorf("unexpected acknowledgement delay: %s", cfg.Checkout.AcknowledgementDelay)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected no redis by default, got %s", cfg.Redis.Addr)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ENVIRONMENT":                 "Prod",
		"STOREFRONT_SERVER_PORT":                 "9090",
		"STOREFRONT_SERVER_IDLE_TIMEOUT":         "2m",
		"STOREFRONT_GCP_PROJECT_ID":              "brickmini-prod",
		"STOREFRONT_ORDER_BACKEND":               "firestore",
		"STOREFRONT_WOOCOMMERCE_URL":             "https://shop.example.com",
		"STOREFRONT_WOOCOMMERCE_CONSUMER_KEY":    "ck_live",
		"STOREFRONT_WOOCOMMERCE_CONSUMER_SECRET": "secret://woocommerce/secret",
		"STOREFRONT_CATALOGUE_CACHE_TTL":         "90s",
		"STOREFRONT_STRIPE_SECRET_KEY":           "secret://stripe/api",
		"STOREFRONT_STRIPE_CURRENCY":             "eur",
		"STOREFRONT_PAYPAL_CLIENT_ID":            "paypal-client",
		"STOREFRONT_PAYPAL_CLIENT_SECRET":        "sm://paypal/secret",
		"STOREFRONT_WEBHOOK_URL":                 "https://hook.example.com/orders",
		"STOREFRONT_ORDER_EVENTS_TOPIC":          "orders",
		"STOREFRONT_REDIS_ADDR":                  "redis:6379",
		"STOREFRONT_REDIS_DB":                    "2",
		"STOREFRONT_SESSION_SECRET":              "secret://session",
		"STOREFRONT_SESSION_TTL":                 "12h",
		"STOREFRONT_COMPLETION_DELAY":            "3s",
		"STOREFRONT_BANK_NAME":                   "First Brick Bank",
	}

	secrets := map[string]string{
		"secret://woocommerce/secret": "cs_live",
		"secret://stripe/api":         "sk_live",
		"secret://paypal/secret":      "paypal-secret",
		"secret://session":            testSessionSecret,
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := load(t, env, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" || cfg.Local() {
		t.Errorf("expected prod environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "brickmini-prod" {
		t.Errorf("expected firestore project to default to gcp project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Catalogue.ConsumerSecret != "cs_live" {
		t.Errorf("expected resolved consumer secret, got %s", cfg.Catalogue.ConsumerSecret)
	}
	if cfg.Catalogue.CacheTTL != 90*time.Second {
		t.Errorf("unexpected cache ttl %s", cfg.Catalogue.CacheTTL)
	}
	if cfg.Payments.StripeSecretKey != "sk_live" {
		t.Errorf("expected resolved stripe key, got %s", cfg.Payments.StripeSecretKey)
	}
	if cfg.Payments.Currency != "EUR" {
		t.Errorf("expected EUR, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.PayPalClientSecret != "paypal-secret" {
		t.Errorf("expected legacy sm:// reference to resolve, got %s", cfg.Payments.PayPalClientSecret)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("expected redis db 2, got %d", cfg.Redis.DB)
	}
	if cfg.Session.Secret != testSessionSecret {
		t.Errorf("expected resolved session secret")
	}
	if cfg.Session.TTL != 12*time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Checkout.CompletionDelay != 3*time.Second {
		t.Errorf("unexpected completion delay %s", cfg.Checkout.CompletionDelay)
	}
	if cfg.Bank.BankName != "First Brick Bank" {
		t.Errorf("unexpected bank name %s", cfg.Bank.BankName)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local\nexport STOREFRONT_SERVER_PORT=7070\nSTOREFRONT_WEBHOOK_URL=\"https://hook.example.com\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STOREFRONT_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Notify.WebhookURL != "https://hook.example.com" {
		t.Errorf("expected webhook url from dotenv, got %s", cfg.Notify.WebhookURL)
	}
}

func TestLookupAppliesPrefixAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	if err := os.WriteFile(envPath, []byte("STOREFRONT_GCP_PROJECT_ID=dot-project\n"), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("STOREFRONT_GCP_PROJECT_ID", "os-project")
	lookup, err := Lookup(WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if got, _ := lookup("GCP_PROJECT_ID"); got != "os-project" {
		t.Fatalf("expected os env to win over dotenv, got %s", got)
	}

	lookup, err = Lookup(WithEnvFile(envPath), WithEnvMap(map[string]string{"STOREFRONT_GCP_PROJECT_ID": "override"}))
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if got, _ := lookup("GCP_PROJECT_ID"); got != "override" {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "unknown order backend",
			env:   map[string]string{"STOREFRONT_ORDER_BACKEND": "postgres"},
			field: "Orders.Backend",
		},
		{
			name:  "firestore without project",
			env:   map[string]string{"STOREFRONT_ORDER_BACKEND": "firestore"},
			field: "Firestore.ProjectID",
		},
		{
			name:  "production without session secret",
			env:   map[string]string{"STOREFRONT_ENVIRONMENT": "prod"},
			field: "Session.Secret",
		},
		{
			name:  "short session secret",
			env:   map[string]string{"STOREFRONT_SESSION_SECRET": "short"},
			field: "Session.Secret",
		},
		{
			name:  "paypal id without secret",
			env:   map[string]string{"STOREFRONT_PAYPAL_CLIENT_ID": "client"},
			field: "Payments.PayPalClientSecret",
		},
		{
			name:  "bucket without signer key",
			env:   map[string]string{"STOREFRONT_FALLBACK_IMAGE_BUCKET": "brickmini-images"},
			field: "Catalogue.ImageSignerKeyFile",
		},
		{
			name:  "topic without project",
			env:   map[string]string{"STOREFRONT_ORDER_EVENTS_TOPIC": "orders"},
			field: "GCP.ProjectID",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.env)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range verr.Fields() {
				if f == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, verr.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	_, err := load(t, map[string]string{"STOREFRONT_STRIPE_SECRET_KEY": "secret://missing"})
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := load(t, map[string]string{}, WithRequiredSecrets("Payments.StripeSecretKey", "Payments.StripeSecretKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Payments.StripeSecretKey" {
		t.Fatalf("unexpected missing secrets %v", names)
	}
	expected := redactSecretName("Payments.StripeSecretKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expected {
		t.Fatalf("unexpected redacted names %v", got)
	}
}
