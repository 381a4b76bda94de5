package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/brickmini/storefront/internal/domain"
)

// Logger receives structured payment events.
type Logger func(ctx context.Context, event string, fields map[string]any)

const (
	msgStripeNotLoaded  = "Stripe has not loaded yet. Please try again."
	msgWalletMismatch   = "The selected wallet did not provide a matching payment method. Please try again."
	msgStripeIncomplete = "Your payment requires additional verification. Please try again."
	defaultCurrency     = "usd"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripePaymentMethodAPI interface {
	Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type stripeClients struct {
	intents        stripePaymentIntentAPI
	paymentMethods stripePaymentMethodAPI
}

// StripeConfig configures the StripeExecutor.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Currency  string
	Backends  *stripe.Backends
	Logger    Logger
	clients   *stripeClients
}

// StripeExecutor captures card and wallet payments by confirming a PaymentIntent against the
// payment method created on the shopper's device.
type StripeExecutor struct {
	api      stripeClients
	account  string
	currency string
	logger   Logger
}

// StripeMethods lists the methods settled through Stripe.
var StripeMethods = []domain.PaymentMethod{domain.PaymentCreditCard, domain.PaymentApplePay, domain.PaymentGooglePay}

// NewStripeExecutor constructs a StripeExecutor.
func NewStripeExecutor(cfg StripeConfig) (*StripeExecutor, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:        sc.PaymentIntents,
			paymentMethods: sc.PaymentMethods,
		}
	}
	if clients.intents == nil || clients.paymentMethods == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeExecutor{
		api:      clients,
		account:  strings.TrimSpace(cfg.AccountID),
		currency: strings.ToLower(defaultString(cfg.Currency, defaultCurrency)),
		logger:   logger,
	}, nil
}

// Execute implements Executor.
func (e *StripeExecutor) Execute(ctx context.Context, req Request) (domain.PaymentReference, error) {
	if e == nil {
		return domain.PaymentReference{}, errors.New("stripe: executor is nil")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgStripeNotLoaded}
	}

	if err := e.verifyMethod(ctx, req.Method, token); err != nil {
		return domain.PaymentReference{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(defaultString(req.Currency, e.currency))),
		PaymentMethod: stripe.String(token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if e.account != "" {
		params.SetStripeAccount(e.account)
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	params.AddMetadata("payment_method", string(req.Method))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := e.api.intents.New(params)
	if err != nil {
		return domain.PaymentReference{}, stripeFailure(req.Method, err)
	}

	e.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
		"method":        string(req.Method),
	})

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return domain.PaymentReference{
			Processor: domain.ProcessorStripe,
			Token:     intent.ID,
			Kind:      domain.ReferencePaymentIntent,
			Amount:    intent.Amount,
		}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: msgStripeIncomplete}
	default:
		return domain.PaymentReference{}, &PaymentError{
			Method:  req.Method,
			Message: genericFailureMessage,
			Err:     fmt.Errorf("stripe: payment intent %s in status %s", intent.ID, intent.Status),
		}
	}
}

// verifyMethod checks that wallet payments were produced by the wallet the shopper selected.
func (e *StripeExecutor) verifyMethod(ctx context.Context, method domain.PaymentMethod, token string) error {
	var want stripe.PaymentMethodCardWalletType
	switch method {
	case domain.PaymentApplePay:
		want = stripe.PaymentMethodCardWalletTypeApplePay
	case domain.PaymentGooglePay:
		want = stripe.PaymentMethodCardWalletTypeGooglePay
	default:
		return nil
	}

	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	if e.account != "" {
		params.SetStripeAccount(e.account)
	}
	pm, err := e.api.paymentMethods.Get(token, params)
	if err != nil {
		return stripeFailure(method, err)
	}
	if pm == nil || pm.Type != stripe.PaymentMethodTypeCard || pm.Card == nil || pm.Card.Wallet == nil || pm.Card.Wallet.Type != want {
		return &PaymentError{Method: method, Message: msgWalletMismatch}
	}
	e.logger(ctx, "payments.stripe.wallet.verified", map[string]any{
		"paymentMethod": pm.ID,
		"brand":         strings.ToLower(string(pm.Card.Brand)),
		"last4":         pm.Card.Last4,
	})
	return nil
}

func stripeFailure(method domain.PaymentMethod, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard && strings.TrimSpace(stripeErr.Msg) != "" {
		return &PaymentError{Method: method, Message: stripeErr.Msg, Err: err}
	}
	return &PaymentError{Method: method, Message: genericFailureMessage, Err: err}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
