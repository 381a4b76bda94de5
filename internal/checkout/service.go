package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/payments"
)

const (
	// DefaultCompletionDelay is how long a completed order stays visible before the checkout resets.
	DefaultCompletionDelay = 5 * time.Second
	// DefaultAcknowledgementDelay is the reset delay after a bank transfer is acknowledged.
	DefaultAcknowledgementDelay = 100 * time.Millisecond
	// DefaultSubmitTimeout bounds the external calls of one submission.
	DefaultSubmitTimeout = 45 * time.Second

	meterName = "github.com/brickmini/storefront/internal/checkout"
)

var (
	// ErrMethodUnavailable is returned when selecting a method the shopper cannot use.
	ErrMethodUnavailable = errors.New("checkout: payment method unavailable")
	// ErrClosed is returned when operating on a controller whose consumer has gone away.
	ErrClosed = errors.New("checkout: controller closed")
)

// PaymentDispatcher captures immediate payments.
type PaymentDispatcher interface {
	Execute(ctx context.Context, req payments.Request) (domain.PaymentReference, error)
	Configured(method domain.PaymentMethod) bool
}

// OrderPlacer persists an order draft. It reports failures through the result, never by panicking.
type OrderPlacer interface {
	Place(ctx context.Context, draft domain.OrderDraft) domain.OrderResult
}

// Notifier forwards placed orders to external automation. Failures are reported, never fatal.
type Notifier interface {
	Notify(ctx context.Context, draft domain.OrderDraft, orderNumber, orderID string) bool
}

// Logger receives structured checkout events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Deps wires the collaborators shared by every checkout controller.
type Deps struct {
	Payments             PaymentDispatcher
	Orders               OrderPlacer
	Notifier             Notifier
	Bank                 BankAccount
	Currency             string
	CompletionDelay      time.Duration
	AcknowledgementDelay time.Duration
	SubmitTimeout        time.Duration
	Clock                func() time.Time
	IDGenerator          func() string
	Logger               Logger
	Meter                metric.Meter
}

// Service builds per-shopper controllers over shared collaborators.
type Service struct {
	payments        PaymentDispatcher
	orders          OrderPlacer
	notifier        Notifier
	selector        Selector
	bank            BankAccount
	currency        string
	completionDelay time.Duration
	ackDelay        time.Duration
	submitTimeout   time.Duration
	clock           func() time.Time
	newID           func() string
	logger          Logger
	submissions     metric.Int64Counter
}

// NewService validates deps and constructs a Service.
func NewService(deps Deps) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout: order placer is required")
	}

	paymentsDispatcher := deps.Payments
	if paymentsDispatcher == nil {
		reg, err := payments.NewRegistry()
		if err != nil {
			return nil, err
		}
		paymentsDispatcher = reg
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	completion := deps.CompletionDelay
	if completion <= 0 {
		completion = DefaultCompletionDelay
	}
	ack := deps.AcknowledgementDelay
	if ack <= 0 {
		ack = DefaultAcknowledgementDelay
	}
	timeout := deps.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}

	currency := deps.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	submissions, err := meter.Int64Counter(
		"checkout.submissions",
		metric.WithDescription("Checkout submissions by payment method and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		payments:        paymentsDispatcher,
		orders:          deps.Orders,
		notifier:        notifier,
		selector:        NewSelector(paymentsDispatcher.Configured),
		bank:            deps.Bank.withDefaults(),
		currency:        currency,
		completionDelay: completion,
		ackDelay:        ack,
		submitTimeout:   timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       newID,
		logger:      logger,
		submissions: submissions,
	}, nil
}

// Selector returns the payment method selector backed by the configured executors.
func (s *Service) Selector() Selector {
	return s.selector
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.OrderDraft, string, string) bool { return false }
