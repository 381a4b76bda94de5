package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/idempotency"
)

const (
	orderNumberPrefix     = "ORD-"
	defaultReservationTTL = 7 * 24 * time.Hour

	unexpectedFailure = "An unexpected error occurred. Please try again."
	paymentInFlight   = "An order for this payment is already being processed. Please wait a moment and try again."
)

// Logger receives structured order events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Deps wires the order service. Backend is required; Idempotency guards payment-backed drafts.
type Deps struct {
	Backend        Backend
	Idempotency    idempotency.Store
	ReservationTTL time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         Logger
}

// Service assigns order identity and writes orders through a Backend.
type Service struct {
	backend Backend
	idem    idempotency.Store
	ttl     time.Duration
	clock   func() time.Time
	newID   func() string
	logger  Logger
}

// NewService requires a Backend. Without an idempotency store, payment-backed drafts are not deduplicated.
func NewService(deps Deps) (*Service, error) {
	if deps.Backend == nil {
		return nil, errors.New("orders: backend is required")
	}
	svc := &Service{
		backend: deps.Backend,
		idem:    deps.Idempotency,
		ttl:     deps.ReservationTTL,
		clock:   deps.Clock,
		newID:   deps.IDGenerator,
		logger:  deps.Logger,
	}
	if svc.ttl <= 0 {
		svc.ttl = defaultReservationTTL
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.newID == nil {
		svc.newID = func() string { return ulid.Make().String() }
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	return svc, nil
}

// Place creates an order for draft. Every failure is reported through the result.
//
// A draft backed by a captured payment reserves the payment's key first: a second placement for the same
// payment replays the first successful result instead of creating another order.
func (s *Service) Place(ctx context.Context, draft domain.OrderDraft) (result domain.OrderResult) {
	var (
		key      string
		reserved bool
		created  bool
	)
	defer func() {
		if rec := recover(); rec != nil {
			s.logger(ctx, "orders.panic", map[string]any{"panic": fmt.Sprint(rec), "created": created})
			// A reservation left pending would block every retry with the same payment.
			if reserved && !created {
				s.release(ctx, key)
			}
			result = domain.OrderResult{Success: false, Error: unexpectedFailure}
		}
	}()

	if len(draft.Items) == 0 {
		return domain.OrderResult{Success: false, Error: "Failed to create order: order has no items"}
	}

	key, guarded := s.reservationKey(draft)
	if guarded {
		replayed, done, err := s.reserve(ctx, key)
		if err != nil {
			s.logger(ctx, "orders.reservation_failed", map[string]any{"key": key, "error": err.Error()})
			return domain.OrderResult{Success: false, Error: unexpectedFailure}
		}
		if done {
			return replayed
		}
		reserved = true
	}

	now := s.clock().UTC()
	order := Order{
		ID:            s.newID(),
		Number:        orderNumberPrefix + ulid.Make().String(),
		Status:        StatusPending,
		PaymentStatus: domain.PaymentStatusFor(draft.PaymentMethod),
		Draft:         draft,
		CreatedAt:     now,
	}

	if err := s.backend.CreateOrder(ctx, order); err != nil {
		s.logger(ctx, "orders.create_failed", map[string]any{
			"orderNumber": order.Number,
			"method":      string(draft.PaymentMethod),
			"error":       err.Error(),
		})
		if guarded {
			s.release(ctx, key)
		}
		return domain.OrderResult{Success: false, Error: "Failed to create order: " + publicReason(err)}
	}
	created = true

	result = domain.OrderResult{Success: true, OrderNumber: order.Number, OrderID: order.ID}
	s.logger(ctx, "orders.created", map[string]any{
		"orderNumber":   order.Number,
		"orderId":       order.ID,
		"method":        string(draft.PaymentMethod),
		"paymentStatus": string(order.PaymentStatus),
		"totalAmount":   draft.TotalAmount,
	})
	if guarded {
		s.remember(ctx, key, result)
	}
	return result
}

func (s *Service) reservationKey(draft domain.OrderDraft) (string, bool) {
	if s.idem == nil || draft.Payment == nil || draft.Payment.Token == "" {
		return "", false
	}
	return "payment:" + draft.Payment.Key(), true
}

// reserve returns done=true with the result to hand back when the payment was already handled.
func (s *Service) reserve(ctx context.Context, key string) (domain.OrderResult, bool, error) {
	reservation, err := s.idem.Reserve(ctx, key, key, s.clock(), s.ttl)
	if err != nil {
		return domain.OrderResult{}, false, err
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		var prior domain.OrderResult
		if err := json.Unmarshal(reservation.Record.ResponseBody, &prior); err != nil {
			return domain.OrderResult{}, false, fmt.Errorf("orders: decode stored result: %w", err)
		}
		s.logger(ctx, "orders.replayed", map[string]any{"key": key, "orderNumber": prior.OrderNumber})
		return prior, true, nil
	case idempotency.ReservationStatePending:
		return domain.OrderResult{Success: false, Error: paymentInFlight}, true, nil
	default:
		return domain.OrderResult{}, false, nil
	}
}

func (s *Service) remember(ctx context.Context, key string, result domain.OrderResult) {
	body, err := json.Marshal(result)
	if err == nil {
		err = s.idem.SaveResponse(ctx, key, key, idempotency.Response{Status: http.StatusCreated, Body: body}, s.clock(), s.ttl)
	}
	if err != nil {
		s.logger(ctx, "orders.reservation_save_failed", map[string]any{"key": key, "orderNumber": result.OrderNumber, "error": err.Error()})
	}
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.idem.Release(ctx, key, key); err != nil {
		s.logger(ctx, "orders.reservation_release_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func publicReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateOrder):
		return ErrDuplicateOrder.Error()
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrBackendUnavailable.Error()
	default:
		return "unable to save order"
	}
}
