package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/payments"
)

const (
	msgOrderCreateFailed = "Failed to create order. Please try again."
	msgOrderPlaceFailed  = "Failed to place order. Please try again."
	msgInterrupted       = "An unexpected error occurred. Please try again."
)

// SubmitInput carries what the shopper's client obtained for the selected method.
type SubmitInput struct {
	PaymentToken string
	// Capabilities, when set, re-checks that the selected method is still available.
	Capabilities *Capabilities
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithObserver registers fn to receive every committed state. fn runs while the controller is
// locked, so successive calls arrive in revision order.
func WithObserver(fn func(State)) ControllerOption {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller owns one shopper's State and runs the submission pipeline against it.
// It is safe for concurrent use; external calls never run while the lock is held.
type Controller struct {
	svc      *Service
	observer func(State)

	mu     sync.Mutex
	state  State
	closed bool
}

// Controller wraps state in a new Controller.
func (s *Service) Controller(state State, opts ...ControllerOption) *Controller {
	if state.Phase == "" {
		state.Phase = PhaseIdle
	}
	c := &Controller{svc: s, state: state}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Snapshot returns the current state, applying any reset that has come due.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	return c.state
}

// Close marks the consumer as gone. In-flight calls still complete, but their results no longer
// change the state.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AddToCart adds one unit of product.
func (c *Controller) AddToCart(product domain.Product) (State, error) {
	return c.apply(AddToCart{Product: product})
}

// SetQuantity sets the quantity of a cart line; n <= 0 removes it.
func (c *Controller) SetQuantity(productID int64, n int) (State, error) {
	return c.apply(SetQuantity{ProductID: productID, Quantity: n})
}

// RemoveFromCart removes a cart line.
func (c *Controller) RemoveFromCart(productID int64) (State, error) {
	return c.apply(RemoveFromCart{ProductID: productID})
}

// EditField updates one form field and clears its error.
func (c *Controller) EditField(field domain.Field, value string) (State, error) {
	return c.apply(EditField{Field: field, Value: value})
}

// Methods lists the payment methods for a shopper with caps.
func (c *Controller) Methods(caps Capabilities) []MethodOption {
	return c.svc.selector.Options(caps, c.Snapshot().Method)
}

// Select replaces the selected payment method.
func (c *Controller) Select(method domain.PaymentMethod, caps Capabilities) (State, error) {
	if !c.svc.selector.Available(method, caps) {
		return c.Snapshot(), ErrMethodUnavailable
	}
	return c.apply(SelectMethod{Method: method})
}

// Acknowledge releases a held bank-transfer order; the checkout resets after the acknowledgement delay.
func (c *Controller) Acknowledge() (State, error) {
	return c.apply(Acknowledged{At: c.svc.clock(), Delay: c.svc.ackDelay})
}

// Submit runs one checkout attempt: validation, payment for immediate methods, order creation and
// notification. Failures are reported through the returned state; the error is reserved for
// attempts that could not start. The external calls are not cancelled when ctx is, so a shopper
// leaving mid-submission does not abandon a captured payment. Closing the controller mid-submission
// only drops the state commits: the order is still placed and announced, and ErrClosed is returned.
func (c *Controller) Submit(ctx context.Context, in SubmitInput) (State, error) {
	if in.Capabilities != nil {
		current := c.Snapshot()
		if current.Method != "" && !c.svc.selector.Available(current.Method, *in.Capabilities) {
			return current, ErrMethodUnavailable
		}
	}
	s, err := c.apply(SubmitRequested{})
	if err != nil {
		return s, err
	}
	defer c.abortIfBusy(ctx)

	attempt := c.svc.newID()
	errs := Validate(s.Form, s.Method)
	if errs.Valid() && s.CapturedPayment != nil && !s.ReusableCapture() {
		c.svc.logger(ctx, "checkout.payment_orphaned", map[string]any{
			"processor": string(s.CapturedPayment.Processor),
			"token":     s.CapturedPayment.Token,
			"amount":    s.CapturedPayment.Amount,
			"method":    string(s.Method),
		})
	}
	if s, err = c.apply(ValidationCompleted{Errors: errs}); err != nil {
		return s, err
	}
	if s.Phase == PhaseInvalid {
		c.record(ctx, s.Method, "invalid")
		return s, nil
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.svc.submitTimeout)
	defer cancel()
	detached := false

	if s.Phase == PhasePaymentPending {
		ref, err := c.svc.payments.Execute(work, payments.Request{
			Method:         s.Method,
			Token:          in.PaymentToken,
			Amount:         s.Cart.TotalCents(),
			Currency:       c.svc.currency,
			Email:          strings.TrimSpace(s.Form.Email),
			Description:    "Storefront order",
			IdempotencyKey: attempt,
			Metadata:       map[string]string{"attempt": attempt},
		})
		if err != nil {
			c.svc.logger(ctx, "checkout.payment_failed", map[string]any{
				"method":  string(s.Method),
				"attempt": attempt,
				"error":   err.Error(),
			})
			c.record(ctx, s.Method, "payment_failed")
			return c.apply(PaymentFailed{Message: payments.UserMessage(err)})
		}
		next, err := c.apply(PaymentSucceeded{Reference: ref})
		switch {
		case err == nil:
			s = next
		case errors.Is(err, ErrClosed):
			// The consumer is gone but the funds are captured; the order is still placed from the
			// local copy and only the state commits are dropped.
			detached = true
			s.CapturedPayment = &ref
			c.svc.logger(ctx, "checkout.submission_detached", map[string]any{
				"processor": string(ref.Processor),
				"token":     ref.Token,
				"attempt":   attempt,
			})
		default:
			c.svc.logger(ctx, "checkout.payment_orphaned", map[string]any{
				"processor": string(ref.Processor),
				"token":     ref.Token,
				"amount":    ref.Amount,
				"reason":    err.Error(),
			})
			return next, err
		}
	}

	draft := domain.NewOrderDraft(s.Form, s.Cart.Lines(), s.Method, s.CapturedPayment, c.svc.clock())
	result := c.svc.orders.Place(work, draft)
	if !result.Success {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = msgOrderPlaceFailed
			if s.Method.Immediate() {
				message = msgOrderCreateFailed
			}
		}
		fields := map[string]any{
			"method":  string(s.Method),
			"attempt": attempt,
			"error":   result.Error,
		}
		if draft.Payment != nil {
			fields["paymentReference"] = draft.Payment.Key()
		}
		c.svc.logger(ctx, "checkout.order_failed", fields)
		c.record(ctx, s.Method, "order_failed")
		if detached {
			return s, ErrClosed
		}
		return c.apply(OrderFailed{Message: message})
	}

	if !c.svc.notifier.Notify(work, draft, result.OrderNumber, result.OrderID) {
		c.svc.logger(ctx, "checkout.notify_failed", map[string]any{
			"orderNumber": result.OrderNumber,
			"orderId":     result.OrderID,
		})
	}

	var instructions *BankTransferInstructions
	outcome := "completed"
	if s.Method == domain.PaymentBankTransfer {
		instructions = c.svc.bank.Instructions(result.OrderNumber, draft.TotalAmount)
		outcome = "awaiting_acknowledgement"
	}
	c.svc.logger(ctx, "checkout.order_placed", map[string]any{
		"orderNumber": result.OrderNumber,
		"orderId":     result.OrderID,
		"method":      string(s.Method),
		"total":       draft.TotalAmount,
	})
	c.record(ctx, s.Method, outcome)
	if detached {
		return s, ErrClosed
	}
	return c.apply(OrderPlaced{
		Result:       result,
		Instructions: instructions,
		At:           c.svc.clock(),
		Delay:        c.svc.completionDelay,
	})
}

func (c *Controller) apply(e Event) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state, ErrClosed
	}
	c.settleLocked()
	next, err := Reduce(c.state, e)
	if err != nil {
		return c.state, err
	}
	c.commitLocked(next)
	return next, nil
}

// settleLocked applies a reset that has come due.
func (c *Controller) settleLocked() {
	if c.closed || c.state.Phase != PhaseCompleted {
		return
	}
	next, err := Reduce(c.state, ResetDue{Now: c.svc.clock()})
	if err == nil && next.Revision != c.state.Revision {
		c.commitLocked(next)
	}
}

func (c *Controller) commitLocked(next State) {
	c.state = next
	if c.observer != nil {
		c.observer(next)
	}
}

func (c *Controller) abortIfBusy(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.state.Busy() {
		return
	}
	next, err := Reduce(c.state, Aborted{Message: msgInterrupted})
	if err != nil {
		return
	}
	c.svc.logger(ctx, "checkout.submission_aborted", map[string]any{"phase": string(c.state.Phase)})
	c.commitLocked(next)
}

func (c *Controller) record(ctx context.Context, method domain.PaymentMethod, outcome string) {
	c.svc.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(method)),
		attribute.String("outcome", outcome),
	))
}
