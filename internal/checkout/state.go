package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/brickmini/storefront/internal/cart"
	"github.com/brickmini/storefront/internal/domain"
)

// Phase is the position of a checkout in the submission state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseValidating     Phase = "validating"
	PhaseInvalid        Phase = "invalid"
	PhasePaymentPending Phase = "payment_pending"
	PhasePlacingOrder   Phase = "placing_order"
	PhaseFailed         Phase = "failed"
	PhaseCompleted      Phase = "completed"
)

var (
	// ErrSubmissionInFlight is returned when a mutation arrives while an order is being submitted.
	ErrSubmissionInFlight = errors.New("checkout: submission already in progress")
	// ErrEmptyCart is returned when submitting without any cart lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrOrderLocked is returned when editing a checkout whose order has been placed.
	ErrOrderLocked = errors.New("checkout: order already placed")
	// ErrNotAwaitingAcknowledgement is returned when acknowledging a checkout that is not held.
	ErrNotAwaitingAcknowledgement = errors.New("checkout: no order awaiting acknowledgement")
	// ErrInvalidTransition is returned when an event does not apply to the current phase.
	ErrInvalidTransition = errors.New("checkout: invalid transition")
	// ErrQuantityLimit is returned when a cart line would exceed domain.MaxLineQuantity.
	ErrQuantityLimit = errors.New("checkout: quantity exceeds the per-line limit")
	// ErrUnknownField is returned when editing a field that is not part of the form.
	ErrUnknownField = errors.New("checkout: unknown form field")
)

// State is the complete, serializable checkout state for one shopper.
type State struct {
	Phase                   Phase                     `json:"phase"`
	Cart                    cart.Store                `json:"cart"`
	Form                    domain.CheckoutForm       `json:"form"`
	Errors                  domain.FieldErrors        `json:"fieldErrors,omitempty"`
	Method                  domain.PaymentMethod      `json:"paymentMethod,omitempty"`
	Submitting              bool                      `json:"submitting"`
	PaymentProcessing       bool                      `json:"paymentProcessing"`
	PaymentError            string                    `json:"paymentError,omitempty"`
	OrderError              string                    `json:"orderError,omitempty"`
	Confirmation            *domain.OrderResult       `json:"confirmation,omitempty"`
	Instructions            *BankTransferInstructions `json:"bankTransfer,omitempty"`
	AwaitingAcknowledgement bool                      `json:"awaitingAcknowledgement"`
	ResetAt                 time.Time                 `json:"resetAt"`
	CapturedPayment         *domain.PaymentReference  `json:"capturedPayment,omitempty"`
	Revision                int64                     `json:"revision"`
}

// Initial returns the empty checkout.
func Initial() State {
	return State{Phase: PhaseIdle}
}

// Busy reports whether a submission is in flight.
func (s State) Busy() bool {
	return s.Submitting || s.PaymentProcessing
}

// Locked reports whether the order has been placed and the checkout awaits reset.
func (s State) Locked() bool {
	return s.Phase == PhaseCompleted || s.AwaitingAcknowledgement
}

// ReusableCapture reports whether the captured payment can settle a resubmission with the
// current method and cart.
func (s State) ReusableCapture() bool {
	ref := s.CapturedPayment
	if ref == nil || !s.Method.Immediate() {
		return false
	}
	return ref.Processor == s.Method.Processor() && ref.Amount == s.Cart.TotalCents()
}

func (s State) clone() State {
	next := s
	next.Cart = s.Cart.Clone()
	if s.Errors != nil {
		next.Errors = make(domain.FieldErrors, len(s.Errors))
		for k, v := range s.Errors {
			next.Errors[k] = v
		}
	}
	return next
}

// Event is an input to Reduce.
type Event interface {
	event()
}

type (
	// AddToCart adds one unit of Product.
	AddToCart struct{ Product domain.Product }
	// SetQuantity sets a line's quantity; non-positive values remove it.
	SetQuantity struct {
		ProductID int64
		Quantity  int
	}
	// RemoveFromCart deletes a line.
	RemoveFromCart struct{ ProductID int64 }
	// EditField replaces a form value and clears that field's error.
	EditField struct {
		Field domain.Field
		Value string
	}
	// SelectMethod replaces the selected payment method.
	SelectMethod struct{ Method domain.PaymentMethod }
	// SubmitRequested starts a checkout attempt.
	SubmitRequested struct{}
	// ValidationCompleted carries the result of Validate.
	ValidationCompleted struct{ Errors domain.FieldErrors }
	// PaymentSucceeded carries the executor's confirmation.
	PaymentSucceeded struct{ Reference domain.PaymentReference }
	// PaymentFailed carries the executor's user-facing failure.
	PaymentFailed struct{ Message string }
	// OrderPlaced carries a successful backend result.
	OrderPlaced struct {
		Result       domain.OrderResult
		Instructions *BankTransferInstructions
		At           time.Time
		Delay        time.Duration
	}
	// OrderFailed carries a backend failure message.
	OrderFailed struct{ Message string }
	// Acknowledged releases a held bank-transfer order.
	Acknowledged struct {
		At    time.Time
		Delay time.Duration
	}
	// ResetDue resets a completed checkout once its reset time has passed.
	ResetDue struct{ Now time.Time }
	// Aborted clears in-flight flags after an interrupted submission.
	Aborted struct{ Message string }
)

func (AddToCart) event() {}
func (SetQuantity) event() {}
func (RemoveFromCart) event() {}
func (EditField) event() {}
func (SelectMethod) event() {}
func (SubmitRequested) event() {}
func (ValidationCompleted) event() {}
func (PaymentSucceeded) event() {}
func (PaymentFailed) event() {}
func (OrderPlaced) event() {}
func (OrderFailed) event() {}
func (Acknowledged) event() {}
func (ResetDue) event() {}
func (Aborted) event() {}

// Reduce applies e to s and returns the next state. It never mutates s. On error the returned
// state equals s.
func Reduce(s State, e Event) (State, error) {
	next, changed, err := reduce(s.clone(), e)
	if err != nil {
		return s, err
	}
	if changed {
		next.Revision = s.Revision + 1
	}
	return next, nil
}

func reduce(s State, e Event) (State, bool, error) {
	switch ev := e.(type) {
	case AddToCart:
		if err := editable(s); err != nil {
			return s, false, err
		}
		if line, ok := s.Cart.Line(ev.Product.ID); ok && line.Quantity >= domain.MaxLineQuantity {
			return s, false, ErrQuantityLimit
		}
		s.Cart.Add(ev.Product)
		return s, true, nil

	case SetQuantity:
		if err := editable(s); err != nil {
			return s, false, err
		}
		if ev.Quantity > domain.MaxLineQuantity {
			return s, false, ErrQuantityLimit
		}
		s.Cart.SetQuantity(ev.ProductID, ev.Quantity)
		return s, true, nil

	case RemoveFromCart:
		if err := editable(s); err != nil {
			return s, false, err
		}
		s.Cart.Remove(ev.ProductID)
		return s, true, nil

	case EditField:
		if err := editable(s); err != nil {
			return s, false, err
		}
		if _, ok := domain.ParseField(string(ev.Field)); !ok {
			return s, false, fmt.Errorf("%w: %q", ErrUnknownField, ev.Field)
		}
		s.Form = s.Form.With(ev.Field, ev.Value)
		s.Errors = s.Errors.Without(ev.Field)
		return s, true, nil

	case SelectMethod:
		if err := editable(s); err != nil {
			return s, false, err
		}
		s.Method = ev.Method
		s.Errors = s.Errors.Without(domain.FieldPaymentMethod)
		s.PaymentError = ""
		return s, true, nil

	case SubmitRequested:
		if s.Busy() {
			return s, false, ErrSubmissionInFlight
		}
		if s.Locked() {
			return s, false, ErrOrderLocked
		}
		if s.Cart.Empty() {
			return s, false, ErrEmptyCart
		}
		s.Phase = PhaseValidating
		s.Submitting = true
		s.PaymentError = ""
		s.OrderError = ""
		return s, true, nil

	case ValidationCompleted:
		if s.Phase != PhaseValidating {
			return s, false, transitionError(s.Phase, e)
		}
		if !ev.Errors.Valid() {
			s.Phase = PhaseInvalid
			s.Errors = copyErrors(ev.Errors)
			s.Submitting = false
			return s, true, nil
		}
		s.Errors = nil
		switch {
		case s.ReusableCapture():
			s.Phase = PhasePlacingOrder
		case s.Method.Immediate():
			s.CapturedPayment = nil
			s.Phase = PhasePaymentPending
			s.PaymentProcessing = true
		default:
			s.CapturedPayment = nil
			s.Phase = PhasePlacingOrder
		}
		return s, true, nil

	case PaymentSucceeded:
		if s.Phase != PhasePaymentPending {
			return s, false, transitionError(s.Phase, e)
		}
		ref := ev.Reference
		s.CapturedPayment = &ref
		s.PaymentProcessing = false
		s.Phase = PhasePlacingOrder
		return s, true, nil

	case PaymentFailed:
		if s.Phase != PhasePaymentPending {
			return s, false, transitionError(s.Phase, e)
		}
		s.Phase = PhaseFailed
		s.PaymentError = ev.Message
		s.PaymentProcessing = false
		s.Submitting = false
		return s, true, nil

	case OrderPlaced:
		if s.Phase != PhasePlacingOrder {
			return s, false, transitionError(s.Phase, e)
		}
		result := ev.Result
		s.Confirmation = &result
		s.CapturedPayment = nil
		s.Submitting = false
		s.PaymentProcessing = false
		s.OrderError = ""
		if s.Method == domain.PaymentBankTransfer {
			s.AwaitingAcknowledgement = true
			s.Instructions = ev.Instructions
			return s, true, nil
		}
		s.Phase = PhaseCompleted
		s.ResetAt = ev.At.Add(ev.Delay)
		return s, true, nil

	case OrderFailed:
		if s.Phase != PhasePlacingOrder {
			return s, false, transitionError(s.Phase, e)
		}
		s.OrderError = ev.Message
		s.Submitting = false
		s.PaymentProcessing = false
		if s.Method.Immediate() {
			s.Phase = PhaseFailed
		} else {
			s.Phase = PhaseInvalid
		}
		return s, true, nil

	case Acknowledged:
		if !s.AwaitingAcknowledgement {
			return s, false, ErrNotAwaitingAcknowledgement
		}
		s.AwaitingAcknowledgement = false
		s.Phase = PhaseCompleted
		s.ResetAt = ev.At.Add(ev.Delay)
		return s, true, nil

	case ResetDue:
		if s.Phase != PhaseCompleted || ev.Now.Before(s.ResetAt) {
			return s, false, nil
		}
		return Initial(), true, nil

	case Aborted:
		if !s.Busy() {
			return s, false, nil
		}
		switch s.Phase {
		case PhasePaymentPending:
			s.Phase = PhaseFailed
			s.PaymentError = ev.Message
		case PhasePlacingOrder:
			s.OrderError = ev.Message
			if s.Method.Immediate() {
				s.Phase = PhaseFailed
			} else {
				s.Phase = PhaseInvalid
			}
		default:
			s.Phase = PhaseIdle
		}
		s.Submitting = false
		s.PaymentProcessing = false
		return s, true, nil

	default:
		return s, false, fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, e)
	}
}

func editable(s State) error {
	if s.Busy() {
		return ErrSubmissionInFlight
	}
	if s.Locked() {
		return ErrOrderLocked
	}
	return nil
}

func transitionError(phase Phase, e Event) error {
	return fmt.Errorf("%w: %T in phase %s", ErrInvalidTransition, e, phase)
}

func copyErrors(errs domain.FieldErrors) domain.FieldErrors {
	out := make(domain.FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
