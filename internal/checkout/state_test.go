package checkout

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

func mustReduce(t *testing.T, s State, events ...Event) State {
	t.Helper()
	for _, e := range events {
		var err error
		s, err = Reduce(s, e)
		if err != nil {
			t.Fatalf("reduce %T: %v", e, err)
		}
	}
	return s
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	start := mustReduce(t, Initial(), AddToCart{Product: domain.Product{ID: 1, Price: 2}})
	next := mustReduce(t, start, AddToCart{Product: domain.Product{ID: 1, Price: 2}}, EditField{Field: domain.FieldCity, Value: "Paris"})

	if line, _ := start.Cart.Line(1); line.Quantity != 1 {
		t.Fatalf("input cart mutated: %d", line.Quantity)
	}
	if start.Form.City != "" {
		t.Fatalf("input form mutated")
	}
	if line, _ := next.Cart.Line(1); line.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", line.Quantity)
	}
	if next.Revision != start.Revision+2 {
		t.Fatalf("expected revision to advance per change, got %d -> %d", start.Revision, next.Revision)
	}
}

func TestReduceCapsLineQuantity(t *testing.T) {
	product := domain.Product{ID: 1, Price: 12.99}
	s := mustReduce(t, Initial(), AddToCart{Product: product}, SetQuantity{ProductID: 1, Quantity: domain.MaxLineQuantity})

	for _, e := range []Event{
		SetQuantity{ProductID: 1, Quantity: domain.MaxLineQuantity + 1},
		SetQuantity{ProductID: 1, Quantity: int(^uint(0) >> 1)},
		AddToCart{Product: product},
	} {
		next, err := Reduce(s, e)
		if !errors.Is(err, ErrQuantityLimit) {
			t.Fatalf("%T: expected ErrQuantityLimit, got %v", e, err)
		}
		if next.Revision != s.Revision {
			t.Fatalf("%T: rejected event changed the state", e)
		}
	}
	if got := s.Cart.TotalCents(); got != 1299*domain.MaxLineQuantity {
		t.Fatalf("unexpected total %d", got)
	}
}

func TestReduceEditFieldClearsOnlyThatError(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 1}},
		SubmitRequested{},
		ValidationCompleted{Errors: Validate(domain.CheckoutForm{}, "")},
	)
	if s.Phase != PhaseInvalid || s.Submitting {
		t.Fatalf("expected invalid resting phase, got %+v", s)
	}
	total := len(s.Errors)

	s = mustReduce(t, s, EditField{Field: domain.FieldCity, Value: "x"})
	if _, ok := s.Errors[domain.FieldCity]; ok {
		t.Fatalf("city error should be cleared")
	}
	if len(s.Errors) != total-1 {
		t.Fatalf("other errors should remain, got %v", s.Errors)
	}

	s = mustReduce(t, s, SelectMethod{Method: domain.PaymentPayPal})
	if _, ok := s.Errors[domain.FieldPaymentMethod]; ok {
		t.Fatalf("selecting a method should clear its error")
	}
}

func TestReduceRejectsSubmitWhileBusyAndEmptyCart(t *testing.T) {
	if _, err := Reduce(Initial(), SubmitRequested{}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	s := mustReduce(t, Initial(), AddToCart{Product: domain.Product{ID: 1}}, SubmitRequested{})
	if _, err := Reduce(s, SubmitRequested{}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if _, err := Reduce(s, AddToCart{Product: domain.Product{ID: 2}}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("cart edits must wait for the submission, got %v", err)
	}
}

func TestReduceImmediatePathTransitions(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
		SelectMethod{Method: domain.PaymentCreditCard},
		SubmitRequested{},
		ValidationCompleted{},
	)
	if s.Phase != PhasePaymentPending || !s.PaymentProcessing {
		t.Fatalf("expected payment pending, got %s", s.Phase)
	}

	ref := domain.PaymentReference{Processor: domain.ProcessorStripe, Token: "pi_1", Amount: 1000}
	s = mustReduce(t, s, PaymentSucceeded{Reference: ref}, OrderFailed{Message: "backend down"})
	if s.Phase != PhaseFailed || s.OrderError != "backend down" || s.Busy() {
		t.Fatalf("unexpected failed state %+v", s)
	}
	if s.CapturedPayment == nil || !s.ReusableCapture() {
		t.Fatalf("captured payment should be retained for retry")
	}

	s = mustReduce(t, s, SubmitRequested{}, ValidationCompleted{})
	if s.Phase != PhasePlacingOrder || s.PaymentProcessing {
		t.Fatalf("retry should skip payment, got %s", s.Phase)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s = mustReduce(t, s, OrderPlaced{Result: domain.OrderResult{Success: true, OrderNumber: "ORD-1"}, At: at, Delay: 5 * time.Second})
	if s.Phase != PhaseCompleted || s.CapturedPayment != nil {
		t.Fatalf("unexpected completed state %+v", s)
	}

	if still := mustReduce(t, s, ResetDue{Now: at.Add(4 * time.Second)}); still.Phase != PhaseCompleted {
		t.Fatalf("reset must wait for the delay")
	}
	reset := mustReduce(t, s, ResetDue{Now: at.Add(5 * time.Second)})
	if reset.Phase != PhaseIdle || !reset.Cart.Empty() || reset.Method != "" || reset.Form != (domain.CheckoutForm{}) {
		t.Fatalf("expected fresh state, got %+v", reset)
	}
}

func TestReduceCaptureNotReusedAfterCartChange(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
		SelectMethod{Method: domain.PaymentPayPal},
		SubmitRequested{},
		ValidationCompleted{},
		PaymentSucceeded{Reference: domain.PaymentReference{Processor: domain.ProcessorPayPal, Token: "O-1", Amount: 1000}},
		OrderFailed{Message: "down"},
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
	)
	if s.ReusableCapture() {
		t.Fatalf("capture for a different amount must not be reused")
	}
	s = mustReduce(t, s, SubmitRequested{}, ValidationCompleted{})
	if s.Phase != PhasePaymentPending || s.CapturedPayment != nil {
		t.Fatalf("expected a fresh payment, got %+v", s)
	}
}

func TestReduceDeferredFailureReturnsToInvalid(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
		SelectMethod{Method: domain.PaymentCashOnDelivery},
		SubmitRequested{},
		ValidationCompleted{},
	)
	if s.Phase != PhasePlacingOrder {
		t.Fatalf("deferred methods go straight to placing order, got %s", s.Phase)
	}
	s = mustReduce(t, s, OrderFailed{Message: "nope"})
	if s.Phase != PhaseInvalid || s.OrderError != "nope" || s.Cart.Empty() {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestReduceBankTransferHoldsUntilAcknowledged(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
		SelectMethod{Method: domain.PaymentBankTransfer},
		SubmitRequested{},
		ValidationCompleted{},
		OrderPlaced{
			Result:       domain.OrderResult{Success: true, OrderNumber: "ORD-9"},
			Instructions: DefaultBankAccount.Instructions("ORD-9", 10),
			At:           at,
			Delay:        time.Hour,
		},
	)
	if s.Phase != PhasePlacingOrder || !s.AwaitingAcknowledgement || s.Instructions.Reference != "ORD-9" {
		t.Fatalf("unexpected held state %+v", s)
	}
	if _, err := Reduce(s, AddToCart{Product: domain.Product{ID: 2}}); !errors.Is(err, ErrOrderLocked) {
		t.Fatalf("expected ErrOrderLocked, got %v", err)
	}
	if after := mustReduce(t, s, ResetDue{Now: at.Add(2 * time.Hour)}); after.Phase != PhasePlacingOrder {
		t.Fatalf("held order must not reset before acknowledgement")
	}

	s = mustReduce(t, s, Acknowledged{At: at, Delay: 100 * time.Millisecond})
	if s.Phase != PhaseCompleted || !s.ResetAt.Equal(at.Add(100*time.Millisecond)) {
		t.Fatalf("unexpected acknowledged state %+v", s)
	}
	if _, err := Reduce(s, Acknowledged{At: at}); !errors.Is(err, ErrNotAwaitingAcknowledgement) {
		t.Fatalf("expected ErrNotAwaitingAcknowledgement, got %v", err)
	}
}

func TestReduceAbortedResetsFlags(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 1, Price: 10}},
		SelectMethod{Method: domain.PaymentCreditCard},
		SubmitRequested{},
		ValidationCompleted{},
		Aborted{Message: "interrupted"},
	)
	if s.Busy() || s.Phase != PhaseFailed || s.PaymentError != "interrupted" {
		t.Fatalf("unexpected aborted state %+v", s)
	}
}

func TestReduceRejectsOutOfOrderEvents(t *testing.T) {
	if _, err := Reduce(Initial(), PaymentSucceeded{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := Reduce(Initial(), EditField{Field: domain.FieldPaymentMethod, Value: "x"}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	s := mustReduce(t, Initial(),
		AddToCart{Product: domain.Product{ID: 7, Name: "Jameson", Price: 88.99}},
		EditField{Field: domain.FieldEmail, Value: "a@b.com"},
		SelectMethod{Method: domain.PaymentBankTransfer},
	)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored State
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Cart.Count() != 1 || restored.Form.Email != "a@b.com" || restored.Method != domain.PaymentBankTransfer || restored.Revision != s.Revision {
		t.Fatalf("state not restored: %+v", restored)
	}
}
