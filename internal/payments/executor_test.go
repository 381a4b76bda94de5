package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/brickmini/storefront/internal/domain"
)

type fakeExecutor struct {
	calls int
	last  Request
	ref   domain.PaymentReference
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, req Request) (domain.PaymentReference, error) {
	f.calls++
	f.last = req
	return f.ref, f.err
}

func TestRegistryDispatchesByMethod(t *testing.T) {
	stripeExec := &fakeExecutor{ref: domain.PaymentReference{Token: "pi_1"}}
	paypalExec := &fakeExecutor{ref: domain.PaymentReference{Token: "PAY-1", Processor: domain.ProcessorPayPal}}

	reg, err := NewRegistry(
		WithExecutor(stripeExec, StripeMethods...),
		WithExecutor(paypalExec, domain.PaymentPayPal),
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ref, err := reg.Execute(context.Background(), Request{Method: domain.PaymentGooglePay, Token: "pm_1", Amount: 1299})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stripeExec.calls != 1 || paypalExec.calls != 0 {
		t.Fatalf("unexpected dispatch: stripe=%d paypal=%d", stripeExec.calls, paypalExec.calls)
	}
	if ref.Processor != domain.ProcessorStripe {
		t.Fatalf("expected stripe processor tag, got %q", ref.Processor)
	}
	if ref.Amount != 1299 {
		t.Fatalf("expected amount defaulted from request, got %d", ref.Amount)
	}
	if ref.Kind != domain.ReferenceTransaction {
		t.Fatalf("expected generic transaction kind, got %q", ref.Kind)
	}

	if _, err := reg.Execute(context.Background(), Request{Method: domain.PaymentPayPal, Token: "order"}); err != nil {
		t.Fatalf("execute paypal: %v", err)
	}
	if paypalExec.last.Token != "order" {
		t.Fatalf("paypal executor did not receive request")
	}
}

func TestRegistryRejectsDeferredMethods(t *testing.T) {
	_, err := NewRegistry(WithExecutor(&fakeExecutor{}, domain.PaymentCashOnDelivery))
	if !errors.Is(err, ErrDeferredMethod) {
		t.Fatalf("expected ErrDeferredMethod, got %v", err)
	}
	if _, err := NewRegistry(WithExecutor(nil, domain.PaymentCreditCard)); err == nil {
		t.Fatalf("expected error for nil executor")
	}
}

func TestRegistryUnconfiguredMethod(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if reg.Configured(domain.PaymentCreditCard) {
		t.Fatalf("expected credit card to be unconfigured")
	}
	_, err = reg.Execute(context.Background(), Request{Method: domain.PaymentCreditCard})
	if !errors.Is(err, ErrExecutorNotConfigured) {
		t.Fatalf("expected ErrExecutorNotConfigured, got %v", err)
	}
	if msg := UserMessage(err); msg != "This payment method is currently unavailable." {
		t.Fatalf("unexpected user message %q", msg)
	}
}

func TestUserMessageFallsBackForPlainErrors(t *testing.T) {
	if got := UserMessage(errors.New("boom")); got != genericFailureMessage {
		t.Fatalf("unexpected message %q", got)
	}
	wrapped := errors.Join(errors.New("outer"), &PaymentError{Message: "card declined"})
	if got := UserMessage(wrapped); got != "card declined" {
		t.Fatalf("unexpected message %q", got)
	}
}
