package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brickmini/storefront/internal/domain"
)

var (
	// ErrExecutorNotConfigured is returned when no executor is registered for a method.
	ErrExecutorNotConfigured = errors.New("payments: no executor configured for method")
	// ErrDeferredMethod is returned when registering an executor for a method that is paid later.
	ErrDeferredMethod = errors.New("payments: method does not capture funds at checkout")
)

const genericFailureMessage = "Payment could not be processed. Please try again."

// Request describes a single capture attempt.
type Request struct {
	Method domain.PaymentMethod
	// Token is the processor-issued handle obtained by the shopper's client: a Stripe payment method id
	// or an approved PayPal order id.
	Token          string
	Amount         int64
	Currency       string
	Email          string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Executor captures funds for one or more immediate payment methods.
type Executor interface {
	Execute(ctx context.Context, req Request) (domain.PaymentReference, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (domain.PaymentReference, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (domain.PaymentReference, error) {
	return f(ctx, req)
}

// PaymentError is a capture failure carrying a message safe to show the shopper.
type PaymentError struct {
	Method  domain.PaymentMethod
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payments: %s: %s: %v", e.Method, e.Message, e.Err)
	}
	return fmt.Sprintf("payments: %s: %s", e.Method, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// UserMessage extracts the shopper-facing message from err.
func UserMessage(err error) string {
	var perr *PaymentError
	if errors.As(err, &perr) && strings.TrimSpace(perr.Message) != "" {
		return perr.Message
	}
	return genericFailureMessage
}

// Registry maps each immediate payment method to the executor that captures it.
type Registry struct {
	executors map[domain.PaymentMethod]Executor
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithExecutor registers exec for the given methods.
func WithExecutor(exec Executor, methods ...domain.PaymentMethod) RegistryOption {
	return func(r *Registry) error {
		for _, method := range methods {
			if err := r.register(method, exec); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewRegistry builds a registry. A registry without executors is valid; every immediate method is
// then reported as not configured.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{executors: make(map[domain.PaymentMethod]Executor)}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(method domain.PaymentMethod, exec Executor) error {
	if exec == nil {
		return fmt.Errorf("payments: nil executor for %q", method)
	}
	if _, err := domain.ParsePaymentMethod(string(method)); err != nil {
		return err
	}
	if !method.Immediate() {
		return fmt.Errorf("%w: %s", ErrDeferredMethod, method)
	}
	r.executors[method] = exec
	return nil
}

// Lookup returns the executor for method.
func (r *Registry) Lookup(method domain.PaymentMethod) (Executor, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotConfigured, method)
	}
	exec, ok := r.executors[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotConfigured, method)
	}
	return exec, nil
}

// Configured reports whether method has an executor.
func (r *Registry) Configured(method domain.PaymentMethod) bool {
	_, err := r.Lookup(method)
	return err == nil
}

// Execute dispatches req to the executor registered for req.Method. The returned reference always
// carries the processor tag of the method.
func (r *Registry) Execute(ctx context.Context, req Request) (domain.PaymentReference, error) {
	exec, err := r.Lookup(req.Method)
	if err != nil {
		return domain.PaymentReference{}, &PaymentError{Method: req.Method, Message: "This payment method is currently unavailable.", Err: err}
	}
	ref, err := exec.Execute(ctx, req)
	if err != nil {
		return domain.PaymentReference{}, err
	}
	if ref.Processor == "" {
		ref.Processor = req.Method.Processor()
	}
	if ref.Amount == 0 {
		ref.Amount = req.Amount
	}
	if ref.Kind == "" {
		ref.Kind = domain.ReferenceTransaction
	}
	return ref, nil
}
