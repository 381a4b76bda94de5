package checkout

import (
	"github.com/brickmini/storefront/internal/domain"
)

// Capabilities describes what the shopper's platform supports.
type Capabilities struct {
	ApplePay  bool `json:"applePay"`
	GooglePay bool `json:"googlePay"`
}

// MethodInfo is the static description of one payment method.
type MethodInfo struct {
	Method      domain.PaymentMethod
	Name        string
	Description string
	available   func(Capabilities) bool
}

// MethodOption is a method as offered to a particular shopper.
type MethodOption struct {
	Method      domain.PaymentMethod `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Available   bool                 `json:"available"`
	Selected    bool                 `json:"selected"`
}

func always(Capabilities) bool { return true }

var methodTable = map[domain.PaymentMethod]MethodInfo{
	domain.PaymentCreditCard: {
		Method:      domain.PaymentCreditCard,
		Name:        "Credit/Debit Card",
		Description: "Pay securely with Visa, Mastercard, or Amex",
		available:   always,
	},
	domain.PaymentPayPal: {
		Method:      domain.PaymentPayPal,
		Name:        "PayPal",
		Description: "Fast and secure PayPal checkout",
		available:   always,
	},
	domain.PaymentApplePay: {
		Method:      domain.PaymentApplePay,
		Name:        "Apple Pay",
		Description: "Quick checkout with Apple Pay",
		available:   func(c Capabilities) bool { return c.ApplePay },
	},
	domain.PaymentGooglePay: {
		Method:      domain.PaymentGooglePay,
		Name:        "Google Pay",
		Description: "Pay with Google Pay",
		available:   func(c Capabilities) bool { return c.GooglePay },
	},
	domain.PaymentBankTransfer: {
		Method:      domain.PaymentBankTransfer,
		Name:        "Bank Transfer",
		Description: "Direct bank transfer (manual verification)",
		available:   always,
	},
	domain.PaymentCashOnDelivery: {
		Method:      domain.PaymentCashOnDelivery,
		Name:        "Cash on Delivery",
		Description: "Pay when you receive your order",
		available:   always,
	},
}

// Info returns the static description of method.
func Info(method domain.PaymentMethod) (MethodInfo, bool) {
	info, ok := methodTable[method]
	return info, ok
}

// Selector decides which methods a shopper may pick. It holds no per-shopper state; the selection
// itself lives in State.
type Selector struct {
	configured func(domain.PaymentMethod) bool
}

// NewSelector builds a selector. configured reports whether the backend can execute a method;
// nil treats every method as configured.
func NewSelector(configured func(domain.PaymentMethod) bool) Selector {
	return Selector{configured: configured}
}

// Available reports whether method can be selected on a platform with caps.
func (s Selector) Available(method domain.PaymentMethod, caps Capabilities) bool {
	info, ok := methodTable[method]
	if !ok || !info.available(caps) {
		return false
	}
	if method.Immediate() && s.configured != nil && !s.configured(method) {
		return false
	}
	return true
}

// Options lists every method in display order, marking availability and the current selection.
func (s Selector) Options(caps Capabilities, selected domain.PaymentMethod) []MethodOption {
	out := make([]MethodOption, 0, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		info := methodTable[method]
		out = append(out, MethodOption{
			Method:      method,
			Name:        info.Name,
			Description: info.Description,
			Available:   s.Available(method, caps),
			Selected:    method == selected,
		})
	}
	return out
}
