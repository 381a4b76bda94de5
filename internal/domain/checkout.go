package domain

import (
	"fmt"
	"strings"
)

// Field names a checkout input that can carry a validation error.
type Field string

const (
	FieldFirstName     Field = "firstName"
	FieldLastName      Field = "lastName"
	FieldEmail         Field = "email"
	FieldAddress       Field = "address"
	FieldCity          Field = "city"
	FieldState         Field = "state"
	FieldZip           Field = "zip"
	FieldPaymentMethod Field = "paymentMethod"
)

// FormFields lists the editable form fields in display order.
var FormFields = []Field{FieldFirstName, FieldLastName, FieldEmail, FieldAddress, FieldCity, FieldState, FieldZip}

// ParseField resolves a form field name. paymentMethod is not editable and is rejected.
func ParseField(raw string) (Field, bool) {
	for _, f := range FormFields {
		if string(f) == strings.TrimSpace(raw) {
			return f, true
		}
	}
	return "", false
}

// CheckoutForm holds the customer and shipping inputs.
type CheckoutForm struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

// Value returns the raw value of field.
func (f CheckoutForm) Value(field Field) string {
	switch field {
	case FieldFirstName:
		return f.FirstName
	case FieldLastName:
		return f.LastName
	case FieldEmail:
		return f.Email
	case FieldAddress:
		return f.Address
	case FieldCity:
		return f.City
	case FieldState:
		return f.State
	case FieldZip:
		return f.Zip
	default:
		return ""
	}
}

// With returns a copy of the form with field set to value.
func (f CheckoutForm) With(field Field, value string) CheckoutForm {
	switch field {
	case FieldFirstName:
		f.FirstName = value
	case FieldLastName:
		f.LastName = value
	case FieldEmail:
		f.Email = value
	case FieldAddress:
		f.Address = value
	case FieldCity:
		f.City = value
	case FieldState:
		f.State = value
	case FieldZip:
		f.Zip = value
	}
	return f
}

// FieldErrors maps each rejected field to a human readable message.
type FieldErrors map[Field]string

// Valid reports whether no field was rejected.
func (e FieldErrors) Valid() bool {
	return len(e) == 0
}

// Without returns a copy of e minus field. A nil map stays nil.
func (e FieldErrors) Without(field Field) FieldErrors {
	if len(e) == 0 {
		return nil
	}
	out := make(FieldErrors, len(e))
	for k, v := range e {
		if k != field {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// PaymentMethod is the closed set of ways a shopper can pay.
type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentApplePay       PaymentMethod = "apple_pay"
	PaymentGooglePay      PaymentMethod = "google_pay"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// PaymentMethods lists every method in selector order.
var PaymentMethods = []PaymentMethod{
	PaymentCreditCard,
	PaymentPayPal,
	PaymentApplePay,
	PaymentGooglePay,
	PaymentBankTransfer,
	PaymentCashOnDelivery,
}

// ParsePaymentMethod resolves a method identifier.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	candidate := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	for _, m := range PaymentMethods {
		if m == candidate {
			return m, nil
		}
	}
	return "", fmt.Errorf("domain: unknown payment method %q", raw)
}

// Immediate reports whether funds are captured before the order is created.
func (m PaymentMethod) Immediate() bool {
	switch m {
	case PaymentCreditCard, PaymentPayPal, PaymentApplePay, PaymentGooglePay:
		return true
	default:
		return false
	}
}

// Deferred reports whether the order is created before payment settles.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentBankTransfer || m == PaymentCashOnDelivery
}

// Processor returns the processor that captures immediate payments.
func (m PaymentMethod) Processor() Processor {
	switch m {
	case PaymentCreditCard, PaymentApplePay, PaymentGooglePay:
		return ProcessorStripe
	case PaymentPayPal:
		return ProcessorPayPal
	default:
		return ""
	}
}

// Processor tags the external system holding a payment.
type Processor string

const (
	ProcessorStripe Processor = "stripe"
	ProcessorPayPal Processor = "paypal"
)

// ReferenceKind describes what a payment reference token identifies.
type ReferenceKind string

const (
	ReferencePaymentIntent ReferenceKind = "payment_intent"
	ReferencePayPalOrder   ReferenceKind = "paypal_order"
	ReferenceTransaction   ReferenceKind = "transaction"
)

// PaymentReference is the confirmation an executor returns after capturing funds.
type PaymentReference struct {
	Processor Processor     `json:"processor"`
	Token     string        `json:"token"`
	Kind      ReferenceKind `json:"kind"`
	Amount    int64         `json:"amount"`
}

// Key identifies the captured payment across retries.
func (r PaymentReference) Key() string {
	return string(r.Processor) + ":" + r.Token
}
