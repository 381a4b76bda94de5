package checkout

import (
	"regexp"
	"strings"

	"github.com/brickmini/storefront/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	zipPattern   = regexp.MustCompile(`^\d{5}$`)
)

var requiredMessages = map[domain.Field]string{
	domain.FieldFirstName: "First name is required",
	domain.FieldLastName:  "Last name is required",
	domain.FieldEmail:     "Email is required",
	domain.FieldAddress:   "Address is required",
	domain.FieldCity:      "City is required",
	domain.FieldState:     "State is required",
	domain.FieldZip:       "ZIP code is required",
}

const (
	msgInvalidEmail   = "Please enter a valid email address"
	msgInvalidZip     = "ZIP code must be 5 digits"
	msgPaymentMissing = "Please select a payment method"
)

// Validate runs every rule against form and the selected method and returns the rejected fields.
// An empty result means the form may be submitted.
func Validate(form domain.CheckoutForm, method domain.PaymentMethod) domain.FieldErrors {
	errs := domain.FieldErrors{}

	for _, field := range domain.FormFields {
		if strings.TrimSpace(form.Value(field)) == "" {
			errs[field] = requiredMessages[field]
		}
	}

	// Shape checks apply to the raw value; surrounding blanks make it invalid.
	if strings.TrimSpace(form.Email) != "" && !emailPattern.MatchString(form.Email) {
		errs[domain.FieldEmail] = msgInvalidEmail
	}
	if strings.TrimSpace(form.Zip) != "" && !zipPattern.MatchString(form.Zip) {
		errs[domain.FieldZip] = msgInvalidZip
	}

	if method == "" {
		errs[domain.FieldPaymentMethod] = msgPaymentMissing
	}

	return errs
}
