package checkout

import (
	"testing"

	"github.com/brickmini/storefront/internal/domain"
)

func validForm() domain.CheckoutForm {
	return domain.CheckoutForm{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Address:   "1 Analytical Way",
		City:      "London",
		State:     "NY",
		Zip:       "12345",
	}
}

func TestValidateAllBlankReportsEveryField(t *testing.T) {
	errs := Validate(domain.CheckoutForm{FirstName: "   "}, "")
	if len(errs) != len(domain.FormFields)+1 {
		t.Fatalf("expected %d errors, got %d: %v", len(domain.FormFields)+1, len(errs), errs)
	}
	for _, field := range domain.FormFields {
		if _, ok := errs[field]; !ok {
			t.Fatalf("missing %s error in %v", field, errs)
		}
	}
	if errs[domain.FieldPaymentMethod] != "Please select a payment method" {
		t.Fatalf("unexpected payment message %q", errs[domain.FieldPaymentMethod])
	}
	if errs[domain.FieldFirstName] != "First name is required" {
		t.Fatalf("blank after trim should be required, got %q", errs[domain.FieldFirstName])
	}
}

func TestValidateEmailShape(t *testing.T) {
	form := validForm()
	form.Email = "a@b"
	errs := Validate(form, domain.PaymentCreditCard)
	if errs[domain.FieldEmail] != "Please enter a valid email address" {
		t.Fatalf("expected email error, got %v", errs)
	}

	form.Email = "a@b.com"
	if errs := Validate(form, domain.PaymentCreditCard); !errs.Valid() {
		t.Fatalf("expected valid form, got %v", errs)
	}
}

func TestValidateZip(t *testing.T) {
	cases := map[string]bool{
		"1234":   false,
		"abcde":  false,
		"123456": false,
		"12345":  true,
	}
	for zip, ok := range cases {
		form := validForm()
		form.Zip = zip
		errs := Validate(form, domain.PaymentPayPal)
		_, rejected := errs[domain.FieldZip]
		if rejected == ok {
			t.Fatalf("zip %q: expected ok=%v, got errors %v", zip, ok, errs)
		}
		if rejected && errs[domain.FieldZip] != "ZIP code must be 5 digits" {
			t.Fatalf("zip %q: unexpected message %q", zip, errs[domain.FieldZip])
		}
	}
}

func TestValidateRulesRunIndependently(t *testing.T) {
	form := validForm()
	form.Email = "nope"
	form.Zip = "12"
	form.City = ""
	errs := Validate(form, "")

	for _, field := range []domain.Field{domain.FieldEmail, domain.FieldZip, domain.FieldCity, domain.FieldPaymentMethod} {
		if _, ok := errs[field]; !ok {
			t.Fatalf("expected %s error in %v", field, errs)
		}
	}
	if len(errs) != 4 {
		t.Fatalf("expected exactly 4 errors, got %v", errs)
	}
}
