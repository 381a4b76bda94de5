package handlers

import (
	"time"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
)

type cartItemView struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Tagline   string  `json:"tagline,omitempty"`
	Image     string  `json:"image"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

type cartView struct {
	Items          []cartItemView `json:"items"`
	Count          int            `json:"count"`
	Total          float64        `json:"total"`
	TotalFormatted string         `json:"totalFormatted"`
}

type checkoutView struct {
	Phase                   checkout.Phase                     `json:"phase"`
	Cart                    cartView                           `json:"cart"`
	Form                    domain.CheckoutForm                `json:"form"`
	FieldErrors             domain.FieldErrors                 `json:"fieldErrors,omitempty"`
	PaymentMethod           domain.PaymentMethod               `json:"paymentMethod,omitempty"`
	Submitting              bool                               `json:"submitting"`
	PaymentProcessing       bool                               `json:"paymentProcessing"`
	PaymentError            string                             `json:"paymentError,omitempty"`
	OrderError              string                             `json:"orderError,omitempty"`
	Confirmation            *domain.OrderResult                `json:"confirmation,omitempty"`
	BankTransfer            *checkout.BankTransferInstructions `json:"bankTransfer,omitempty"`
	AwaitingAcknowledgement bool                               `json:"awaitingAcknowledgement"`
	ResetAt                 *time.Time                         `json:"resetAt,omitempty"`
	PaymentCaptured         bool                               `json:"paymentCaptured"`
	Revision                int64                              `json:"revision"`
}

func newCartView(state checkout.State, currency string) cartView {
	lines := state.Cart.Lines()
	items := make([]cartItemView, 0, len(lines))
	for _, line := range lines {
		items = append(items, cartItemView{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Tagline:   line.Product.Tagline,
			Image:     line.Product.Image,
			Price:     line.Product.Price,
			Quantity:  line.Quantity,
			Subtotal:  domain.FromCents(line.Subtotal()),
		})
	}
	total := state.Cart.Total()
	return cartView{
		Items:          items,
		Count:          state.Cart.Count(),
		Total:          total,
		TotalFormatted: domain.FormatPriceIn(currency, total),
	}
}

// newCheckoutView omits the captured payment reference; clients only learn that one exists.
func newCheckoutView(state checkout.State, currency string) checkoutView {
	view := checkoutView{
		Phase:                   state.Phase,
		Cart:                    newCartView(state, currency),
		Form:                    state.Form,
		FieldErrors:             state.Errors,
		PaymentMethod:           state.Method,
		Submitting:              state.Submitting,
		PaymentProcessing:       state.PaymentProcessing,
		PaymentError:            state.PaymentError,
		OrderError:              state.OrderError,
		Confirmation:            state.Confirmation,
		BankTransfer:            state.Instructions,
		AwaitingAcknowledgement: state.AwaitingAcknowledgement,
		PaymentCaptured:         state.CapturedPayment != nil,
		Revision:                state.Revision,
	}
	if !state.ResetAt.IsZero() {
		resetAt := state.ResetAt
		view.ResetAt = &resetAt
	}
	return view
}
