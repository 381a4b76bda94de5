package domain

import (
	"strings"
	"time"
)

// PaymentStatus is the settlement state recorded on a persisted order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
)

// PaymentStatusFor derives the initial payment status for method.
func PaymentStatusFor(method PaymentMethod) PaymentStatus {
	if method.Deferred() {
		return PaymentStatusPending
	}
	return PaymentStatusProcessing
}

// OrderItem is one line of an order draft.
type OrderItem struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Tagline   string  `json:"tagline,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Subtotal returns price × quantity.
func (i OrderItem) Subtotal() float64 {
	return FromCents(ToCents(i.Price) * int64(i.Quantity))
}

// Customer carries the buyer's identity fields.
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Shipping carries the delivery address.
type Shipping struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// FullAddress renders "address, city, state zip".
func (s Shipping) FullAddress() string {
	return s.Address + ", " + s.City + ", " + s.State + " " + s.Zip
}

// OrderDraft is assembled once per checkout attempt and never mutated afterwards.
type OrderDraft struct {
	Customer      Customer          `json:"customer"`
	Shipping      Shipping          `json:"shipping"`
	Items         []OrderItem       `json:"items"`
	TotalAmount   float64           `json:"totalAmount"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	Payment       *PaymentReference `json:"payment,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// NewOrderDraft snapshots form and cart lines into a draft. Text fields are trimmed.
func NewOrderDraft(form CheckoutForm, lines []CartLine, method PaymentMethod, ref *PaymentReference, now time.Time) OrderDraft {
	items := make([]OrderItem, 0, len(lines))
	var total int64
	for _, line := range lines {
		items = append(items, OrderItem{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Tagline:   line.Product.Tagline,
			Price:     line.Product.Price,
			Quantity:  line.Quantity,
		})
		total += line.Subtotal()
	}
	var payment *PaymentReference
	if ref != nil {
		copied := *ref
		payment = &copied
	}
	return OrderDraft{
		Customer: Customer{
			FirstName: strings.TrimSpace(form.FirstName),
			LastName:  strings.TrimSpace(form.LastName),
			Email:     strings.TrimSpace(form.Email),
		},
		Shipping: Shipping{
			Address: strings.TrimSpace(form.Address),
			City:    strings.TrimSpace(form.City),
			State:   strings.TrimSpace(form.State),
			Zip:     strings.TrimSpace(form.Zip),
		},
		Items:         items,
		TotalAmount:   FromCents(total),
		PaymentMethod: method,
		Payment:       payment,
		CreatedAt:     now.UTC(),
	}
}

// OrderResult is the backend's answer to an order creation request.
type OrderResult struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"orderNumber,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Error       string `json:"error,omitempty"`
}
