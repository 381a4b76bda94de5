// Package notify forwards placed orders to external automation.
package notify

import (
	"context"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

// Notifier reports a placed order. A false return means the notification was skipped or failed.
type Notifier interface {
	Notify(ctx context.Context, draft domain.OrderDraft, orderNumber, orderID string) bool
}

// Logger receives structured notification events.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

// OrderPayload is the JSON document sent to automation endpoints.
type OrderPayload struct {
	OrderNumber string          `json:"orderNumber"`
	OrderID     string          `json:"orderId"`
	Customer    customerPayload `json:"customer"`
	Shipping    shippingPayload `json:"shipping"`
	Items       []itemPayload   `json:"items"`
	TotalAmount float64         `json:"totalAmount"`
	OrderDate   string          `json:"orderDate"`
}

type customerPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
}

type shippingPayload struct {
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	FullAddress string `json:"fullAddress"`
}

type itemPayload struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Tagline   string  `json:"tagline"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

// NewOrderPayload renders draft as the automation payload, stamped with at.
func NewOrderPayload(draft domain.OrderDraft, orderNumber, orderID string, at time.Time) OrderPayload {
	items := make([]itemPayload, 0, len(draft.Items))
	for _, item := range draft.Items {
		items = append(items, itemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Tagline:   item.Tagline,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
		})
	}
	return OrderPayload{
		OrderNumber: orderNumber,
		OrderID:     orderID,
		Customer: customerPayload{
			FirstName: draft.Customer.FirstName,
			LastName:  draft.Customer.LastName,
			Email:     draft.Customer.Email,
			FullName:  draft.Customer.FirstName + " " + draft.Customer.LastName,
		},
		Shipping: shippingPayload{
			Address:     draft.Shipping.Address,
			City:        draft.Shipping.City,
			State:       draft.Shipping.State,
			Zip:         draft.Shipping.Zip,
			FullAddress: draft.Shipping.FullAddress(),
		},
		Items:       items,
		TotalAmount: draft.TotalAmount,
		OrderDate:   at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
