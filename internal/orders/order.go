package orders

import (
	"context"
	"errors"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

// StatusPending is the fulfilment status of every newly created order.
const StatusPending = "pending"

var (
	// ErrDuplicateOrder is returned when an order id or number already exists.
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrBackendUnavailable is returned for transient storage outages.
	ErrBackendUnavailable = errors.New("order service is temporarily unavailable")
)

// Order is the persisted form of a placed order: the draft plus backend-assigned identity.
type Order struct {
	ID            string
	Number        string
	Status        string
	PaymentStatus domain.PaymentStatus
	Draft         domain.OrderDraft
	CreatedAt     time.Time
}

// Backend persists an order header and its line items atomically.
type Backend interface {
	CreateOrder(ctx context.Context, order Order) error
}
