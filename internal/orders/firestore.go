package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/brickmini/storefront/internal/domain"
	pfirestore "github.com/brickmini/storefront/internal/platform/firestore"
)

const (
	defaultOrdersCollection  = "orders"
	defaultNumbersCollection = "order_numbers"
)

type orderDocument struct {
	OrderNumber       string              `firestore:"order_number"`
	CustomerFirstName string              `firestore:"customer_first_name"`
	CustomerLastName  string              `firestore:"customer_last_name"`
	CustomerEmail     string              `firestore:"customer_email"`
	ShippingAddress   string              `firestore:"shipping_address"`
	ShippingCity      string              `firestore:"shipping_city"`
	ShippingState     string              `firestore:"shipping_state"`
	ShippingZip       string              `firestore:"shipping_zip"`
	TotalAmount       float64             `firestore:"total_amount"`
	OrderStatus       string              `firestore:"order_status"`
	PaymentMethod     string              `firestore:"payment_method"`
	PaymentStatus     string              `firestore:"payment_status"`
	PaymentProcessor  string              `firestore:"payment_processor,omitempty"`
	PaymentIntentID   string              `firestore:"payment_intent_id,omitempty"`
	PayPalOrderID     string              `firestore:"paypal_order_id,omitempty"`
	TransactionID     string              `firestore:"transaction_id,omitempty"`
	Items             []orderItemDocument `firestore:"items"`
	CreatedAt         time.Time           `firestore:"created_at"`
}

type orderItemDocument struct {
	ProductID      int64   `firestore:"product_id"`
	ProductName    string  `firestore:"product_name"`
	ProductTagline string  `firestore:"product_tagline"`
	Price          float64 `firestore:"price"`
	Quantity       int     `firestore:"quantity"`
	Subtotal       float64 `firestore:"subtotal"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"order_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

func newOrderDocument(order Order) orderDocument {
	draft := order.Draft
	doc := orderDocument{
		OrderNumber:       order.Number,
		CustomerFirstName: draft.Customer.FirstName,
		CustomerLastName:  draft.Customer.LastName,
		CustomerEmail:     draft.Customer.Email,
		ShippingAddress:   draft.Shipping.Address,
		ShippingCity:      draft.Shipping.City,
		ShippingState:     draft.Shipping.State,
		ShippingZip:       draft.Shipping.Zip,
		TotalAmount:       draft.TotalAmount,
		OrderStatus:       order.Status,
		PaymentMethod:     string(draft.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		Items:             make([]orderItemDocument, 0, len(draft.Items)),
		CreatedAt:         order.CreatedAt,
	}
	if ref := draft.Payment; ref != nil {
		doc.PaymentProcessor = string(ref.Processor)
		switch ref.Kind {
		case domain.ReferencePaymentIntent:
			doc.PaymentIntentID = ref.Token
		case domain.ReferencePayPalOrder:
			doc.PayPalOrderID = ref.Token
		default:
			doc.TransactionID = ref.Token
		}
	}
	for _, item := range draft.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:      item.ProductID,
			ProductName:    item.Name,
			ProductTagline: item.Tagline,
			Price:          item.Price,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal(),
		})
	}
	return doc
}

// FirestoreBackend writes orders to Firestore. The order document, its items and the order number index
// are created in a single transaction.
type FirestoreBackend struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	numbers  *pfirestore.Collection[orderNumberDocument]
}

// FirestoreOption customises the backend.
type FirestoreOption func(*firestoreSettings)

type firestoreSettings struct {
	orders  string
	numbers string
}

// WithCollections overrides the collection names.
func WithCollections(orders, numbers string) FirestoreOption {
	return func(s *firestoreSettings) {
		if v := strings.TrimSpace(orders); v != "" {
			s.orders = v
		}
		if v := strings.TrimSpace(numbers); v != "" {
			s.numbers = v
		}
	}
}

func NewFirestoreBackend(provider *pfirestore.Provider, opts ...FirestoreOption) (*FirestoreBackend, error) {
	if provider == nil {
		return nil, errors.New("orders: firestore provider is required")
	}
	settings := firestoreSettings{orders: defaultOrdersCollection, numbers: defaultNumbersCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	return &FirestoreBackend{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, settings.orders, nil),
		numbers:  pfirestore.NewCollection[orderNumberDocument](provider, settings.numbers, nil),
	}, nil
}

func (b *FirestoreBackend) CreateOrder(ctx context.Context, order Order) error {
	orderRef, err := b.orders.Ref(ctx, order.ID)
	if err != nil {
		return err
	}
	numberRef, err := b.numbers.Ref(ctx, order.Number)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	err = b.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := b.orders.CreateInTx(tx, orderRef, doc); err != nil {
			return err
		}
		return b.numbers.CreateInTx(tx, numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: order.CreatedAt})
	})
	switch {
	case err == nil:
		return nil
	case pfirestore.IsConflict(err):
		return errors.Join(ErrDuplicateOrder, err)
	case pfirestore.IsUnavailable(err):
		return errors.Join(ErrBackendUnavailable, err)
	default:
		return err
	}
}

// Get reads an order document back. Used by operators and integration tests.
func (b *FirestoreBackend) Get(ctx context.Context, id string) (Order, error) {
	doc, err := b.orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return doc.Data.toOrder(doc.ID), nil
}

func (d orderDocument) toOrder(id string) Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Tagline:   item.ProductTagline,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return Order{
		ID:            id,
		Number:        d.OrderNumber,
		Status:        d.OrderStatus,
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		CreatedAt:     d.CreatedAt,
		Draft: domain.OrderDraft{
			Customer:      domain.Customer{FirstName: d.CustomerFirstName, LastName: d.CustomerLastName, Email: d.CustomerEmail},
			Shipping:      domain.Shipping{Address: d.ShippingAddress, City: d.ShippingCity, State: d.ShippingState, Zip: d.ShippingZip},
			Items:         items,
			TotalAmount:   d.TotalAmount,
			PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
			CreatedAt:     d.CreatedAt,
		},
	}
}
