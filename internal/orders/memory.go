package orders

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps orders in process for local runs and tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	byID     map[string]Order
	byNumber map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byID: map[string]Order{}, byNumber: map[string]string{}}
}

func (m *MemoryBackend) CreateOrder(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[order.ID]; exists {
		return ErrDuplicateOrder
	}
	if _, exists := m.byNumber[order.Number]; exists {
		return ErrDuplicateOrder
	}
	order.Draft.Items = append(order.Draft.Items[:0:0], order.Draft.Items...)
	m.byID[order.ID] = order
	m.byNumber[order.Number] = order.ID
	return nil
}

// Get returns the order with id.
func (m *MemoryBackend) Get(id string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.byID[id]
	return order, ok
}

// Orders lists stored orders oldest first.
func (m *MemoryBackend) Orders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.byID))
	for _, order := range m.byID {
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number < out[j].Number
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
