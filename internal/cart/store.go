// Package cart keeps the shopper's product → quantity bookkeeping.
package cart

import (
	"encoding/json"

	"github.com/brickmini/storefront/internal/domain"
)

// Store holds at most one line per product id, in insertion order. The zero value is an empty cart.
// Count and Total are folded over the current lines on every call.
type Store struct {
	lines []domain.CartLine
}

// FromLines rebuilds a store from persisted lines, merging duplicates, dropping non-positive
// quantities and capping each line at domain.MaxLineQuantity.
func FromLines(lines []domain.CartLine) Store {
	var s Store
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		line.Quantity = min(line.Quantity, domain.MaxLineQuantity)
		if idx := s.index(line.Product.ID); idx >= 0 {
			s.lines[idx].Quantity = min(s.lines[idx].Quantity+line.Quantity, domain.MaxLineQuantity)
			continue
		}
		s.lines = append(s.lines, line)
	}
	return s
}

// Add increments the quantity of an existing line or appends a new line with quantity 1.
func (s *Store) Add(product domain.Product) {
	if idx := s.index(product.ID); idx >= 0 {
		s.lines[idx].Quantity++
		return
	}
	s.lines = append(s.lines, domain.CartLine{Product: product, Quantity: 1})
}

// SetQuantity replaces the quantity for productID. n <= 0 removes the line; unknown ids are ignored.
func (s *Store) SetQuantity(productID int64, n int) {
	idx := s.index(productID)
	if idx < 0 {
		return
	}
	if n <= 0 {
		s.removeAt(idx)
		return
	}
	s.lines[idx].Quantity = n
}

// Remove deletes the line for productID if present.
func (s *Store) Remove(productID int64) {
	if idx := s.index(productID); idx >= 0 {
		s.removeAt(idx)
	}
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.lines = nil
}

// Clone returns a store that shares no memory with s.
func (s Store) Clone() Store {
	return Store{lines: s.Lines()}
}

// Lines returns a copy of the current lines.
func (s Store) Lines() []domain.CartLine {
	if len(s.lines) == 0 {
		return nil
	}
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Line returns the line for productID.
func (s Store) Line(productID int64) (domain.CartLine, bool) {
	if idx := s.index(productID); idx >= 0 {
		return s.lines[idx], true
	}
	return domain.CartLine{}, false
}

// Empty reports whether the cart has no lines.
func (s Store) Empty() bool {
	return len(s.lines) == 0
}

// Count is the sum of quantities.
func (s Store) Count() int {
	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// TotalCents is the sum of price × quantity in minor units.
func (s Store) TotalCents() int64 {
	var total int64
	for _, line := range s.lines {
		total += line.Subtotal()
	}
	return total
}

// Total is the sum of price × quantity.
func (s Store) Total() float64 {
	return domain.FromCents(s.TotalCents())
}

func (s Store) index(productID int64) int {
	for i, line := range s.lines {
		if line.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(idx int) {
	lines := make([]domain.CartLine, 0, len(s.lines)-1)
	lines = append(lines, s.lines[:idx]...)
	lines = append(lines, s.lines[idx+1:]...)
	if len(lines) == 0 {
		lines = nil
	}
	s.lines = lines
}

type storeJSON struct {
	Lines []domain.CartLine `json:"lines"`
}

// MarshalJSON encodes the cart as {"lines": [...]}.
func (s Store) MarshalJSON() ([]byte, error) {
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return json.Marshal(storeJSON{Lines: lines})
}

// UnmarshalJSON restores the cart, normalising duplicate or non-positive lines.
func (s *Store) UnmarshalJSON(data []byte) error {
	var payload storeJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*s = FromLines(payload.Lines)
	return nil
}
