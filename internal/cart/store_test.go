package cart

import (
	"encoding/json"
	"testing"

	"github.com/brickmini/storefront/internal/domain"
)

func product(id int64, price float64) domain.Product {
	return domain.Product{ID: id, Name: "item", Price: price}
}

func TestStoreTotalsScenario(t *testing.T) {
	var s Store
	s.Add(product(1, 12.99))
	s.Add(product(1, 12.99))
	s.Add(product(2, 9.50))

	if got := s.Count(); got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}
	if got := s.TotalCents(); got != 3548 {
		t.Fatalf("expected total 3548 cents, got %d", got)
	}
	if got := s.Total(); got != 35.48 {
		t.Fatalf("expected total 35.48, got %v", got)
	}
	if len(s.Lines()) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(s.Lines()))
	}
}

func TestStoreSetQuantityNonPositiveRemoves(t *testing.T) {
	for _, n := range []int{0, -5} {
		var s Store
		s.Add(product(1, 1))
		s.Add(product(2, 2))
		s.SetQuantity(1, n)

		if _, ok := s.Line(1); ok {
			t.Fatalf("setQuantity(1, %d) should remove the line", n)
		}
		if s.Count() != 1 {
			t.Fatalf("expected count 1 after removal, got %d", s.Count())
		}
	}
}

func TestStoreSetQuantityUnknownIsNoop(t *testing.T) {
	var s Store
	s.Add(product(1, 4))
	s.SetQuantity(99, 3)

	if s.Count() != 1 || len(s.Lines()) != 1 {
		t.Fatalf("unexpected mutation: %+v", s.Lines())
	}
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	var s Store
	s.Add(product(1, 4))
	s.Remove(1)
	s.Remove(1)
	if !s.Empty() {
		t.Fatalf("expected empty cart")
	}
}

func TestStoreFoldStaysLive(t *testing.T) {
	var s Store
	ops := []func(){
		func() { s.Add(product(1, 1.25)) },
		func() { s.Add(product(2, 3.10)) },
		func() { s.SetQuantity(1, 7) },
		func() { s.Add(product(3, 0.99)) },
		func() { s.Remove(2) },
		func() { s.SetQuantity(3, 4) },
		func() { s.Add(product(2, 3.10)) },
		func() { s.SetQuantity(1, -1) },
	}
	for i, op := range ops {
		op()
		wantCount := 0
		var wantTotal int64
		for _, line := range s.Lines() {
			wantCount += line.Quantity
			wantTotal += domain.ToCents(line.Product.Price) * int64(line.Quantity)
		}
		if s.Count() != wantCount {
			t.Fatalf("step %d: count %d, want %d", i, s.Count(), wantCount)
		}
		if s.TotalCents() != wantTotal {
			t.Fatalf("step %d: total %d, want %d", i, s.TotalCents(), wantTotal)
		}
	}
}

func TestStoreCloneIsIndependent(t *testing.T) {
	var s Store
	s.Add(product(1, 2))
	clone := s.Clone()
	clone.Add(product(1, 2))

	if line, _ := s.Line(1); line.Quantity != 1 {
		t.Fatalf("original mutated through clone: %d", line.Quantity)
	}
}

func TestStoreJSONRoundTripNormalises(t *testing.T) {
	raw := `{"lines":[{"product":{"id":1,"price":2},"quantity":2},{"product":{"id":1,"price":2},"quantity":1},{"product":{"id":2,"price":5},"quantity":0}]}`
	var s Store
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s.Lines()) != 1 || s.Count() != 3 {
		t.Fatalf("unexpected lines: %+v", s.Lines())
	}

	var empty Store
	data, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"lines":[]}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}

func TestFromLinesCapsQuantity(t *testing.T) {
	s := FromLines([]domain.CartLine{
		{Product: product(1, 12.99), Quantity: 1 << 40},
		{Product: product(2, 1), Quantity: domain.MaxLineQuantity},
		{Product: product(2, 1), Quantity: 5},
	})
	for _, line := range s.Lines() {
		if line.Quantity != domain.MaxLineQuantity {
			t.Fatalf("line %d: expected quantity capped at %d, got %d", line.Product.ID, domain.MaxLineQuantity, line.Quantity)
		}
	}
	if s.TotalCents() <= 0 {
		t.Fatalf("expected a positive total, got %d", s.TotalCents())
	}
}
