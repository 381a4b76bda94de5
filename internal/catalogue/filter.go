package catalogue

import (
	"strings"

	"github.com/brickmini/storefront/internal/domain"
)

// Search keeps products whose name or tagline contains query, case-insensitively.
// An empty query returns products unchanged.
func Search(products []domain.Product, query string) []domain.Product {
	query = strings.ToLower(query)
	if query == "" {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) || strings.Contains(strings.ToLower(p.Tagline), query) {
			out = append(out, p)
		}
	}
	return out
}

// Bestsellers keeps featured products.
func Bestsellers(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Bestseller {
			out = append(out, p)
		}
	}
	return out
}

// Find looks a product up by id.
func Find(products []domain.Product, id int64) (domain.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}
