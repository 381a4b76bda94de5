package catalogue

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Source fetches raw catalogue entries from an external commerce system.
type Source interface {
	FetchProducts(ctx context.Context, query Query) ([]RawProduct, error)
}

// Query narrows a catalogue fetch.
type Query struct {
	Search   string
	Featured bool
}

func (q Query) normalized() Query {
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// CacheKey identifies a query in the catalogue cache.
func (q Query) CacheKey() string {
	q = q.normalized()
	values := url.Values{}
	if q.Search != "" {
		values.Set("search", strings.ToLower(q.Search))
	}
	if q.Featured {
		values.Set("featured", strconv.FormatBool(q.Featured))
	}
	if len(values) == 0 {
		return "all"
	}
	return values.Encode()
}

// RawProduct mirrors the subset of a WooCommerce product the storefront reads.
type RawProduct struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	ShortDescription string     `json:"short_description,omitempty"`
	Description      string     `json:"description,omitempty"`
	Price            string     `json:"price,omitempty"`
	RegularPrice     string     `json:"regular_price,omitempty"`
	SalePrice        string     `json:"sale_price,omitempty"`
	Images           []RawImage `json:"images,omitempty"`
	Featured         bool       `json:"featured,omitempty"`
	Status           string     `json:"status,omitempty"`
}

// RawImage is one entry of a product's image gallery.
type RawImage struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}
