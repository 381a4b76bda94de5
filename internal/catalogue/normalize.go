package catalogue

import (
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/brickmini/storefront/internal/domain"
)

// PlaceholderImage is shown for products that carry no image.
const PlaceholderImage = "https://images.pexels.com/photos/1871318/pexels-photo-1871318.jpeg?auto=compress&cs=tinysrgb&w=800"

var taglinePolicy = newTaglinePolicy()

func newTaglinePolicy() *bluemonday.Policy {
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)
	return policy
}

// Normalize converts raw source entries into products, skipping entries without a usable price.
func Normalize(raw []RawProduct) []domain.Product {
	products := make([]domain.Product, 0, len(raw))
	for _, item := range raw {
		product, ok := NormalizeOne(item)
		if !ok {
			continue
		}
		products = append(products, product)
	}
	return products
}

// NormalizeOne converts a single raw entry. The boolean is false when the price cannot be parsed.
func NormalizeOne(raw RawProduct) (domain.Product, bool) {
	price, ok := parsePrice(firstNonEmpty(raw.Price, raw.RegularPrice, raw.SalePrice, "0"))
	if !ok {
		return domain.Product{}, false
	}
	image := PlaceholderImage
	if len(raw.Images) > 0 {
		if src := strings.TrimSpace(raw.Images[0].Src); src != "" {
			image = src
		}
	}
	return domain.Product{
		ID:         raw.ID,
		Name:       strings.TrimSpace(raw.Name),
		Tagline:    StripMarkup(firstNonEmpty(raw.ShortDescription, raw.Description)),
		Price:      price,
		Image:      image,
		Bestseller: raw.Featured,
	}, true
}

// StripMarkup removes all HTML from s and collapses whitespace.
func StripMarkup(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html.UnescapeString(taglinePolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

func parsePrice(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	return value, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
