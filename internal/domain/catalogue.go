package domain

// Product is a sellable catalogue item. Products are replaced wholesale on each catalogue load.
type Product struct {
	ID         int64   `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Tagline    string  `json:"tagline,omitempty" yaml:"tagline"`
	Price      float64 `json:"price" yaml:"price"`
	Image      string  `json:"image" yaml:"image"`
	Bestseller bool    `json:"bestseller" yaml:"bestseller"`
}

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 9999

// CartLine pairs a product with a positive quantity of at most MaxLineQuantity.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns price × quantity in minor units.
func (l CartLine) Subtotal() int64 {
	return ToCents(l.Product.Price) * int64(l.Quantity)
}
