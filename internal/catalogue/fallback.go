package catalogue

import (
	"context"
	_ "embed"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/storage"
)

// FallbackImagePrefix is the public path (and object prefix) of bundled product images.
const FallbackImagePrefix = "/fallback-products/"

const defaultImageURLExpiry = 12 * time.Hour

//go:embed fallback.yaml
var fallbackYAML []byte

type fallbackDocument struct {
	Products []domain.Product `yaml:"products"`
}

// ParseFallback decodes a fallback catalogue document.
func ParseFallback(data []byte) ([]domain.Product, error) {
	var doc fallbackDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalogue: decode fallback catalogue: %w", err)
	}
	return doc.Products, nil
}

// Fallback returns a fresh copy of the bundled catalogue with unresolved image names.
func Fallback() []domain.Product {
	products, err := ParseFallback(fallbackYAML)
	if err != nil {
		panic(err)
	}
	return products
}

// ResolveFallbackImage maps a bundled image name onto its public path.
func ResolveFallbackImage(image string) string {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return PlaceholderImage
	case strings.HasPrefix(image, "http://"), strings.HasPrefix(image, "https://"), strings.HasPrefix(image, "data:"):
		return image
	case strings.HasPrefix(image, "/"):
		return image
	default:
		return FallbackImagePrefix + image
	}
}

// URLSigner signs read URLs for objects in a private bucket.
type URLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.DownloadOptions) (storage.SignedURLResult, error)
}

// ImageResolver turns bundled image names into URLs, signing them when a bucket is configured.
type ImageResolver struct {
	Bucket    string
	Signer    URLSigner
	ExpiresIn time.Duration
	Logger    Logger
}

// Resolve returns the URL for image. Signing failures fall back to the public path.
func (r *ImageResolver) Resolve(ctx context.Context, image string) string {
	resolved := ResolveFallbackImage(image)
	if r == nil || r.Signer == nil || strings.TrimSpace(r.Bucket) == "" {
		return resolved
	}
	if !strings.HasPrefix(resolved, FallbackImagePrefix) {
		return resolved
	}
	object := path.Clean(strings.TrimPrefix(resolved, "/"))
	expiry := r.ExpiresIn
	if expiry <= 0 {
		expiry = defaultImageURLExpiry
	}
	signed, err := r.Signer.SignedURL(ctx, r.Bucket, object, storage.DownloadOptions{
		ExpiresIn:    expiry,
		CacheControl: "public, max-age=3600",
	})
	if err != nil {
		if r.Logger != nil {
			r.Logger(ctx, "catalogue.image_sign_failed", map[string]any{
				"object": object,
				"error":  err.Error(),
			})
		}
		return resolved
	}
	return signed.URL
}

// ResolveAll resolves every product image in place and returns products.
func (r *ImageResolver) ResolveAll(ctx context.Context, products []domain.Product) []domain.Product {
	for i := range products {
		products[i].Image = r.Resolve(ctx, products[i].Image)
	}
	return products
}
