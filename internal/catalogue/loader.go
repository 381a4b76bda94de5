package catalogue

import (
	"context"
	"errors"
	"time"

	"github.com/brickmini/storefront/internal/domain"
)

const (
	emptyCatalogueAdvisory = "No products were returned from WooCommerce. Showing fallback catalogue."
	fallbackSuffix         = " Showing fallback catalogue."
	genericLoadFailure     = "Failed to load products from WooCommerce."
)

// Logger records structured catalogue events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Result is the product list shown to shoppers plus an optional non-fatal advisory.
type Result struct {
	Products []domain.Product `json:"products"`
	Advisory string           `json:"advisory,omitempty"`
	Fallback bool             `json:"fallback"`
	LoadedAt time.Time        `json:"loadedAt"`
}

// LoaderDeps wires the loader's collaborators. Only Source is required.
type LoaderDeps struct {
	Source   Source
	Cache    Cache
	Images   *ImageResolver
	Fallback func() []domain.Product
	Clock    func() time.Time
	Logger   Logger
}

// Loader fetches the live catalogue and substitutes the bundled one when it is empty or unavailable.
type Loader struct {
	source   Source
	cache    Cache
	images   *ImageResolver
	fallback func() []domain.Product
	now      func() time.Time
	logger   Logger
}

// NewLoader constructs a Loader.
func NewLoader(deps LoaderDeps) (*Loader, error) {
	if deps.Source == nil {
		return nil, errors.New("catalogue: source is required")
	}
	loader := &Loader{
		source:   deps.Source,
		cache:    deps.Cache,
		images:   deps.Images,
		fallback: deps.Fallback,
		now:      deps.Clock,
		logger:   deps.Logger,
	}
	if loader.fallback == nil {
		loader.fallback = Fallback
	}
	if loader.now == nil {
		loader.now = time.Now
	}
	if loader.logger == nil {
		loader.logger = func(context.Context, string, map[string]any) {}
	}
	return loader, nil
}

// Load returns the catalogue for query. A failed or empty fetch is not an error: the bundled catalogue is
// returned with an advisory. If ctx is cancelled before the fetch settles the result is discarded and
// ctx.Err() is returned.
func (l *Loader) Load(ctx context.Context, query Query) (Result, error) {
	query = query.normalized()
	key := query.CacheKey()

	if l.cache != nil {
		cached, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			l.logger(ctx, "catalogue.cache_read_failed", map[string]any{"key": key, "error": err.Error()})
		} else if ok && len(cached) > 0 {
			return Result{Products: cached, LoadedAt: l.now()}, nil
		}
	}

	raw, fetchErr := l.source.FetchProducts(ctx, query)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if fetchErr != nil {
		l.logger(ctx, "catalogue.load_failed", map[string]any{"error": fetchErr.Error()})
		return l.fallbackResult(ctx, failureMessage(fetchErr)+fallbackSuffix), nil
	}

	products := Normalize(raw)
	if len(products) == 0 {
		return l.fallbackResult(ctx, emptyCatalogueAdvisory), nil
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, products); err != nil {
			l.logger(ctx, "catalogue.cache_write_failed", map[string]any{"key": key, "error": err.Error()})
		}
	}
	return Result{Products: products, LoadedAt: l.now()}, nil
}

func (l *Loader) fallbackResult(ctx context.Context, advisory string) Result {
	products := l.fallback()
	if l.images != nil {
		products = l.images.ResolveAll(ctx, products)
	} else {
		for i := range products {
			products[i].Image = ResolveFallbackImage(products[i].Image)
		}
	}
	return Result{Products: products, Advisory: advisory, Fallback: true, LoadedAt: l.now()}
}

func failureMessage(err error) string {
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) && sourceErr.Message != "" {
		return sourceErr.Message
	}
	return genericLoadFailure
}
