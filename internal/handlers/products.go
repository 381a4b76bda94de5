package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brickmini/storefront/internal/catalogue"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/httpx"
)

// ProductLoader loads the catalogue.
type ProductLoader interface {
	Load(ctx context.Context, query catalogue.Query) (catalogue.Result, error)
}

// ProductHandlers serves the product listing.
type ProductHandlers struct {
	loader ProductLoader
}

func NewProductHandlers(loader ProductLoader) *ProductHandlers {
	return &ProductHandlers{loader: loader}
}

// Routes wires GET /products.
func (h *ProductHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
}

type productListResponse struct {
	Products []domain.Product `json:"products"`
	Advisory string           `json:"advisory,omitempty"`
	Fallback bool             `json:"fallback"`
	LoadedAt time.Time        `json:"loadedAt"`
}

func (h *ProductHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	bestsellers := false
	if raw := strings.TrimSpace(r.URL.Query().Get("bestsellers")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "bestsellers must be a boolean", http.StatusBadRequest))
			return
		}
		bestsellers = parsed
	}

	result, err := h.loader.Load(ctx, catalogue.Query{Search: q, Featured: bestsellers})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		httpx.WriteError(ctx, w, catalogueUnavailable)
		return
	}

	products := result.Products
	// The fallback catalogue is unfiltered.
	if result.Fallback {
		if q != "" {
			products = catalogue.Search(products, q)
		}
		if bestsellers {
			products = catalogue.Bestsellers(products)
		}
	}
	if products == nil {
		products = []domain.Product{}
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products: products,
		Advisory: result.Advisory,
		Fallback: result.Fallback,
		LoadedAt: result.LoadedAt,
	})
}

func findProduct(ctx context.Context, loader ProductLoader, id int64) (domain.Product, error) {
	result, err := loader.Load(ctx, catalogue.Query{})
	if err != nil {
		return domain.Product{}, err
	}
	product, ok := catalogue.Find(result.Products, id)
	if !ok {
		return domain.Product{}, errProductNotFound
	}
	return product, nil
}

var errProductNotFound = errors.New("product not found")
