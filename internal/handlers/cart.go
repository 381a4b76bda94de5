package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/httpx"
)

// CartHandlers exposes the session's cart.
type CartHandlers struct {
	sessions Sessions
	products ProductLoader
	currency string
}

// NewCartHandlers constructs the cart handlers. products resolves ids added to the cart.
func NewCartHandlers(sessions Sessions, products ProductLoader, currency string) *CartHandlers {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &CartHandlers{sessions: sessions, products: products, currency: currency}
}

// Routes wires the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Post("/items", h.addItem)
	r.Put("/items/{productId}", h.setQuantity)
	r.Delete("/items/{productId}", h.removeItem)
}

type addItemRequest struct {
	ProductID int64 `json:"productId"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, newCartView(sh.ctrl.Snapshot(), h.currency))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.ProductID <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest).
			WithField("productId", "required"))
		return
	}

	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	product, err := findProduct(ctx, h.products, req.ProductID)
	if err != nil {
		if errors.Is(err, errProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, catalogueUnavailable)
		return
	}

	h.respond(w, r, sh, func() (checkout.State, error) { return sh.ctrl.AddToCart(product) })
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest).
			WithField("quantity", "required"))
		return
	}

	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	h.respond(w, r, sh, func() (checkout.State, error) { return sh.ctrl.SetQuantity(productID, *req.Quantity) })
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	sh, ok := loadShopper(r.Context(), w, h.sessions)
	if !ok {
		return
	}
	h.respond(w, r, sh, func() (checkout.State, error) { return sh.ctrl.RemoveFromCart(productID) })
}

func (h *CartHandlers) respond(w http.ResponseWriter, r *http.Request, sh shopper, mutate func() (checkout.State, error)) {
	ctx := r.Context()
	state, err := mutate()
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	persist(ctx, h.sessions, sh.id)
	writeJSONResponse(w, http.StatusOK, newCartView(state, h.currency))
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "productId must be a positive integer", http.StatusBadRequest).
			WithField("productId", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
