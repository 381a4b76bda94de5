package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brickmini/storefront/internal/checkout"
	"github.com/brickmini/storefront/internal/domain"
	"github.com/brickmini/storefront/internal/platform/httpx"
)

// CheckoutHandlers drive the session's checkout: form edits, payment method selection,
// submission and acknowledgement of held orders.
type CheckoutHandlers struct {
	sessions Sessions
	currency string
	guard    func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithSubmitGuard wraps the submit endpoint, typically with the idempotency middleware.
func WithSubmitGuard(guard func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.guard = guard
	}
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(sessions Sessions, currency string, opts ...CheckoutOption) *CheckoutHandlers {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	h := &CheckoutHandlers{sessions: sessions, currency: currency}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Patch("/form", h.editForm)
	r.Get("/payment-methods", h.methods)
	r.Put("/payment-method", h.selectMethod)
	r.Post("/acknowledge", h.acknowledge)

	var submit http.Handler = http.HandlerFunc(h.submit)
	if h.guard != nil {
		submit = h.guard(submit)
	}
	r.Method(http.MethodPost, "/submit", submit)
}

type selectMethodRequest struct {
	Method       string                 `json:"method"`
	Capabilities *checkout.Capabilities `json:"capabilities,omitempty"`
}

type submitRequest struct {
	PaymentToken string                 `json:"paymentToken"`
	Capabilities *checkout.Capabilities `json:"capabilities,omitempty"`
}

type methodsResponse struct {
	Methods []checkout.MethodOption `json:"methods"`
}

func (h *CheckoutHandlers) get(w http.ResponseWriter, r *http.Request) {
	sh, ok := loadShopper(r.Context(), w, h.sessions)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, newCheckoutView(sh.ctrl.Snapshot(), h.currency))
}

// editForm applies a partial form update. Every field name is checked before any edit lands.
func (h *CheckoutHandlers) editForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req map[string]string
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(req) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one field is required", http.StatusBadRequest))
		return
	}

	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]domain.Field, 0, len(names))
	for _, name := range names {
		field, ok := domain.ParseField(name)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown form field: "+name, http.StatusBadRequest).
				WithField(name, "not a checkout form field"))
			return
		}
		fields = append(fields, field)
	}

	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	var (
		state checkout.State
		err   error
	)
	for i, field := range fields {
		state, err = sh.ctrl.EditField(field, req[names[i]])
		if err != nil {
			if i > 0 {
				persist(ctx, h.sessions, sh.id)
			}
			writeCheckoutError(ctx, w, err)
			return
		}
	}
	persist(ctx, h.sessions, sh.id)
	writeJSONResponse(w, http.StatusOK, newCheckoutView(state, h.currency))
}

func (h *CheckoutHandlers) methods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caps, err := capabilitiesFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, methodsResponse{Methods: sh.ctrl.Methods(caps)})
}

func (h *CheckoutHandlers) selectMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req selectMethodRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown payment method", http.StatusBadRequest).
			WithField("method", "unknown payment method "+strconv.Quote(req.Method)))
		return
	}
	var caps checkout.Capabilities
	if req.Capabilities != nil {
		caps = *req.Capabilities
	}

	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	state, err := sh.ctrl.Select(method, caps)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	persist(ctx, h.sessions, sh.id)
	writeJSONResponse(w, http.StatusOK, newCheckoutView(state, h.currency))
}

// submit runs one checkout attempt. Payment and order failures still answer 200; the view
// carries the error for the shopper.
func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req submitRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	state, err := sh.ctrl.Submit(ctx, checkout.SubmitInput{
		PaymentToken: strings.TrimSpace(req.PaymentToken),
		Capabilities: req.Capabilities,
	})
	persist(ctx, h.sessions, sh.id)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newCheckoutView(state, h.currency))
}

func (h *CheckoutHandlers) acknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh, ok := loadShopper(ctx, w, h.sessions)
	if !ok {
		return
	}
	state, err := sh.ctrl.Acknowledge()
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	persist(ctx, h.sessions, sh.id)
	writeJSONResponse(w, http.StatusOK, newCheckoutView(state, h.currency))
}

func capabilitiesFromQuery(r *http.Request) (checkout.Capabilities, error) {
	var caps checkout.Capabilities
	query := r.URL.Query()
	for name, dst := range map[string]*bool{"applePay": &caps.ApplePay, "googlePay": &caps.GooglePay} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return checkout.Capabilities{}, errInvalidCapability(name)
		}
		*dst = parsed
	}
	return caps, nil
}

type errInvalidCapability string

func (e errInvalidCapability) Error() string {
	return string(e) + " must be a boolean"
}
