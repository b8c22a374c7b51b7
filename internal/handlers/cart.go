package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldcraft/storefront/internal/cart"
	"github.com/fieldcraft/storefront/internal/platform/httpx"
	"github.com/fieldcraft/storefront/internal/platform/requestctx"
	"github.com/fieldcraft/storefront/internal/platform/session"
)

const maxCartBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// CartHandlers exposes the per-session cart endpoints. Every handler resolves
// the caller's engine through the registry using the session owner key.
type CartHandlers struct {
	registry       *cart.Registry
	defaultLocale  string
	defaultCountry string
}

// NewCartHandlers constructs handlers bound to the engine registry. The
// default locale and country back destination resolution when the request
// carries neither a country override nor a usable Accept-Language.
func NewCartHandlers(registry *cart.Registry, defaultLocale, defaultCountry string) *CartHandlers {
	return &CartHandlers{
		registry:       registry,
		defaultLocale:  strings.TrimSpace(defaultLocale),
		defaultCountry: strings.ToUpper(strings.TrimSpace(defaultCountry)),
	}
}

// Routes wires the cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/flush", h.flushCart)
	r.Get("/totals", h.getTotals)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	view, err := engine.View(ctx, h.destinationCountry(r))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	view, err := engine.AddItem(ctx, req.ProductID, req.Quantity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusAccepted, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req updateItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	view, err := engine.UpdateItemQuantity(ctx, itemID, *req.Quantity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusAccepted, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	view, err := engine.RemoveItem(ctx, itemID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusAccepted, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) flushCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	if err := engine.Flush(ctx); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	view, err := engine.View(ctx, h.destinationCountry(r))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine, ok := h.engineFor(ctx, w)
	if !ok {
		return
	}

	view, err := engine.View(ctx, h.destinationCountry(r))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	if view.Pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing is not configured", http.StatusServiceUnavailable))
		return
	}

	setCartResponseHeaders(w, view)
	writeJSONResponse(w, http.StatusOK, map[string]any{"pricing": buildPricingPayload(*view.Pricing)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerKey, ok := requestctx.OwnerKey(ctx)
	if !ok || strings.TrimSpace(ownerKey) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "cart session could not be established", http.StatusBadRequest))
		return
	}
	if h.registry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart engine is unavailable", http.StatusServiceUnavailable))
		return
	}

	h.registry.Evict(ownerKey)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) engineFor(ctx context.Context, w http.ResponseWriter) (*cart.Engine, bool) {
	ownerKey, ok := requestctx.OwnerKey(ctx)
	if !ok || strings.TrimSpace(ownerKey) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "cart session could not be established", http.StatusBadRequest))
		return nil, false
	}
	if h.registry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart engine is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}

	engine, err := h.registry.Engine(ownerKey)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart engine is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return engine, true
}

// destinationCountry resolves the shipping destination: an explicit country
// query parameter wins, then the region of the session locale, then the
// configured default.
func (h *CartHandlers) destinationCountry(r *http.Request) string {
	if country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))); country != "" {
		return country
	}
	locale := session.Locale(r, h.defaultLocale)
	if country := session.Country(locale); country != "" {
		return country
	}
	return h.defaultCountry
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, cart.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, cart.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, cart.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, cart.ErrCartRejected):
		httpx.WriteError(ctx, w, httpx.NewError("cart_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, cart.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart backend is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCartBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
