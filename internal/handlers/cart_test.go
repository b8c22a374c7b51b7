package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/fieldcraft/storefront/internal/domain"

	"github.com/fieldcraft/storefront/internal/cart"
	"github.com/fieldcraft/storefront/internal/platform/session"
	"github.com/fieldcraft/storefront/internal/pricing"
	"github.com/fieldcraft/storefront/internal/repositories/memory"
)

type testPricer struct {
	engine *pricing.Engine
}

func (p testPricer) Price(items []domain.LineItem, countryCode string) (domain.PricingResult, error) {
	return p.engine.Price(items, countryCode), nil
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()

	store := memory.NewStore(memory.StoreDeps{Products: memory.DemoProducts()})

	cfg, err := pricing.DefaultTables()
	if err != nil {
		t.Fatalf("load default tables: %v", err)
	}
	priceEngine, err := pricing.NewEngine(cfg)
	if err != nil {
		t.Fatalf("build pricing engine: %v", err)
	}

	registry, err := cart.NewRegistry(func(ownerKey string) (*cart.Engine, error) {
		return cart.NewEngine(cart.EngineDeps{
			Repository: store,
			Catalog:    store,
			Pricer:     testPricer{engine: priceEngine},
			OwnerKey:   ownerKey,
			// Long enough that timers never fire during a test; syncs are
			// driven through the flush endpoint instead.
			SyncDelay: time.Minute,
		})
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		registry.Close(ctx)
	})

	handlers := NewCartHandlers(registry, "ja-JP", "JP")
	router := NewRouter(
		WithMiddlewares(session.Middleware(false)),
		WithCartRoutes(handlers.Routes),
	)
	return router, store
}

func doCartRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(session.HeaderName, "guest-handler-test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeCartResponse(t *testing.T, rr *httptest.ResponseRecorder) cartPayload {
	t.Helper()

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse cart response: %v (body %s)", err, rr.Body.String())
	}
	return resp.Cart
}

func TestCartAddItemReturnsSpeculativeRow(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":2}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d (body %s)", rr.Code, rr.Body.String())
	}

	payload := decodeCartResponse(t, rr)
	if len(payload.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(payload.Items))
	}
	item := payload.Items[0]
	if item.Origin != string(domain.OriginSpeculative) {
		t.Fatalf("expected speculative origin, got %q", item.Origin)
	}
	if item.SpeculativeID == "" {
		t.Fatalf("expected a speculative id")
	}
	if !payload.HasPending {
		t.Fatalf("expected hasPending true")
	}
	if payload.Subtotal != 4800 {
		t.Fatalf("expected subtotal 4800, got %d", payload.Subtotal)
	}
	if payload.SubtotalDisplay != "¥4,800" {
		t.Fatalf("expected display ¥4,800, got %q", payload.SubtotalDisplay)
	}
}

func TestCartFlushConfirmsPendingItems(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":1}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("add failed: %d (body %s)", rr.Code, rr.Body.String())
	}

	rr = doCartRequest(t, router, http.MethodPost, "/api/v1/cart/flush", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rr.Code, rr.Body.String())
	}

	payload := decodeCartResponse(t, rr)
	if payload.HasPending {
		t.Fatalf("expected no pending syncs after flush")
	}
	if len(payload.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(payload.Items))
	}
	if payload.Items[0].Origin != string(domain.OriginConfirmed) {
		t.Fatalf("expected confirmed origin, got %q", payload.Items[0].Origin)
	}
	if payload.Items[0].ID == "" {
		t.Fatalf("expected a server item id after flush")
	}
}

func TestCartGetIncludesPricing(t *testing.T) {
	router, _ := newTestRouter(t)

	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":1}`)
	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/flush", "")

	rr := doCartRequest(t, router, http.MethodGet, "/api/v1/cart?country=JP", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rr.Code, rr.Body.String())
	}

	payload := decodeCartResponse(t, rr)
	if payload.Pricing == nil {
		t.Fatalf("expected pricing on cart view")
	}
	if payload.Pricing.Currency != "JPY" {
		t.Fatalf("expected JPY pricing, got %q", payload.Pricing.Currency)
	}
	if payload.Pricing.Shipping.Zone != "domestic" {
		t.Fatalf("expected domestic zone, got %q", payload.Pricing.Shipping.Zone)
	}
	if payload.Pricing.GrandTotal <= payload.Pricing.Subtotal {
		t.Fatalf("expected grand total above subtotal, got %d vs %d", payload.Pricing.GrandTotal, payload.Pricing.Subtotal)
	}
}

func TestCartTotalsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-square-18","quantity":1}`)
	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/flush", "")

	rr := doCartRequest(t, router, http.MethodGet, "/api/v1/cart/totals?country=US", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rr.Code, rr.Body.String())
	}

	var resp struct {
		Pricing pricingPayload `json:"pricing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse totals response: %v", err)
	}
	if resp.Pricing.Shipping.Zone != "overseas" {
		t.Fatalf("expected overseas zone for US, got %q", resp.Pricing.Shipping.Zone)
	}
	if resp.Pricing.GrandTotalDisplay == "" {
		t.Fatalf("expected a formatted grand total")
	}
}

func TestCartRemoveConfirmedItemHidesRow(t *testing.T) {
	router, _ := newTestRouter(t)

	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":1}`)
	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/flush", "")
	payload := decodeCartResponse(t, rr)
	if len(payload.Items) != 1 || payload.Items[0].ID == "" {
		t.Fatalf("expected one confirmed item, got %+v", payload.Items)
	}
	itemID := payload.Items[0].ID

	rr = doCartRequest(t, router, http.MethodDelete, "/api/v1/cart/items/"+itemID, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d (body %s)", rr.Code, rr.Body.String())
	}

	payload = decodeCartResponse(t, rr)
	if len(payload.Items) != 0 {
		t.Fatalf("expected removed item hidden immediately, got %+v", payload.Items)
	}
	if !payload.HasPending {
		t.Fatalf("expected removal to be pending until the server confirms")
	}
}

func TestCartUpdateQuantity(t *testing.T) {
	router, _ := newTestRouter(t)

	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":1}`)
	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/flush", "")
	itemID := decodeCartResponse(t, rr).Items[0].ID

	rr = doCartRequest(t, router, http.MethodPatch, "/api/v1/cart/items/"+itemID, `{"quantity":4}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d (body %s)", rr.Code, rr.Body.String())
	}

	payload := decodeCartResponse(t, rr)
	if len(payload.Items) != 1 {
		t.Fatalf("expected one visible item, got %d", len(payload.Items))
	}
	if payload.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", payload.Items[0].Quantity)
	}
	if payload.Items[0].Origin != string(domain.OriginSpeculative) {
		t.Fatalf("expected edit to render as speculative, got %q", payload.Items[0].Origin)
	}
}

func TestCartAddUnknownProductReturnsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"no-such-product","quantity":1}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d (body %s)", rr.Code, rr.Body.String())
	}
}

func TestCartInsufficientStockConflict(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-square-18","quantity":100}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d (body %s)", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %v", errObj["code"])
	}
}

func TestCartRejectsEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d (body %s)", rr.Code, rr.Body.String())
	}
}

func TestCartUpdateUnknownItemNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doCartRequest(t, router, http.MethodPatch, "/api/v1/cart/items/item-missing", `{"quantity":2}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d (body %s)", rr.Code, rr.Body.String())
	}
}

func TestCartClearReturnsNoContent(t *testing.T) {
	router, _ := newTestRouter(t)

	doCartRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"hanko-round-12","quantity":1}`)

	rr := doCartRequest(t, router, http.MethodDelete, "/api/v1/cart", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d (body %s)", rr.Code, rr.Body.String())
	}

	rr = doCartRequest(t, router, http.MethodGet, "/api/v1/cart", "")
	payload := decodeCartResponse(t, rr)
	if len(payload.Items) != 0 && payload.Items[0].Origin == string(domain.OriginSpeculative) {
		t.Fatalf("expected speculative state dropped after clear, got %+v", payload.Items)
	}
}

func TestCartMintsGuestSession(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rr.Code, rr.Body.String())
	}

	cookie := rr.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, session.CookieName+"=guest_") {
		t.Fatalf("expected a minted guest cookie, got %q", cookie)
	}

	payload := decodeCartResponse(t, rr)
	if !strings.HasPrefix(payload.OwnerKey, "guest_") {
		t.Fatalf("expected guest owner key, got %q", payload.OwnerKey)
	}
}
