package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldcraft/storefront/internal/platform/requestctx"
)

func newCountingHandler(calls *atomic.Int64, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func doIdemRequest(handler http.Handler, key, owner, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	if key != "" {
		req.Header.Set(defaultHeaderName, key)
	}
	if owner != "" {
		req = req.WithContext(requestctx.WithOwnerKey(req.Context(), owner))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(newCountingHandler(&calls, http.StatusAccepted, `{"ok":true}`))

	first := doIdemRequest(handler, "key-1", "guest_a", `{"productId":"p1","quantity":1}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", first.Code)
	}
	if first.Header().Get(replayHeaderName) != "" {
		t.Fatalf("first response must not be a replay")
	}

	second := doIdemRequest(handler, "key-1", "guest_a", `{"productId":"p1","quantity":1}`)
	if second.Code != http.StatusAccepted {
		t.Fatalf("expected replayed status 202, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if second.Body.String() != `{"ok":true}` {
		t.Fatalf("expected stored body, got %q", second.Body.String())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(newCountingHandler(&calls, http.StatusAccepted, `{}`))

	doIdemRequest(handler, "", "guest_a", `{"quantity":1}`)
	doIdemRequest(handler, "", "guest_a", `{"quantity":1}`)

	if calls.Load() != 2 {
		t.Fatalf("expected both requests handled, got %d", calls.Load())
	}
}

func TestMiddlewareScopesKeysByOwner(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(newCountingHandler(&calls, http.StatusAccepted, `{}`))

	doIdemRequest(handler, "key-1", "guest_a", `{"quantity":1}`)
	doIdemRequest(handler, "key-1", "guest_b", `{"quantity":1}`)

	if calls.Load() != 2 {
		t.Fatalf("expected both owners handled, got %d", calls.Load())
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(newCountingHandler(&calls, http.StatusAccepted, `{}`))

	doIdemRequest(handler, "key-1", "guest_a", `{"quantity":1}`)
	rr := doIdemRequest(handler, "key-1", "guest_a", `{"quantity":9}`)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for fingerprint mismatch, got %d", rr.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestMiddlewareSkipsNonMutatingMethods(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(NewMemoryStore())(newCountingHandler(&calls, http.StatusOK, `{}`))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(defaultHeaderName, "key-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if calls.Load() != 2 {
		t.Fatalf("expected GET requests to bypass idempotency, got %d calls", calls.Load())
	}
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := store.Reserve(nil, "k", "fp", now, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation, got %v %v", res.State, err)
	}
	if err := store.SaveResponse(nil, "k", "fp", Response{Status: 200}, now, time.Minute); err != nil {
		t.Fatalf("save response: %v", err)
	}

	res, err = store.Reserve(nil, "k", "fp", now.Add(30*time.Second), time.Minute)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation before expiry, got %v %v", res.State, err)
	}

	res, err = store.Reserve(nil, "k", "fp", now.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired record to reset, got %v %v", res.State, err)
	}

	removed, err := store.CleanupExpired(nil, now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one expired record removed, got %d", removed)
	}
}
