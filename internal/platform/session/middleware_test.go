package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldcraft/storefront/internal/platform/requestctx"
)

func TestMiddlewareMintsGuestKey(t *testing.T) {
	var gotKey string
	handler := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, _ = requestctx.OwnerKey(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if !strings.HasPrefix(gotKey, "guest_") {
		t.Fatalf("expected minted guest key, got %q", gotKey)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != gotKey {
		t.Fatalf("expected owner key cookie, got %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("expected HttpOnly cookie")
	}
}

func TestMiddlewareReusesCookieKey(t *testing.T) {
	var gotKey string
	handler := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, _ = requestctx.OwnerKey(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "guest_abc-123"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotKey != "guest_abc-123" {
		t.Fatalf("expected cookie key reused, got %q", gotKey)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie when key exists")
	}
}

func TestMiddlewareHeaderBeatsCookie(t *testing.T) {
	var gotKey string
	handler := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, _ = requestctx.OwnerKey(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(HeaderName, "guest_from-header")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "guest_from-cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotKey != "guest_from-header" {
		t.Fatalf("expected header key, got %q", gotKey)
	}
}

func TestMiddlewareRejectsMalformedKeys(t *testing.T) {
	var gotKey string
	handler := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, _ = requestctx.OwnerKey(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(HeaderName, "../../etc/passwd")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.HasPrefix(gotKey, "guest_") || gotKey == "../../etc/passwd" {
		t.Fatalf("expected malformed key replaced, got %q", gotKey)
	}
}

func TestLocaleResolution(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart?locale=de-DE", nil)
	if got := Locale(req, "ja-JP"); got != "de-DE" {
		t.Fatalf("expected query locale to win, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
	if got := Locale(req, "ja-JP"); got != "fr-FR" {
		t.Fatalf("expected accept-language locale, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	if got := Locale(req, "ja-JP"); got != "ja-JP" {
		t.Fatalf("expected default locale, got %q", got)
	}
}

func TestCountryFromLocale(t *testing.T) {
	cases := map[string]string{
		"ja-JP": "JP",
		"de-DE": "DE",
		"en":    "",
		"":      "",
		"junk!": "",
	}
	for locale, want := range cases {
		if got := Country(locale); got != want {
			t.Fatalf("Country(%q) = %q, want %q", locale, got, want)
		}
	}
}
