// Package session establishes the cart owner identity for each request.
// Guests get a generated key persisted in a cookie, so their cart survives
// page loads without an account.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/fieldcraft/storefront/internal/platform/requestctx"
)

const (
	// CookieName carries the guest owner key between requests.
	CookieName = "sf_cart_key"
	// HeaderName lets API clients without cookie jars pin their owner key.
	HeaderName = "X-Cart-Key"

	cookieTTL  = 30 * 24 * time.Hour
	maxKeyLen  = 64
	guestLabel = "guest"
)

// Middleware resolves the owner key from header or cookie, minting a fresh
// guest key when neither is present, and stores it on the request context.
func Middleware(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerKey := keyFromRequest(r)
			if ownerKey == "" {
				ownerKey = NewGuestKey()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    ownerKey,
					Path:     "/",
					MaxAge:   int(cookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := requestctx.WithOwnerKey(r.Context(), ownerKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewGuestKey mints an owner key for an anonymous visitor.
func NewGuestKey() string {
	return guestLabel + "_" + uuid.NewString()
}

func keyFromRequest(r *http.Request) string {
	if key := sanitizeKey(r.Header.Get(HeaderName)); key != "" {
		return key
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return sanitizeKey(cookie.Value)
	}
	return ""
}

// sanitizeKey rejects keys that could not have been minted here, so callers
// cannot smuggle arbitrary identifiers into logs or backend paths.
func sanitizeKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxKeyLen {
		return ""
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return ""
		}
	}
	return value
}

// Locale resolves the destination locale for a request: an explicit query
// parameter wins, then Accept-Language, then the configured default.
func Locale(r *http.Request, defaultLocale string) string {
	if r == nil {
		return defaultLocale
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("locale")); raw != "" {
		if tag, err := language.Parse(raw); err == nil {
			return tag.String()
		}
	}
	if header := strings.TrimSpace(r.Header.Get("Accept-Language")); header != "" {
		if tags, _, err := language.ParseAcceptLanguage(header); err == nil && len(tags) > 0 {
			return tags[0].String()
		}
	}
	return defaultLocale
}

// Country extracts the region subtag of a locale for shipping-zone lookup.
// Locales without a region yield an empty string, which the pricing layer
// treats as domestic.
func Country(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return ""
	}
	region, confidence := tag.Region()
	// Only trust regions the caller actually spelled out; inferred ones
	// would silently route "en" to US shipping.
	if confidence != language.Exact || !region.IsCountry() {
		return ""
	}
	return region.String()
}
