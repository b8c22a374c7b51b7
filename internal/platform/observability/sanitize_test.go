package observability

import (
	"strings"
	"testing"
)

func TestSanitizeRouteDropsInjectedControls(t *testing.T) {
	got := SanitizeRoute("/api/v1/cart\nfake=entry\t")
	if got != "/api/v1/cartfake=entry" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root for empty route, got %q", got)
	}
}

func TestSanitizeOwnerKeyCapsLength(t *testing.T) {
	key := "guest_" + strings.Repeat("a", 100)
	got := SanitizeOwnerKey(key)
	if len(got) != maxOwnerKeyField {
		t.Fatalf("expected key capped at %d, got %d", maxOwnerKeyField, len(got))
	}
	if !strings.HasPrefix(got, "guest_") {
		t.Fatalf("expected prefix preserved, got %q", got)
	}
}

func TestSanitizeMethodUppercases(t *testing.T) {
	if got := SanitizeMethod("patch"); got != "PATCH" {
		t.Fatalf("expected PATCH, got %q", got)
	}
}
