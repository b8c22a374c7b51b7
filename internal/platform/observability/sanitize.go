package observability

import "strings"

// Log field caps. Routes are chi patterns, owner keys are "guest_<uuid>" or
// short account keys, methods are standard verbs; anything longer is suspect
// and gets cut rather than logged whole.
const (
	maxRouteField    = 160
	maxMethodField   = 8
	maxOwnerKeyField = 48
	maxAddrField     = 64
)

// stripControls drops control characters so a crafted header or path cannot
// break a log line apart, then caps the field at max runes.
func stripControls(value string, max int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < ' ' || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > max {
		cleaned = string(runes[:max])
	}
	return cleaned
}

// SanitizeRoute keeps route patterns loggable as a single line.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControls(route, maxRouteField)
}

// SanitizeMethod normalizes the HTTP method for log fields.
func SanitizeMethod(method string) string {
	return stripControls(strings.ToUpper(method), maxMethodField)
}

// SanitizeOwnerKey caps session keys in log fields so an oversized or
// malformed key cannot leak arbitrary content into the logs.
func SanitizeOwnerKey(key string) string {
	return stripControls(key, maxOwnerKeyField)
}
