package format

import (
	"fmt"
	"strings"
)

// Currency renders an amount held in minor units as a display string.
// JPY has no minor unit, USD and EUR carry two decimal places, and anything
// else falls back to "CODE 1,234" so an unknown currency still renders.
func Currency(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	switch currency {
	case "JPY":
		return "¥" + thousandSep(minor)
	case "USD":
		return decimalCurrency(minor, "$")
	case "EUR":
		return decimalCurrency(minor, "€")
	default:
		return fmt.Sprintf("%s %s", currency, thousandSep(minor))
	}
}

func decimalCurrency(minor int64, symbol string) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	major := minor / 100
	cents := minor % 100
	out := symbol + thousandSep(major) + fmt.Sprintf(".%02d", cents)
	if neg {
		return "-" + out
	}
	return out
}

func thousandSep(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
