package domain

import (
	"strings"
	"time"
)

// ItemOrigin distinguishes authoritative cart rows from locally speculated ones.
type ItemOrigin string

const (
	// OriginConfirmed marks a line item sourced from the server cart.
	OriginConfirmed ItemOrigin = "confirmed"
	// OriginSpeculative marks a line item created locally and not yet acknowledged by the server.
	OriginSpeculative ItemOrigin = "speculative"
)

// DisplayMetadata is the denormalized presentation copy owned by the cart.
// It is snapshotted when the item enters the cart and never refreshed from the catalog.
type DisplayMetadata struct {
	Name      string
	ImageURL  string
	UnitLabel string
	Tags      map[string]string
	Locale    string
}

// LineItem represents one product's presence in the cart.
//
// Confirmed items carry the server-assigned ID; speculative items carry a
// locally generated SpeculativeID instead. A speculative item that edits an
// existing confirmed row references it through TargetItemID.
type LineItem struct {
	ID            string
	SpeculativeID string
	TargetItemID  string
	ProductID     string
	Quantity      int
	UnitPrice     int64
	Currency      string
	WeightGrams   int
	Origin        ItemOrigin
	Display       DisplayMetadata
	AddedAt       time.Time
	UpdatedAt     *time.Time
}

// IsSpeculative reports whether the item awaits server confirmation.
func (i LineItem) IsSpeculative() bool {
	return i.Origin == OriginSpeculative
}

// LineSubtotal returns quantity times unit price, clamped at zero.
func (i LineItem) LineSubtotal() int64 {
	if i.Quantity <= 0 || i.UnitPrice <= 0 {
		return 0
	}
	return i.UnitPrice * int64(i.Quantity)
}

// ProductSnapshot is the point-in-time catalog view captured when an item is
// added. The cart never subscribes to live price changes; this struct is the
// contract boundary with the catalog collaborator.
type ProductSnapshot struct {
	ProductID      string
	Name           string
	ImageURL       string
	UnitLabel      string
	Tags           map[string]string
	UnitPrice      int64
	Currency       string
	WeightGrams    int
	StockAvailable int
}

// CartView is the merged projection rendered to the user: confirmed rows with
// the speculative overlay applied, plus freshness markers and totals.
type CartView struct {
	OwnerKey   string
	Items      []LineItem
	HasPending bool
	Pricing    *PricingResult
	UpdatedAt  time.Time
}

// ItemCount sums the quantities of every visible line item.
func (v CartView) ItemCount() int {
	total := 0
	for _, item := range v.Items {
		if item.Quantity > 0 {
			total += item.Quantity
		}
	}
	return total
}

// Subtotal sums line subtotals across confirmed and speculative items alike,
// so the user sees the effect of their actions before the server confirms.
func Subtotal(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineSubtotal()
	}
	return total
}

// NominalWeightGrams substitutes for missing per-item weights so shipping
// computation never rejects a cart outright.
const NominalWeightGrams = 100

// TotalWeightGrams aggregates shipping weight across items, substituting the
// nominal weight for items without one.
func TotalWeightGrams(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		weight := int64(item.WeightGrams)
		if weight <= 0 {
			weight = NominalWeightGrams
		}
		total += weight * int64(item.Quantity)
	}
	return total
}

// NormalizeCountryCode uppercases and trims a destination country code.
func NormalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
