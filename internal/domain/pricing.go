package domain

import "github.com/shopspring/decimal"

// ShippingZone groups destination country codes under a price multiplier and
// the set of shipping methods eligible for that region. Static configuration,
// never persisted state.
type ShippingZone struct {
	Code       string
	Multiplier decimal.Decimal
	MethodIDs  []string
}

// ShippingMethod describes one deliverable option before zone adjustment.
// A MaxWeightGrams of zero means no weight ceiling.
type ShippingMethod struct {
	ID                   string
	Label                string
	BasePrice            int64
	MaxWeightGrams       int64
	FreeShippingEligible bool
	DeliveryMinDays      int
	DeliveryMaxDays      int
}

// PricedMethod is a shipping method with its zone-adjusted (and possibly
// free-shipping-zeroed) price.
type PricedMethod struct {
	Method ShippingMethod
	Price  int64
}

// ShippingQuote is the outcome of shipping computation for one destination.
// EligibleMethods preserves method definition order so tie-breaks stay
// deterministic.
type ShippingQuote struct {
	Zone                  string
	EligibleMethods       []PricedMethod
	Recommended           *PricedMethod
	IsFreeShipping        bool
	FreeShippingRemaining int64
}

// PricingResult is derived on every render from the merged item list plus
// destination metadata. It is never stored.
type PricingResult struct {
	Currency   string
	Subtotal   int64
	Shipping   ShippingQuote
	TaxBase    int64
	Tax        int64
	GrandTotal int64
}
