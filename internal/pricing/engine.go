package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

var (
	// ErrPricingInvalidConfig signals a zone or method table that cannot support computation.
	ErrPricingInvalidConfig = errors.New("pricing engine: invalid config")
)

// Config carries the static pricing tables loaded at startup. It is never
// mutated at runtime; the engine treats it as immutable.
type Config struct {
	Currency              string
	DomesticZone          string
	FreeShippingThreshold int64
	TaxRate               decimal.Decimal
	Zones                 []domain.ShippingZone
	Countries             map[string]string
	Methods               []domain.ShippingMethod
}

// Engine evaluates shipping eligibility, zone-adjusted prices, and
// tax-inclusive totals. All methods are pure and safe for concurrent use.
type Engine struct {
	cfg       Config
	zones     map[string]domain.ShippingZone
	countries map[string]string
	methods   map[string]domain.ShippingMethod
	order     map[string]int
}

// NewEngine validates the pricing tables and builds lookup indexes.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.DomesticZone = strings.TrimSpace(cfg.DomesticZone)
	if cfg.DomesticZone == "" {
		return nil, fmt.Errorf("%w: domestic zone is required", ErrPricingInvalidConfig)
	}
	if cfg.FreeShippingThreshold < 0 {
		return nil, fmt.Errorf("%w: free shipping threshold cannot be negative", ErrPricingInvalidConfig)
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("%w: tax rate cannot be negative", ErrPricingInvalidConfig)
	}

	zones := make(map[string]domain.ShippingZone, len(cfg.Zones))
	for _, zone := range cfg.Zones {
		code := strings.TrimSpace(zone.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: zone with empty code", ErrPricingInvalidConfig)
		}
		if zone.Multiplier.Sign() <= 0 {
			return nil, fmt.Errorf("%w: zone %s multiplier must be positive", ErrPricingInvalidConfig, code)
		}
		zone.Code = code
		zones[code] = zone
	}
	if _, ok := zones[cfg.DomesticZone]; !ok {
		return nil, fmt.Errorf("%w: domestic zone %s is not defined", ErrPricingInvalidConfig, cfg.DomesticZone)
	}

	countries := make(map[string]string, len(cfg.Countries))
	for code, zoneCode := range cfg.Countries {
		country := domain.NormalizeCountryCode(code)
		if country == "" {
			continue
		}
		if _, ok := zones[strings.TrimSpace(zoneCode)]; !ok {
			return nil, fmt.Errorf("%w: country %s references unknown zone %s", ErrPricingInvalidConfig, country, zoneCode)
		}
		countries[country] = strings.TrimSpace(zoneCode)
	}

	methods := make(map[string]domain.ShippingMethod, len(cfg.Methods))
	order := make(map[string]int, len(cfg.Methods))
	for idx, method := range cfg.Methods {
		id := strings.TrimSpace(method.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: method with empty id", ErrPricingInvalidConfig)
		}
		if method.BasePrice < 0 {
			return nil, fmt.Errorf("%w: method %s base price cannot be negative", ErrPricingInvalidConfig, id)
		}
		method.ID = id
		methods[id] = method
		if _, seen := order[id]; !seen {
			order[id] = idx
		}
	}

	return &Engine{
		cfg:       cfg,
		zones:     zones,
		countries: countries,
		methods:   methods,
		order:     order,
	}, nil
}

// Currency returns the configured pricing currency.
func (e *Engine) Currency() string {
	return e.cfg.Currency
}

// FreeShippingThreshold exposes the configured threshold in minor units.
func (e *Engine) FreeShippingThreshold() int64 {
	return e.cfg.FreeShippingThreshold
}

// ResolveZone maps a destination country code to its shipping zone. Unknown
// or empty codes fall back to the domestic zone: unknown destinations must
// price as domestic rather than fail.
func (e *Engine) ResolveZone(countryCode string) domain.ShippingZone {
	country := domain.NormalizeCountryCode(countryCode)
	if zoneCode, ok := e.countries[country]; ok {
		if zone, ok := e.zones[zoneCode]; ok {
			return zone
		}
	}
	return e.zones[e.cfg.DomesticZone]
}

// ComputeShipping resolves the zone for the destination, filters methods by
// weight ceiling, applies the zone multiplier and the free-shipping override,
// and selects the recommended method deterministically.
func (e *Engine) ComputeShipping(subtotal, totalWeightGrams int64, countryCode string) domain.ShippingQuote {
	zone := e.ResolveZone(countryCode)

	if totalWeightGrams <= 0 {
		totalWeightGrams = domain.NominalWeightGrams
	}
	if subtotal < 0 {
		subtotal = 0
	}

	free := subtotal >= e.cfg.FreeShippingThreshold
	remaining := int64(0)
	if !free {
		remaining = e.cfg.FreeShippingThreshold - subtotal
	}

	eligible := make([]domain.PricedMethod, 0, len(zone.MethodIDs))
	for _, id := range zone.MethodIDs {
		method, ok := e.methods[strings.TrimSpace(id)]
		if !ok {
			// Unknown method ids are simply absent, never an error.
			continue
		}
		if method.MaxWeightGrams > 0 && totalWeightGrams > method.MaxWeightGrams {
			continue
		}
		price := applyMultiplier(method.BasePrice, zone.Multiplier)
		if free && method.FreeShippingEligible {
			price = 0
		}
		eligible = append(eligible, domain.PricedMethod{Method: method, Price: price})
	}

	quote := domain.ShippingQuote{
		Zone:                  zone.Code,
		EligibleMethods:       eligible,
		IsFreeShipping:        free,
		FreeShippingRemaining: remaining,
	}

	// Cheapest eligible wins; equal prices keep the first defined. With free
	// shipping active a zeroed method therefore always beats a paid one.
	for idx := range eligible {
		if quote.Recommended == nil || eligible[idx].Price < quote.Recommended.Price {
			candidate := eligible[idx]
			quote.Recommended = &candidate
		}
	}

	return quote
}

// ComputeTax applies the configured flat rate to the given amount, rounding
// to the smallest currency unit.
func (e *Engine) ComputeTax(amount int64) int64 {
	return TaxAmount(amount, e.cfg.TaxRate)
}

// Price derives the full pricing result from the rendered item list and
// destination. Tax is computed on goods plus shipping combined; that ordering
// is a business rule and must not change.
func (e *Engine) Price(items []domain.LineItem, countryCode string) domain.PricingResult {
	subtotal := domain.Subtotal(items)
	weight := domain.TotalWeightGrams(items)

	quote := e.ComputeShipping(subtotal, weight, countryCode)

	var shippingPrice int64
	if quote.Recommended != nil {
		shippingPrice = quote.Recommended.Price
	}

	taxBase := subtotal + shippingPrice
	tax := e.ComputeTax(taxBase)

	return domain.PricingResult{
		Currency:   e.cfg.Currency,
		Subtotal:   subtotal,
		Shipping:   quote,
		TaxBase:    taxBase,
		Tax:        tax,
		GrandTotal: taxBase + tax,
	}
}

// TaxAmount computes flat-rate tax on an amount in minor units, rounding
// half away from zero to the nearest unit.
func TaxAmount(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

func applyMultiplier(base int64, multiplier decimal.Decimal) int64 {
	if base <= 0 {
		return 0
	}
	if multiplier.Sign() <= 0 {
		return base
	}
	return decimal.NewFromInt(base).Mul(multiplier).Round(0).IntPart()
}
