package handlers

import (
	"net/http"
	"strings"
	"time"

	domain "github.com/fieldcraft/storefront/internal/domain"
	"github.com/fieldcraft/storefront/internal/platform/format"
)

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	OwnerKey        string            `json:"ownerKey"`
	Currency        string            `json:"currency,omitempty"`
	ItemsCount      int               `json:"itemsCount"`
	HasPending      bool              `json:"hasPending"`
	Items           []cartItemPayload `json:"items"`
	Subtotal        int64             `json:"subtotal"`
	SubtotalDisplay string            `json:"subtotalDisplay,omitempty"`
	Pricing         *pricingPayload   `json:"pricing,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID              string            `json:"id,omitempty"`
	SpeculativeID   string            `json:"speculativeId,omitempty"`
	TargetItemID    string            `json:"targetItemId,omitempty"`
	ProductID       string            `json:"productId"`
	Quantity        int               `json:"quantity"`
	UnitPrice       int64             `json:"unitPrice"`
	Subtotal        int64             `json:"subtotal"`
	SubtotalDisplay string            `json:"subtotalDisplay,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	Origin          string            `json:"origin"`
	Name            string            `json:"name,omitempty"`
	ImageURL        string            `json:"imageUrl,omitempty"`
	UnitLabel       string            `json:"unitLabel,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	AddedAt         string            `json:"addedAt,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

type pricingPayload struct {
	Currency          string          `json:"currency"`
	Subtotal          int64           `json:"subtotal"`
	SubtotalDisplay   string          `json:"subtotalDisplay,omitempty"`
	Shipping          shippingPayload `json:"shipping"`
	TaxBase           int64           `json:"taxBase"`
	Tax               int64           `json:"tax"`
	GrandTotal        int64           `json:"grandTotal"`
	GrandTotalDisplay string          `json:"grandTotalDisplay,omitempty"`
}

type shippingPayload struct {
	Zone                  string                  `json:"zone,omitempty"`
	Methods               []shippingMethodPayload `json:"methods"`
	Recommended           *shippingMethodPayload  `json:"recommended,omitempty"`
	IsFreeShipping        bool                    `json:"isFreeShipping"`
	FreeShippingRemaining int64                   `json:"freeShippingRemaining"`
}

type shippingMethodPayload struct {
	ID              string `json:"id"`
	Label           string `json:"label,omitempty"`
	Price           int64  `json:"price"`
	PriceDisplay    string `json:"priceDisplay,omitempty"`
	DeliveryMinDays int    `json:"deliveryMinDays,omitempty"`
	DeliveryMaxDays int    `json:"deliveryMaxDays,omitempty"`
}

func buildCartPayload(view domain.CartView) cartPayload {
	currency := viewCurrency(view.Items)
	subtotal := domain.Subtotal(view.Items)
	payload := cartPayload{
		OwnerKey:   strings.TrimSpace(view.OwnerKey),
		Currency:   currency,
		ItemsCount: view.ItemCount(),
		HasPending: view.HasPending,
		Items:      buildCartItems(view.Items),
		Subtotal:   subtotal,
	}
	if currency != "" {
		payload.SubtotalDisplay = format.Currency(subtotal, currency)
	}
	if view.Pricing != nil {
		payload.Pricing = buildPricingPayload(*view.Pricing)
	}
	if !view.UpdatedAt.IsZero() {
		payload.UpdatedAt = view.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func buildCartItems(items []domain.LineItem) []cartItemPayload {
	out := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload := cartItemPayload{
			ID:            strings.TrimSpace(item.ID),
			SpeculativeID: strings.TrimSpace(item.SpeculativeID),
			TargetItemID:  strings.TrimSpace(item.TargetItemID),
			ProductID:     strings.TrimSpace(item.ProductID),
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Subtotal:      item.LineSubtotal(),
			Currency:      strings.ToUpper(strings.TrimSpace(item.Currency)),
			Origin:        string(item.Origin),
			Name:          strings.TrimSpace(item.Display.Name),
			ImageURL:      strings.TrimSpace(item.Display.ImageURL),
			UnitLabel:     strings.TrimSpace(item.Display.UnitLabel),
			Tags:          item.Display.Tags,
		}
		if payload.Currency != "" {
			payload.SubtotalDisplay = format.Currency(payload.Subtotal, payload.Currency)
		}
		if !item.AddedAt.IsZero() {
			payload.AddedAt = item.AddedAt.UTC().Format(time.RFC3339Nano)
		}
		if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
			payload.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, payload)
	}
	return out
}

func buildPricingPayload(result domain.PricingResult) *pricingPayload {
	payload := &pricingPayload{
		Currency:   result.Currency,
		Subtotal:   result.Subtotal,
		TaxBase:    result.TaxBase,
		Tax:        result.Tax,
		GrandTotal: result.GrandTotal,
		Shipping: shippingPayload{
			Zone:                  result.Shipping.Zone,
			Methods:               buildShippingMethods(result.Shipping.EligibleMethods, result.Currency),
			IsFreeShipping:        result.Shipping.IsFreeShipping,
			FreeShippingRemaining: result.Shipping.FreeShippingRemaining,
		},
	}
	if result.Currency != "" {
		payload.SubtotalDisplay = format.Currency(result.Subtotal, result.Currency)
		payload.GrandTotalDisplay = format.Currency(result.GrandTotal, result.Currency)
	}
	if result.Shipping.Recommended != nil {
		method := buildShippingMethod(*result.Shipping.Recommended, result.Currency)
		payload.Shipping.Recommended = &method
	}
	return payload
}

func buildShippingMethods(methods []domain.PricedMethod, currency string) []shippingMethodPayload {
	out := make([]shippingMethodPayload, 0, len(methods))
	for _, method := range methods {
		out = append(out, buildShippingMethod(method, currency))
	}
	return out
}

func buildShippingMethod(method domain.PricedMethod, currency string) shippingMethodPayload {
	payload := shippingMethodPayload{
		ID:              method.Method.ID,
		Label:           method.Method.Label,
		Price:           method.Price,
		DeliveryMinDays: method.Method.DeliveryMinDays,
		DeliveryMaxDays: method.Method.DeliveryMaxDays,
	}
	if currency != "" {
		payload.PriceDisplay = format.Currency(method.Price, currency)
	}
	return payload
}

// viewCurrency picks the cart-level currency from the first priced item.
// A cart mixes currencies only when the catalog itself is misconfigured.
func viewCurrency(items []domain.LineItem) string {
	for _, item := range items {
		if code := strings.ToUpper(strings.TrimSpace(item.Currency)); code != "" {
			return code
		}
	}
	return ""
}

func setCartResponseHeaders(w http.ResponseWriter, view domain.CartView) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !view.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", view.UpdatedAt.UTC().Format(http.TimeFormat))
	}
}
