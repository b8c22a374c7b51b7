// Package memory provides an in-process cart and catalog backend. It backs
// local development when no backend URL is configured and doubles as a test
// double with deterministic stock bookkeeping.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/fieldcraft/storefront/internal/domain"
	"github.com/fieldcraft/storefront/internal/repositories"
)

// Product seeds the fake catalog.
type Product struct {
	ID          string
	Name        string
	ImageURL    string
	UnitLabel   string
	Tags        map[string]string
	UnitPrice   int64
	Currency    string
	WeightGrams int
	// Stock below zero means untracked.
	Stock int
}

// StoreDeps configures the in-memory backend.
type StoreDeps struct {
	Products    []Product
	Clock       func() time.Time
	IDGenerator func() string
}

// Store keeps carts and catalog state in process memory. Safe for concurrent
// use. FailNext injects one-shot failures for exercising rollback paths.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	newID    func() string
	products map[string]Product
	carts    map[string][]domain.LineItem
	failNext error
}

// NewStore constructs the backend seeded with the given products.
func NewStore(deps StoreDeps) *Store {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "item_" + ulid.Make().String() }
	}
	products := make(map[string]Product, len(deps.Products))
	for _, product := range deps.Products {
		id := strings.TrimSpace(product.ID)
		if id != "" {
			products[id] = product
		}
	}
	return &Store{
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		products: products,
		carts:    map[string][]domain.LineItem{},
	}
}

// FailNext arranges for the next mutation to fail with err, then heal.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) takeInjectedFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// AddItem appends a new line item after checking tracked stock.
func (s *Store) AddItem(_ context.Context, ownerKey, productID string, quantity int) (domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjectedFailure(); err != nil {
		return domain.LineItem{}, err
	}

	product, ok := s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.LineItem{}, repositories.NewCartError(repositories.CartErrorNotFound, "product not found", nil)
	}
	if quantity <= 0 {
		return domain.LineItem{}, repositories.NewCartError(repositories.CartErrorRejected, "quantity must be positive", nil)
	}

	ownerKey = strings.TrimSpace(ownerKey)
	if product.Stock >= 0 {
		held := 0
		for _, item := range s.carts[ownerKey] {
			if item.ProductID == product.ID {
				held += item.Quantity
			}
		}
		if held+quantity > product.Stock {
			return domain.LineItem{}, repositories.NewCartError(
				repositories.CartErrorInsufficientStock,
				fmt.Sprintf("%d requested, %d available", held+quantity, product.Stock),
				nil,
			)
		}
	}

	item := domain.LineItem{
		ID:          s.newID(),
		ProductID:   product.ID,
		Quantity:    quantity,
		UnitPrice:   product.UnitPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		WeightGrams: product.WeightGrams,
		Origin:      domain.OriginConfirmed,
		Display: domain.DisplayMetadata{
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitLabel: product.UnitLabel,
			Tags:      product.Tags,
		},
		AddedAt: s.now(),
	}
	s.carts[ownerKey] = append(s.carts[ownerKey], item)
	return item, nil
}

// UpdateQuantity changes an item's quantity; zero or less removes it.
func (s *Store) UpdateQuantity(ctx context.Context, ownerKey, itemID string, quantity int) (domain.LineItem, error) {
	if quantity <= 0 {
		return domain.LineItem{}, s.RemoveItem(ctx, ownerKey, itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjectedFailure(); err != nil {
		return domain.LineItem{}, err
	}

	ownerKey = strings.TrimSpace(ownerKey)
	items := s.carts[ownerKey]
	idx := indexOf(items, itemID)
	if idx < 0 {
		return domain.LineItem{}, repositories.NewCartError(repositories.CartErrorNotFound, "item not found", nil)
	}

	if product, ok := s.products[items[idx].ProductID]; ok && product.Stock >= 0 {
		held := 0
		for i, item := range items {
			if i != idx && item.ProductID == product.ID {
				held += item.Quantity
			}
		}
		if held+quantity > product.Stock {
			return domain.LineItem{}, repositories.NewCartError(
				repositories.CartErrorInsufficientStock,
				fmt.Sprintf("%d requested, %d available", held+quantity, product.Stock),
				nil,
			)
		}
	}

	ts := s.now()
	items[idx].Quantity = quantity
	items[idx].UpdatedAt = &ts
	return items[idx], nil
}

// RemoveItem deletes an item from the owner's cart.
func (s *Store) RemoveItem(_ context.Context, ownerKey, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjectedFailure(); err != nil {
		return err
	}

	ownerKey = strings.TrimSpace(ownerKey)
	items := s.carts[ownerKey]
	idx := indexOf(items, itemID)
	if idx < 0 {
		return repositories.NewCartError(repositories.CartErrorNotFound, "item not found", nil)
	}
	s.carts[ownerKey] = append(items[:idx], items[idx+1:]...)
	return nil
}

// GetCart returns a copy of the owner's cart. Unknown owners get an empty
// cart, not an error.
func (s *Store) GetCart(_ context.Context, ownerKey string) ([]domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[strings.TrimSpace(ownerKey)]
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out, nil
}

// GetProductSnapshot reads a seeded product.
func (s *Store) GetProductSnapshot(_ context.Context, productID string) (domain.ProductSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.ProductSnapshot{}, repositories.NewCartError(repositories.CartErrorNotFound, "product not found", nil)
	}
	return domain.ProductSnapshot{
		ProductID:      product.ID,
		Name:           product.Name,
		ImageURL:       product.ImageURL,
		UnitLabel:      product.UnitLabel,
		Tags:           product.Tags,
		UnitPrice:      product.UnitPrice,
		Currency:       strings.ToUpper(strings.TrimSpace(product.Currency)),
		WeightGrams:    product.WeightGrams,
		StockAvailable: product.Stock,
	}, nil
}

func indexOf(items []domain.LineItem, itemID string) int {
	target := strings.TrimSpace(itemID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if item.ID == target {
			return i
		}
	}
	return -1
}

// DemoProducts seeds a small catalog for local development.
func DemoProducts() []Product {
	return []Product{
		{ID: "hanko-round-12", Name: "Round hanko 12mm", UnitLabel: "piece", UnitPrice: 2400, Currency: "JPY", WeightGrams: 60, Stock: 25},
		{ID: "hanko-square-18", Name: "Square hanko 18mm", UnitLabel: "piece", UnitPrice: 5200, Currency: "JPY", WeightGrams: 120, Stock: 10},
		{ID: "ink-pad-red", Name: "Vermilion ink pad", UnitLabel: "piece", UnitPrice: 980, Currency: "JPY", WeightGrams: 85, Stock: -1},
		{ID: "case-leather", Name: "Leather hanko case", UnitLabel: "piece", UnitPrice: 1800, Currency: "JPY", Stock: 40},
	}
}
