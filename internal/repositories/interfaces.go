package repositories

import (
	"context"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

// CartRepository is the durable source of truth for cart contents, hosted by
// the backend service. The client treats it as authoritative: confirmed rows
// always come from here, never from local guesses. Implementations must
// tolerate out-of-order arrival of edits to different items.
type CartRepository interface {
	AddItem(ctx context.Context, ownerKey, productID string, quantity int) (domain.LineItem, error)
	// UpdateQuantity applies a quantity change to an existing item. A
	// quantity of zero or less is equivalent to RemoveItem.
	UpdateQuantity(ctx context.Context, ownerKey, itemID string, quantity int) (domain.LineItem, error)
	RemoveItem(ctx context.Context, ownerKey, itemID string) error
	GetCart(ctx context.Context, ownerKey string) ([]domain.LineItem, error)
}

// CatalogRepository supplies point-in-time product snapshots when items are
// added. The cart does not subscribe to live catalog changes.
type CatalogRepository interface {
	GetProductSnapshot(ctx context.Context, productID string) (domain.ProductSnapshot, error)
}

// RepositoryError categorises backend failures so the sync layer can decide
// between conflict handling and transient-failure handling without knowing
// the transport.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsInsufficientStock() bool
	IsRejected() bool
	IsUnavailable() bool
}
