package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/fieldcraft/storefront/internal/domain"
	"github.com/fieldcraft/storefront/internal/repositories"
	"github.com/fieldcraft/storefront/internal/syncer"
)

var (
	errEngineRepositoryRequired = errors.New("cart engine: repository is required")
	errEngineCatalogRequired    = errors.New("cart engine: catalog is required")
	errEngineOwnerKeyRequired   = errors.New("cart engine: owner key is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart engine: invalid input")

// ErrCartUnavailable indicates the server cart cannot be reached or the
// engine is missing a dependency.
var ErrCartUnavailable = errors.New("cart engine: unavailable")

// ErrCartNotFound indicates the referenced item or product does not exist.
var ErrCartNotFound = errors.New("cart engine: not found")

// ErrCartRejected indicates the server refused the mutation outright.
var ErrCartRejected = errors.New("cart engine: rejected")

// ErrInsufficientStock indicates the requested quantity exceeds known stock.
var ErrInsufficientStock = errors.New("cart engine: insufficient stock")

// Pricer computes totals for a merged item list and destination country.
type Pricer interface {
	Price(items []domain.LineItem, countryCode string) (domain.PricingResult, error)
}

type intentKind int

const (
	intentAdd intentKind = iota
	intentUpdate
	intentRemove
)

// syncIntent carries the arguments for one deferred server mutation. The
// scheduler replaces it wholesale on reschedule, so only the final quantity
// of a tap burst reaches the wire.
type syncIntent struct {
	kind         intentKind
	productID    string
	targetItemID string
	quantity     int
}

// EngineDeps wires the collaborators for one owner's cart engine.
type EngineDeps struct {
	Repository repositories.CartRepository
	Catalog    repositories.CatalogRepository
	Pricer     Pricer
	OwnerKey   string
	// SyncDelay is the debounce window before a speculative operation is
	// pushed to the server. Zero selects the default.
	SyncDelay time.Duration
	NewTimer  syncer.TimerFactory
	Clock     func() time.Time
	// IDGenerator mints speculative operation ids; defaults to ULIDs.
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	// OnSyncError observes failed background syncs after the speculative
	// state has been rolled back.
	OnSyncError func(ctx context.Context, speculativeID string, err error)
}

// Engine applies cart mutations optimistically and reconciles them with the
// server cart in the background. Mutations return immediately with the
// updated merged view; the server round-trip happens behind the debounce
// window and either confirms or reverts the speculative rows.
type Engine struct {
	repo     repositories.CartRepository
	catalog  repositories.CatalogRepository
	pricer   Pricer
	ownerKey string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	onError  func(context.Context, string, error)

	store *Store
	sched *syncer.Scheduler[syncIntent]

	mu          sync.Mutex
	confirmed   []domain.LineItem
	confirmedAt time.Time
}

// NewEngine constructs an engine enforcing dependency validation.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Repository == nil {
		return nil, errEngineRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errEngineCatalogRequired
	}
	ownerKey := strings.TrimSpace(deps.OwnerKey)
	if ownerKey == "" {
		return nil, errEngineOwnerKeyRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	onError := deps.OnSyncError
	if onError == nil {
		onError = func(context.Context, string, error) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	e := &Engine{
		repo:      deps.Repository,
		catalog:   deps.Catalog,
		pricer:    deps.Pricer,
		ownerKey:  ownerKey,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		onError:   onError,
		confirmed: []domain.LineItem{},
	}
	e.store = NewStore(StoreDeps{IDGenerator: idGen, Clock: clock})

	sched, err := syncer.NewScheduler(syncer.SchedulerDeps[syncIntent]{
		Delay:    deps.SyncDelay,
		NewTimer: deps.NewTimer,
		Run:      e.runSync,
		OnError:  e.handleSyncFailure,
	})
	if err != nil {
		return nil, fmt.Errorf("cart engine: %w", err)
	}
	e.sched = sched
	return e, nil
}

// AddItem speculates a new line item for the product and schedules its server
// sync. It returns the merged view immediately; the item stays marked
// speculative until the server confirms it. Adding a product already in the
// cart creates a separate row rather than bumping the existing one.
func (e *Engine) AddItem(ctx context.Context, productID string, quantity int) (domain.CartView, error) {
	if e == nil || e.repo == nil {
		return domain.CartView{}, ErrCartUnavailable
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if quantity <= 0 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	snapshot, err := e.catalog.GetProductSnapshot(ctx, productID)
	if err != nil {
		return domain.CartView{}, e.translateRepoError(err)
	}

	if snapshot.StockAvailable >= 0 {
		visible := e.visibleQuantity(productID)
		if visible+quantity > snapshot.StockAvailable {
			return domain.CartView{}, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, visible+quantity, snapshot.StockAvailable)
		}
	}

	specID := e.store.AddSpeculative(snapshot, quantity)
	if err := e.sched.Schedule(ctx, specID, syncIntent{kind: intentAdd, productID: productID, quantity: quantity}); err != nil {
		e.store.Revert(specID)
		return domain.CartView{}, ErrCartUnavailable
	}

	e.logger(ctx, "cart.item_speculated", map[string]any{
		"ownerKey":  e.ownerKey,
		"productID": productID,
		"quantity":  quantity,
	})
	return e.currentView(), nil
}

// UpdateItemQuantity changes the quantity of a visible item, identified by
// either its speculative id or its confirmed server id. Zero or negative
// quantities remove the item. Edits to confirmed rows become speculative
// overlays; repeated edits to the same row coalesce into one pending sync.
func (e *Engine) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (domain.CartView, error) {
	if e == nil || e.repo == nil {
		return domain.CartView{}, ErrCartUnavailable
	}

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CartView{}, ErrCartInvalidInput
	}

	if item, ok := e.store.Find(itemID); ok {
		return e.updateSpeculative(ctx, item, quantity)
	}

	confirmed, ok := e.findConfirmed(itemID)
	if !ok {
		return domain.CartView{}, ErrCartNotFound
	}
	if quantity <= 0 {
		return e.RemoveItem(ctx, itemID)
	}

	if overlay, ok := e.findOverlayFor(itemID); ok {
		e.store.UpdateSpeculativeQuantity(overlay.SpeculativeID, quantity)
		if err := e.sched.Schedule(ctx, overlay.SpeculativeID, syncIntent{kind: intentUpdate, targetItemID: itemID, quantity: quantity}); err != nil {
			return domain.CartView{}, ErrCartUnavailable
		}
		return e.currentView(), nil
	}

	specID := e.store.OverlayEdit(confirmed, quantity)
	if err := e.sched.Schedule(ctx, specID, syncIntent{kind: intentUpdate, targetItemID: itemID, quantity: quantity}); err != nil {
		e.store.Revert(specID)
		return domain.CartView{}, ErrCartUnavailable
	}
	return e.currentView(), nil
}

func (e *Engine) updateSpeculative(ctx context.Context, item domain.LineItem, quantity int) (domain.CartView, error) {
	specID := item.SpeculativeID
	if quantity <= 0 {
		// Zero on an overlay row means the user wants the underlying item
		// gone, not the edit undone.
		if item.TargetItemID != "" {
			return e.RemoveItem(ctx, item.TargetItemID)
		}
		e.sched.Cancel(specID)
		e.store.RemoveSpeculative(specID)
		return e.currentView(), nil
	}

	e.store.UpdateSpeculativeQuantity(specID, quantity)
	intent := syncIntent{kind: intentAdd, productID: item.ProductID, quantity: quantity}
	if item.TargetItemID != "" {
		intent = syncIntent{kind: intentUpdate, targetItemID: item.TargetItemID, quantity: quantity}
	}
	if err := e.sched.Schedule(ctx, specID, intent); err != nil {
		return domain.CartView{}, ErrCartUnavailable
	}
	return e.currentView(), nil
}

// RemoveItem removes a visible item. Speculative adds disappear locally and
// their pending sync is cancelled; confirmed rows, including ones shown
// through an overlay edit, are hidden behind a removal marker until the
// server acknowledges the delete.
func (e *Engine) RemoveItem(ctx context.Context, itemID string) (domain.CartView, error) {
	if e == nil || e.repo == nil {
		return domain.CartView{}, ErrCartUnavailable
	}

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CartView{}, ErrCartInvalidInput
	}

	if item, ok := e.store.Find(itemID); ok {
		// An overlay row stands in for its confirmed item; deleting it
		// deletes that item rather than reverting the edit.
		if item.TargetItemID != "" {
			itemID = item.TargetItemID
		} else {
			e.sched.Cancel(item.SpeculativeID)
			e.store.RemoveSpeculative(item.SpeculativeID)
			return e.currentView(), nil
		}
	}

	if _, ok := e.findConfirmed(itemID); !ok {
		return domain.CartView{}, ErrCartNotFound
	}

	// A pending edit for the same row is superseded by the removal.
	if overlay, ok := e.findOverlayFor(itemID); ok {
		e.sched.Cancel(overlay.SpeculativeID)
		e.store.RemoveSpeculative(overlay.SpeculativeID)
	}

	specID := e.store.MarkRemoval(itemID)
	if err := e.sched.Schedule(ctx, specID, syncIntent{kind: intentRemove, targetItemID: itemID}); err != nil {
		e.store.Revert(specID)
		return domain.CartView{}, ErrCartUnavailable
	}
	return e.currentView(), nil
}

// Flush pushes every pending operation to the server immediately, bypassing
// the debounce delay. Used before checkout or page navigation. Operations
// that fail are rolled back exactly as if their timer had fired; the first
// failure is returned.
func (e *Engine) Flush(ctx context.Context) error {
	if e == nil {
		return ErrCartUnavailable
	}
	var firstErr error
	for _, id := range e.store.PendingIDs() {
		if err := e.sched.Flush(ctx, id); err != nil {
			e.handleSyncFailure(ctx, id, syncIntent{}, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// View refreshes the confirmed cart from the server, merges the speculative
// overlay and prices the result for the destination country. On a failed
// refresh the last known confirmed cart is used so the user keeps a cart to
// look at.
func (e *Engine) View(ctx context.Context, countryCode string) (domain.CartView, error) {
	if e == nil || e.repo == nil {
		return domain.CartView{}, ErrCartUnavailable
	}

	items, err := e.repo.GetCart(ctx, e.ownerKey)
	if err != nil {
		e.logger(ctx, "cart.refresh_failed", map[string]any{
			"ownerKey": e.ownerKey,
			"error":    err.Error(),
		})
	} else {
		e.setConfirmed(items)
	}

	view := e.currentView()
	if e.pricer != nil {
		result, err := e.pricer.Price(view.Items, domain.NormalizeCountryCode(countryCode))
		if err != nil {
			e.logger(ctx, "cart.pricing_failed", map[string]any{
				"ownerKey": e.ownerKey,
				"error":    err.Error(),
			})
			return domain.CartView{}, fmt.Errorf("%w: pricing failed", ErrCartUnavailable)
		}
		view.Pricing = &result
	}
	return view, nil
}

// Clear drops all speculative state and pending syncs, and forgets the cached
// confirmed cart. Used on logout or cart reset.
func (e *Engine) Clear() {
	if e == nil {
		return
	}
	for _, id := range e.store.PendingIDs() {
		e.sched.Cancel(id)
	}
	e.store.Clear()
	e.setConfirmed(nil)
}

// HasPending reports whether any operation still awaits confirmation.
func (e *Engine) HasPending() bool {
	return e != nil && e.store.HasPending()
}

// Close stops the background scheduler without syncing remaining operations.
// Call Flush first when pending work must reach the server.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.sched.Close()
}

// runSync executes one deferred mutation against the server repository. On
// success the speculative row is cleared and the confirmed cart re-read, so
// the authoritative row replaces it in the next merge.
func (e *Engine) runSync(ctx context.Context, specID string, intent syncIntent) error {
	switch intent.kind {
	case intentAdd:
		if _, err := e.repo.AddItem(ctx, e.ownerKey, intent.productID, intent.quantity); err != nil {
			return e.translateRepoError(err)
		}
	case intentUpdate:
		if _, err := e.repo.UpdateQuantity(ctx, e.ownerKey, intent.targetItemID, intent.quantity); err != nil {
			return e.translateRepoError(err)
		}
	case intentRemove:
		if err := e.repo.RemoveItem(ctx, e.ownerKey, intent.targetItemID); err != nil {
			return e.translateRepoError(err)
		}
	}

	e.store.Confirm(specID)
	if items, err := e.repo.GetCart(ctx, e.ownerKey); err == nil {
		e.setConfirmed(items)
	} else {
		e.logger(ctx, "cart.refresh_failed", map[string]any{
			"ownerKey": e.ownerKey,
			"error":    err.Error(),
		})
	}

	e.logger(ctx, "cart.sync_confirmed", map[string]any{
		"ownerKey":      e.ownerKey,
		"speculativeID": specID,
	})
	return nil
}

// handleSyncFailure rolls back the speculative operation and surfaces the
// failure. No retry: the user sees their change undone and can act again.
func (e *Engine) handleSyncFailure(ctx context.Context, specID string, _ syncIntent, err error) {
	e.store.Revert(specID)
	e.logger(ctx, "cart.sync_failed", map[string]any{
		"ownerKey":      e.ownerKey,
		"speculativeID": specID,
		"error":         err.Error(),
	})
	e.onError(ctx, specID, err)
}

// currentView merges the cached confirmed cart with the speculative overlay.
// Pure projection, no I/O.
func (e *Engine) currentView() domain.CartView {
	confirmed, confirmedAt := e.confirmedSnapshot()
	overlay := e.store.Snapshot()
	items := MergeItems(confirmed, overlay)
	updatedAt := confirmedAt
	if updatedAt.IsZero() || len(overlay.Items) > 0 || len(overlay.RemovedItemIDs) > 0 {
		updatedAt = e.now()
	}
	return domain.CartView{
		OwnerKey:   e.ownerKey,
		Items:      items,
		HasPending: e.store.HasPending(),
		UpdatedAt:  updatedAt,
	}
}

func (e *Engine) visibleQuantity(productID string) int {
	confirmed, _ := e.confirmedSnapshot()
	total := 0
	for _, item := range MergeItems(confirmed, e.store.Snapshot()) {
		if strings.EqualFold(item.ProductID, productID) && item.Quantity > 0 {
			total += item.Quantity
		}
	}
	return total
}

func (e *Engine) findConfirmed(itemID string) (domain.LineItem, bool) {
	confirmed, _ := e.confirmedSnapshot()
	for _, item := range confirmed {
		if strings.EqualFold(strings.TrimSpace(item.ID), itemID) {
			return item, true
		}
	}
	return domain.LineItem{}, false
}

func (e *Engine) findOverlayFor(targetItemID string) (domain.LineItem, bool) {
	for _, item := range e.store.Items() {
		if item.TargetItemID == targetItemID {
			return item, true
		}
	}
	return domain.LineItem{}, false
}

func (e *Engine) setConfirmed(items []domain.LineItem) {
	normalized := make([]domain.LineItem, len(items))
	copy(normalized, items)
	for i := range normalized {
		normalized[i].Origin = domain.OriginConfirmed
		normalized[i].ID = strings.TrimSpace(normalized[i].ID)
	}
	e.mu.Lock()
	e.confirmed = normalized
	e.confirmedAt = e.now()
	e.mu.Unlock()
}

func (e *Engine) confirmedSnapshot() ([]domain.LineItem, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	items := make([]domain.LineItem, len(e.confirmed))
	copy(items, e.confirmed)
	return items, e.confirmedAt
}

func (e *Engine) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsInsufficientStock():
			return fmt.Errorf("%w: %s", ErrInsufficientStock, repoErr.Error())
		case repoErr.IsRejected():
			return ErrCartRejected
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}
