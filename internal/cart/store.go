package cart

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

// Resolution records how a speculative operation left the store. Created is
// the only non-terminal state; confirmation and reversion both remove the
// item, the distinction exists for observability.
type Resolution string

const (
	// ResolutionRemoved marks a user-initiated removal of a speculative row.
	ResolutionRemoved Resolution = "removed"
	// ResolutionConfirmed marks a server confirmation clearing the row.
	ResolutionConfirmed Resolution = "confirmed"
	// ResolutionReverted marks a rollback after a failed sync.
	ResolutionReverted Resolution = "reverted"
)

type opKind int

const (
	opAdd opKind = iota
	opEdit
	opRemove
)

type pendingOp struct {
	kind         opKind
	targetItemID string
}

// Overlay is the store's immutable snapshot consumed by the merger: the
// speculative rows plus the confirmed items marked for removal.
type Overlay struct {
	Items          []domain.LineItem
	RemovedItemIDs map[string]struct{}
}

// StoreDeps carries optional collaborators for the optimistic store.
type StoreDeps struct {
	IDGenerator func() string
	Clock       func() time.Time
	// OnResolve observes terminal transitions of speculative operations,
	// letting callers distinguish rollbacks from user removals.
	OnResolve func(speculativeID string, resolution Resolution)
}

// Store holds the speculative, not-yet-confirmed line items and the set of
// in-flight operation identifiers. None of its operations perform I/O or
// fail; operating on a missing id is a no-op so out-of-order revert/confirm
// races stay harmless.
type Store struct {
	mu        sync.Mutex
	newID     func() string
	now       func() time.Time
	onResolve func(string, Resolution)

	items   []domain.LineItem
	pending map[string]pendingOp
}

// NewStore constructs an empty optimistic store. All dependencies are
// optional and default to ULID ids and UTC wall-clock time.
func NewStore(deps StoreDeps) *Store {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	onResolve := deps.OnResolve
	if onResolve == nil {
		onResolve = func(string, Resolution) {}
	}
	return &Store{
		newID:     idGen,
		now:       func() time.Time { return clock().UTC() },
		onResolve: onResolve,
		items:     []domain.LineItem{},
		pending:   map[string]pendingOp{},
	}
}

// Mutations form a closed union dispatched through a single reducer so the
// per-item state machine stays total and reviewable.
type mutation interface{ isMutation() }

type addMutation struct {
	item domain.LineItem
	op   pendingOp
}

type updateQuantityMutation struct {
	speculativeID string
	quantity      int
}

type resolveMutation struct {
	speculativeID string
	resolution    Resolution
}

type clearMutation struct{}

func (addMutation) isMutation()            {}
func (updateQuantityMutation) isMutation() {}
func (resolveMutation) isMutation()        {}
func (clearMutation) isMutation()          {}

// apply is the single exhaustive reducer over the mutation union. Callers
// must hold s.mu.
func (s *Store) apply(m mutation) {
	switch m := m.(type) {
	case addMutation:
		if m.item.SpeculativeID == "" {
			return
		}
		if m.op.kind != opRemove {
			s.items = append(s.items, m.item)
		}
		s.pending[m.item.SpeculativeID] = m.op

	case updateQuantityMutation:
		idx := s.indexOf(m.speculativeID)
		if idx < 0 {
			return
		}
		if m.quantity <= 0 {
			// Zero or less removes the item; the user never sees a
			// zero-quantity row.
			s.apply(resolveMutation{speculativeID: m.speculativeID, resolution: ResolutionRemoved})
			return
		}
		ts := s.now()
		s.items[idx].Quantity = m.quantity
		s.items[idx].UpdatedAt = &ts

	case resolveMutation:
		if _, ok := s.pending[m.speculativeID]; !ok && s.indexOf(m.speculativeID) < 0 {
			return
		}
		if idx := s.indexOf(m.speculativeID); idx >= 0 {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
		}
		delete(s.pending, m.speculativeID)
		s.onResolve(m.speculativeID, m.resolution)

	case clearMutation:
		s.items = []domain.LineItem{}
		s.pending = map[string]pendingOp{}
	}
}

// AddSpeculative creates a new speculative line item from a catalog snapshot.
// It never merges with an existing entry for the same product, confirmed or
// speculative: every user action gets its own row until reconciliation.
func (s *Store) AddSpeculative(snapshot domain.ProductSnapshot, quantity int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	item := domain.LineItem{
		SpeculativeID: id,
		ProductID:     strings.TrimSpace(snapshot.ProductID),
		Quantity:      quantity,
		UnitPrice:     snapshot.UnitPrice,
		Currency:      strings.ToUpper(strings.TrimSpace(snapshot.Currency)),
		WeightGrams:   snapshot.WeightGrams,
		Origin:        domain.OriginSpeculative,
		Display: domain.DisplayMetadata{
			Name:      snapshot.Name,
			ImageURL:  snapshot.ImageURL,
			UnitLabel: snapshot.UnitLabel,
			Tags:      normalizeTags(snapshot.Tags),
		},
		AddedAt: s.now(),
	}
	s.apply(addMutation{item: item, op: pendingOp{kind: opAdd}})
	return id
}

// OverlayEdit creates a speculative row representing a quantity change to a
// confirmed item. The merger renders it in place of the confirmed row until
// the server acknowledges the edit.
func (s *Store) OverlayEdit(confirmed domain.LineItem, quantity int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	item := confirmed
	item.SpeculativeID = id
	item.TargetItemID = strings.TrimSpace(confirmed.ID)
	item.ID = ""
	item.Quantity = quantity
	item.Origin = domain.OriginSpeculative
	ts := s.now()
	item.UpdatedAt = &ts
	s.apply(addMutation{item: item, op: pendingOp{kind: opEdit, targetItemID: item.TargetItemID}})
	return id
}

// MarkRemoval registers a pending removal of a confirmed item. No row is
// created; the merger hides the confirmed row while the operation is
// outstanding.
func (s *Store) MarkRemoval(itemID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.apply(addMutation{
		item: domain.LineItem{SpeculativeID: id, Origin: domain.OriginSpeculative},
		op:   pendingOp{kind: opRemove, targetItemID: strings.TrimSpace(itemID)},
	})
	return id
}

// UpdateSpeculativeQuantity mutates a speculative item in place. A quantity
// of zero or less removes the item and clears its pending marker.
func (s *Store) UpdateSpeculativeQuantity(speculativeID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(updateQuantityMutation{speculativeID: speculativeID, quantity: quantity})
}

// RemoveSpeculative deletes a speculative item unconditionally. Idempotent if
// the id is already absent.
func (s *Store) RemoveSpeculative(speculativeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(resolveMutation{speculativeID: speculativeID, resolution: ResolutionRemoved})
}

// Revert rolls back a speculative item after a failed sync. Behaviourally a
// removal, but reported distinctly for observability.
func (s *Store) Revert(speculativeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(resolveMutation{speculativeID: speculativeID, resolution: ResolutionReverted})
}

// Confirm clears a speculative item once the server acknowledged it. The
// authoritative row arrives with the next confirmed-cart read; the store does
// not hand-patch confirmed state.
func (s *Store) Confirm(speculativeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(resolveMutation{speculativeID: speculativeID, resolution: ResolutionConfirmed})
}

// Clear empties all speculative items and pending markers in one step. Used
// on cart reset or logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(clearMutation{})
}

// Snapshot returns the overlay consumed by the merger: a copy of the
// speculative rows plus the confirmed item ids marked for removal.
func (s *Store) Snapshot() Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)
	for i := range items {
		items[i].Display.Tags = cloneStringMap(items[i].Display.Tags)
	}

	removed := map[string]struct{}{}
	for _, op := range s.pending {
		if op.kind == opRemove && op.targetItemID != "" {
			removed[op.targetItemID] = struct{}{}
		}
	}
	return Overlay{Items: items, RemovedItemIDs: removed}
}

// Items returns a copy of the speculative rows in insertion order.
func (s *Store) Items() []domain.LineItem {
	return s.Snapshot().Items
}

// ItemCount sums quantities across speculative rows, computed fresh on every
// call.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.items {
		if item.Quantity > 0 {
			total += item.Quantity
		}
	}
	return total
}

// Subtotal sums speculative line subtotals, computed fresh on every call.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, item := range s.items {
		total += item.LineSubtotal()
	}
	return total
}

// HasPending reports whether any operation awaits server confirmation, which
// means the displayed cart is provisional.
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// IsPending reports whether the given speculative id is still outstanding.
func (s *Store) IsPending(speculativeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[speculativeID]
	return ok
}

// PendingIDs returns the outstanding operation identifiers.
func (s *Store) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// Find returns the speculative item for the given id when present.
func (s *Store) Find(speculativeID string) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(speculativeID)
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return s.items[idx], true
}

func (s *Store) indexOf(speculativeID string) int {
	if speculativeID == "" {
		return -1
	}
	for i, item := range s.items {
		if item.SpeculativeID == speculativeID {
			return i
		}
	}
	return -1
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// normalizeTags copies catalog display tags into the speculative row,
// dropping padding and blank-keyed entries so later merges compare cleanly.
// An empty result becomes nil to keep it out of JSON payloads.
func normalizeTags(tags map[string]string) map[string]string {
	var out map[string]string
	for k, v := range tags {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(tags))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
