package cart

import (
	"reflect"
	"testing"
	"time"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	seq := 0
	return NewStore(StoreDeps{
		IDGenerator: func() string {
			seq++
			return "spec-" + string(rune('a'+seq-1))
		},
		Clock: func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) },
	})
}

func snapshotFixture() domain.ProductSnapshot {
	return domain.ProductSnapshot{
		ProductID:   "prod-001",
		Name:        "Round hanko 12mm",
		UnitPrice:   2400,
		Currency:    "JPY",
		WeightGrams: 60,
	}
}

func TestStoreAddSpeculativeNeverMerges(t *testing.T) {
	store := testStore(t)

	first := store.AddSpeculative(snapshotFixture(), 1)
	second := store.AddSpeculative(snapshotFixture(), 2)
	if first == second {
		t.Fatalf("expected distinct speculative ids, got %q twice", first)
	}

	items := store.Items()
	if len(items) != 2 {
		t.Fatalf("expected two separate rows for the same product, got %d", len(items))
	}
	for _, item := range items {
		if item.Origin != domain.OriginSpeculative {
			t.Fatalf("expected speculative origin, got %q", item.Origin)
		}
	}
	if got := store.ItemCount(); got != 3 {
		t.Fatalf("expected item count 3, got %d", got)
	}
	if got := store.Subtotal(); got != 7200 {
		t.Fatalf("expected subtotal 7200, got %d", got)
	}
}

func TestStoreAddSpeculativeNormalizesTags(t *testing.T) {
	store := testStore(t)

	snapshot := snapshotFixture()
	snapshot.Tags = map[string]string{
		" material ": " boxwood ",
		"shape":      "round",
		"  ":         "dropped",
		"":           "dropped",
	}
	store.AddSpeculative(snapshot, 1)

	got := store.Items()[0].Display.Tags
	want := map[string]string{"material": "boxwood", "shape": "round"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected normalized tags %#v, got %#v", want, got)
	}

	snapshot.Tags = map[string]string{" ": ""}
	store.AddSpeculative(snapshot, 1)
	if tags := store.Items()[1].Display.Tags; tags != nil {
		t.Fatalf("expected nil tags when nothing survives, got %#v", tags)
	}
}

func TestStoreUpdateQuantityZeroRemoves(t *testing.T) {
	store := testStore(t)
	id := store.AddSpeculative(snapshotFixture(), 2)

	store.UpdateSpeculativeQuantity(id, 0)

	if len(store.Items()) != 0 {
		t.Fatalf("expected row removed on zero quantity")
	}
	if store.IsPending(id) {
		t.Fatalf("expected pending marker cleared on removal")
	}
}

func TestStoreUpdateQuantityMutatesInPlace(t *testing.T) {
	store := testStore(t)
	id := store.AddSpeculative(snapshotFixture(), 1)

	store.UpdateSpeculativeQuantity(id, 5)

	item, ok := store.Find(id)
	if !ok {
		t.Fatalf("expected item present")
	}
	if item.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", item.Quantity)
	}
	if item.UpdatedAt == nil {
		t.Fatalf("expected updated timestamp set")
	}
}

func TestStoreMissingIDIsNoOp(t *testing.T) {
	store := testStore(t)
	store.AddSpeculative(snapshotFixture(), 1)

	store.UpdateSpeculativeQuantity("missing", 4)
	store.RemoveSpeculative("missing")
	store.Revert("missing")
	store.Confirm("missing")

	if len(store.Items()) != 1 {
		t.Fatalf("expected untouched store, got %d items", len(store.Items()))
	}
}

func TestStoreRevertReportsResolution(t *testing.T) {
	var resolutions []Resolution
	store := NewStore(StoreDeps{
		OnResolve: func(_ string, res Resolution) { resolutions = append(resolutions, res) },
	})

	id := store.AddSpeculative(snapshotFixture(), 1)
	store.Revert(id)
	store.Revert(id)

	if len(store.Items()) != 0 || store.HasPending() {
		t.Fatalf("expected empty store after revert")
	}
	if len(resolutions) != 1 || resolutions[0] != ResolutionReverted {
		t.Fatalf("expected single reverted resolution, got %v", resolutions)
	}
}

func TestStoreConfirmClearsPendingOnly(t *testing.T) {
	store := testStore(t)
	first := store.AddSpeculative(snapshotFixture(), 1)
	second := store.AddSpeculative(snapshotFixture(), 3)

	store.Confirm(first)

	if store.IsPending(first) {
		t.Fatalf("expected first operation no longer pending")
	}
	if !store.IsPending(second) {
		t.Fatalf("expected second operation still pending")
	}
	if !store.HasPending() {
		t.Fatalf("expected store still pending overall")
	}
}

func TestStoreMarkRemovalCreatesNoRow(t *testing.T) {
	store := testStore(t)

	id := store.MarkRemoval("item-9")

	if len(store.Items()) != 0 {
		t.Fatalf("expected no speculative row for a removal marker")
	}
	if !store.IsPending(id) {
		t.Fatalf("expected removal marker pending")
	}
	overlay := store.Snapshot()
	if _, ok := overlay.RemovedItemIDs["item-9"]; !ok {
		t.Fatalf("expected item-9 in removal set")
	}
}

func TestStoreOverlayEditTargetsConfirmedRow(t *testing.T) {
	store := testStore(t)
	confirmed := domain.LineItem{
		ID:        "item-4",
		ProductID: "prod-001",
		Quantity:  2,
		UnitPrice: 2400,
		Currency:  "JPY",
		Origin:    domain.OriginConfirmed,
	}

	id := store.OverlayEdit(confirmed, 6)

	item, ok := store.Find(id)
	if !ok {
		t.Fatalf("expected overlay row present")
	}
	if item.TargetItemID != "item-4" {
		t.Fatalf("expected target item-4, got %q", item.TargetItemID)
	}
	if item.ID != "" {
		t.Fatalf("expected server id cleared on overlay row")
	}
	if item.Quantity != 6 || item.Origin != domain.OriginSpeculative {
		t.Fatalf("unexpected overlay row: %+v", item)
	}
}

func TestStoreClearEmptiesEverything(t *testing.T) {
	store := testStore(t)
	store.AddSpeculative(snapshotFixture(), 1)
	store.MarkRemoval("item-1")

	store.Clear()

	if len(store.Items()) != 0 || store.HasPending() {
		t.Fatalf("expected empty store after clear")
	}
}
