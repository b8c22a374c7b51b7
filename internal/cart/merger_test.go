package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	domain "github.com/fieldcraft/storefront/internal/domain"
)

func confirmedFixture() []domain.LineItem {
	return []domain.LineItem{
		{ID: "item-1", ProductID: "prod-001", Quantity: 2, UnitPrice: 2400, Currency: "JPY", Origin: domain.OriginConfirmed},
		{ID: "item-2", ProductID: "prod-002", Quantity: 1, UnitPrice: 980, Currency: "JPY", Origin: domain.OriginConfirmed},
	}
}

func TestMergeItemsAppendsSpeculativeAdds(t *testing.T) {
	overlay := Overlay{
		Items: []domain.LineItem{
			{SpeculativeID: "spec-a", ProductID: "prod-003", Quantity: 1, UnitPrice: 500, Origin: domain.OriginSpeculative},
		},
		RemovedItemIDs: map[string]struct{}{},
	}

	merged := MergeItems(confirmedFixture(), overlay)

	want := append(confirmedFixture(), overlay.Items[0])
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merged items mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeItemsHidesRemovedConfirmedRows(t *testing.T) {
	overlay := Overlay{
		Items:          nil,
		RemovedItemIDs: map[string]struct{}{"item-1": {}},
	}

	merged := MergeItems(confirmedFixture(), overlay)

	if len(merged) != 1 || merged[0].ID != "item-2" {
		t.Fatalf("expected only item-2 visible, got %+v", merged)
	}
}

func TestMergeItemsReplacesEditedConfirmedRow(t *testing.T) {
	edit := domain.LineItem{
		SpeculativeID: "spec-a",
		TargetItemID:  "item-2",
		ProductID:     "prod-002",
		Quantity:      4,
		UnitPrice:     980,
		Currency:      "JPY",
		Origin:        domain.OriginSpeculative,
	}
	overlay := Overlay{Items: []domain.LineItem{edit}, RemovedItemIDs: map[string]struct{}{}}

	merged := MergeItems(confirmedFixture(), overlay)

	if len(merged) != 2 {
		t.Fatalf("expected two rows, got %d", len(merged))
	}
	if merged[1].SpeculativeID != "spec-a" || merged[1].Quantity != 4 {
		t.Fatalf("expected edit row in place of item-2, got %+v", merged[1])
	}
	// The edit keeps the confirmed row's position, not an appended slot.
	if merged[0].ID != "item-1" {
		t.Fatalf("expected item-1 first, got %+v", merged[0])
	}
}

func TestMergeItemsKeepsOrphanEditVisible(t *testing.T) {
	edit := domain.LineItem{
		SpeculativeID: "spec-a",
		TargetItemID:  "item-gone",
		ProductID:     "prod-009",
		Quantity:      1,
		UnitPrice:     300,
		Origin:        domain.OriginSpeculative,
	}
	overlay := Overlay{Items: []domain.LineItem{edit}, RemovedItemIDs: map[string]struct{}{}}

	merged := MergeItems(confirmedFixture(), overlay)

	if len(merged) != 3 || merged[2].SpeculativeID != "spec-a" {
		t.Fatalf("expected orphan edit appended, got %+v", merged)
	}
}

func TestMergeItemsIsPure(t *testing.T) {
	confirmed := confirmedFixture()
	overlay := Overlay{
		Items: []domain.LineItem{
			{SpeculativeID: "spec-a", ProductID: "prod-003", Quantity: 1, UnitPrice: 500, Origin: domain.OriginSpeculative},
		},
		RemovedItemIDs: map[string]struct{}{"item-1": {}},
	}

	MergeItems(confirmed, overlay)

	if diff := cmp.Diff(confirmedFixture(), confirmed); diff != "" {
		t.Fatalf("confirmed slice mutated (-want +got):\n%s", diff)
	}
	if len(overlay.Items) != 1 {
		t.Fatalf("overlay mutated: %+v", overlay.Items)
	}
}

func TestMergeItemsSameProductStaysSeparate(t *testing.T) {
	overlay := Overlay{
		Items: []domain.LineItem{
			{SpeculativeID: "spec-a", ProductID: "prod-001", Quantity: 1, UnitPrice: 2400, Origin: domain.OriginSpeculative},
		},
		RemovedItemIDs: map[string]struct{}{},
	}

	merged := MergeItems(confirmedFixture(), overlay)

	if len(merged) != 3 {
		t.Fatalf("expected speculative row kept separate from confirmed prod-001, got %d rows", len(merged))
	}
	if domain.Subtotal(merged) != 2400*2+980+2400 {
		t.Fatalf("unexpected merged subtotal %d", domain.Subtotal(merged))
	}
}
