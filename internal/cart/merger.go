package cart

import (
	domain "github.com/fieldcraft/storefront/internal/domain"
)

// MergeItems projects the confirmed cart and the speculative overlay into the
// single item list shown to the user. It is a pure function of its inputs and
// never mutates either side:
//
//   - confirmed rows marked for removal are hidden,
//   - confirmed rows with a pending edit are replaced by the overlay row,
//   - remaining speculative rows are appended in insertion order.
//
// Speculative rows are never folded into confirmed rows for the same product;
// reconciliation happens only when the server acknowledges the operation and
// a fresh confirmed cart is read.
func MergeItems(confirmed []domain.LineItem, overlay Overlay) []domain.LineItem {
	edits := map[string]domain.LineItem{}
	for _, item := range overlay.Items {
		if item.TargetItemID != "" {
			edits[item.TargetItemID] = item
		}
	}

	merged := make([]domain.LineItem, 0, len(confirmed)+len(overlay.Items))
	replaced := map[string]struct{}{}
	for _, item := range confirmed {
		if _, removed := overlay.RemovedItemIDs[item.ID]; removed {
			continue
		}
		if edit, ok := edits[item.ID]; ok {
			merged = append(merged, edit)
			replaced[edit.SpeculativeID] = struct{}{}
			continue
		}
		item.Origin = domain.OriginConfirmed
		merged = append(merged, item)
	}

	for _, item := range overlay.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, ok := replaced[item.SpeculativeID]; ok {
			continue
		}
		if item.TargetItemID != "" {
			// The targeted confirmed row was not in this read, typically a
			// race with a concurrent confirmation. Keep the user's edit
			// visible until its sync resolves.
			merged = append(merged, item)
			continue
		}
		merged = append(merged, item)
	}
	return merged
}
