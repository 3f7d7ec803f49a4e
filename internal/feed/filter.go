package feed

// SeenChecker reports whether an identifier has already been notified.
type SeenChecker interface {
	Contains(id string) bool
}

// Skip records an item the filter refused because it is malformed.
// Skipped items are not marked seen, so they are re-evaluated every cycle.
type Skip struct {
	Item   Item
	Reason error
}

// Filter returns the items that are unseen and created on or after cutoff,
// in input order. Items without an identifier or with an unparseable
// creation timestamp are returned in skipped instead.
//
// Filter has no side effects; seen may be nil.
func Filter(items []Item, seen SeenChecker, cutoff Date) (fresh []Item, skipped []Skip) {
	emitted := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			skipped = append(skipped, Skip{Item: it, Reason: ErrNoID})
			continue
		}
		created, err := ParseCreated(it.CreatedAt)
		if err != nil {
			skipped = append(skipped, Skip{Item: it, Reason: err})
			continue
		}
		if seen != nil && seen.Contains(it.ID) {
			continue
		}
		if DateOf(created).Before(cutoff) {
			continue
		}
		if _, dup := emitted[it.ID]; dup {
			continue
		}
		emitted[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}
	return fresh, skipped
}
