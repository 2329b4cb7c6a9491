package hash

import "sort"

// SortIDs sorts ids in ascending canonical order in place. Pack index V2's
// sorted-id table, and the fanout table built over it, both depend on this
// order.
func SortIDs(ids []ObjectID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Compare(ids[j]) < 0
	})
}
