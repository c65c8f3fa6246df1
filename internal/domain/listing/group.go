package listing

import (
	"cmp"
	"slices"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

// Group is one design in a grouped listing.
type Group struct {
	DesignID    string
	OwnerID     string
	Name        string
	Description string
	Type        string
	Discount    *catalog.Discount
	TotalStock  int
	// AvailableSizes lists sizes with stock > 0 in size order.
	AvailableSizes []string
	// Variants holds every matched variant, zero stock included, in size
	// order.
	Variants []catalog.Variant
}

// groupByDesign partitions items by design. Groups keep the order in which
// their first item appears, so newest-first input yields groups ordered by
// their newest variant.
func groupByDesign(items []catalog.Item, order map[string]int) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, it := range items {
		i, ok := index[it.DesignID]
		if !ok {
			i = len(groups)
			index[it.DesignID] = i
			groups = append(groups, Group{
				DesignID:    it.DesignID,
				OwnerID:     it.OwnerID,
				Name:        it.Name,
				Description: it.Description,
				Type:        it.Type,
				Discount:    it.Discount,
			})
		}
		g := &groups[i]
		g.Variants = append(g.Variants, it.Variant)
		g.TotalStock += it.Stock
	}

	for i := range groups {
		g := &groups[i]
		slices.SortStableFunc(g.Variants, func(a, b catalog.Variant) int {
			return compareSize(order, a.Size, b.Size)
		})
		g.AvailableSizes = make([]string, 0, len(g.Variants))
		for _, v := range g.Variants {
			if v.Stock > 0 {
				g.AvailableSizes = append(g.AvailableSizes, v.Size)
			}
		}
	}
	return groups
}

// withSize keeps groups that have a variant of the given size, whatever its
// stock.
func withSize(groups []Group, size string) []Group {
	out := groups[:0:0]
	for _, g := range groups {
		if slices.ContainsFunc(g.Variants, func(v catalog.Variant) bool { return v.Size == size }) {
			out = append(out, g)
		}
	}
	return out
}

// compareSize orders known sizes by sort order and unknown sizes last by
// code.
func compareSize(order map[string]int, a, b string) int {
	oa, okA := order[a]
	ob, okB := order[b]
	switch {
	case okA && okB:
		return cmp.Compare(oa, ob)
	case okA:
		return -1
	case okB:
		return 1
	}
	return cmp.Compare(a, b)
}

// SortVariants orders variants by size.
func SortVariants(vs []catalog.Variant, order map[string]int) {
	slices.SortStableFunc(vs, func(a, b catalog.Variant) int {
		return compareSize(order, a.Size, b.Size)
	})
}
