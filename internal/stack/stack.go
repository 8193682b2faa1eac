// Package stack assigns vertical positions to timeline items so that items
// overlapping in time do not overlap on screen.
//
// Packing is greedy first-fit downward and depends on input order; sort
// with OrderByStart or OrderByEnd first for deterministic layouts.
package stack

import (
	"sort"
)

// epsilon tolerates float jitter from repeated coordinate conversions.
const epsilon = 0.001

// Margin is the spacing kept between items.
type Margin struct {
	Horizontal float64 `json:"horizontal" yaml:"horizontal"`
	Vertical   float64 `json:"vertical" yaml:"vertical"`
}

// Margins holds the item margin plus the distance between the axis and the
// first row.
type Margins struct {
	Axis float64 `json:"axis" yaml:"axis"`
	Item Margin  `json:"item" yaml:"item"`
}

// Item is a visual item: a box in pixels plus the times it was built from.
type Item struct {
	ID     string
	Left   float64
	Width  float64
	Height float64
	// Top is meaningful only when Placed is set.
	Top    float64
	Placed bool
	// Stack marks items that take part in collision resolution.
	Stack    bool
	Subgroup string
	BaseTop  float64

	// Start and End are the item times; End equals Start for point items.
	Start float64
	End   float64
}

// Subgroup is a horizontal band of items sharing a subgroup id.
type Subgroup struct {
	ID      string
	Index   int
	Visible bool
	Stack   bool
	Start   float64
	End     float64
	Top     float64
	Height  float64
	placed  bool
}

// Collision reports whether the boxes of a and b, widened by the margin,
// overlap both horizontally and vertically.
func Collision(a, b *Item, m Margin) bool {
	return a.Left-m.Horizontal+epsilon < b.Left+b.Width &&
		a.Left+a.Width+m.Horizontal-epsilon > b.Left &&
		a.Top-m.Vertical+epsilon < b.Top+b.Height &&
		a.Top+a.Height+m.Vertical-epsilon > b.Top
}

// CollisionByTimes reports whether two subgroup bands overlap in time and
// in height. Abutting bands do not collide.
func CollisionByTimes(a, b *Subgroup) bool {
	return a.Start < b.End && a.End > b.Start &&
		a.Top < b.Top+b.Height && a.Top+a.Height > b.Top
}

// OrderByStart sorts items by start time, ties broken by ID.
func OrderByStart(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start != items[j].Start {
			return items[i].Start < items[j].Start
		}
		return items[i].ID < items[j].ID
	})
}

// OrderByEnd sorts items by end time (start for point items), ties broken
// by ID.
func OrderByEnd(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].End != items[j].End {
			return items[i].End < items[j].End
		}
		return items[i].ID < items[j].ID
	})
}

// Pack places every stackable item that has no position yet, or every
// stackable item when force is set. Each item starts at the axis margin and
// moves below whatever placed item it collides with until it collides with
// none. shouldAbort is polled before every collision scan; when it returns
// true Pack stops and reports true, leaving the layout partially applied.
func Pack(items []*Item, m Margins, force bool, shouldAbort func() bool) (aborted bool) {
	if force {
		for _, it := range items {
			if it.Stack {
				it.Placed = false
			}
		}
	}
	for _, it := range items {
		if !it.Stack || it.Placed {
			continue
		}
		it.Top = m.Axis
		it.Placed = true
		if settle(it, items, m.Item, shouldAbort) {
			return true
		}
	}
	return false
}

// settle pushes it down until it clears every other placed, stackable item.
func settle(it *Item, others []*Item, m Margin, shouldAbort func() bool) (aborted bool) {
	for {
		if shouldAbort != nil && shouldAbort() {
			return true
		}
		var collider *Item
		for _, o := range others {
			if o != it && o.Placed && o.Stack && Collision(it, o, m) {
				collider = o
				break
			}
		}
		if collider == nil {
			return false
		}
		it.Top = collider.Top + collider.Height + m.Vertical
	}
}

// PackNoStack places items without collision resolution: items without a
// subgroup sit one vertical margin below the axis, items in a subgroup sit
// in their subgroup's band. Bands are laid out by index when stackSubgroups
// is set and packed against each other by time otherwise.
func PackNoStack(items []*Item, m Margins, subgroups map[string]*Subgroup, stackSubgroups bool) {
	for _, it := range items {
		sg, ok := subgroups[it.Subgroup]
		switch {
		case it.Subgroup == "" || !ok:
			it.Top = m.Item.Vertical
			it.Placed = true
		case stackSubgroups:
			top := 0.0
			for _, other := range subgroups {
				if other.Visible && other.Index < sg.Index {
					top += other.Height
				}
			}
			sg.Top = top
			it.Top = top + 0.5*m.Item.Vertical
			it.Placed = true
		}
	}
	if !stackSubgroups {
		PackSubgroups(items, m, subgroups)
	}
}

// PackSubgroups packs the subgroup bands against each other by time
// overlap, in index order, then moves every subgroup item into its band.
func PackSubgroups(items []*Item, m Margins, subgroups map[string]*Subgroup) {
	bands := sortedSubgroups(subgroups)
	for _, sg := range bands {
		sg.placed = false
	}
	for _, sg := range bands {
		sg.Top = 0
		sg.placed = true
		for {
			var collider *Subgroup
			for _, o := range bands {
				if o != sg && o.placed && CollisionByTimes(sg, o) {
					collider = o
					break
				}
			}
			if collider == nil {
				break
			}
			sg.Top = collider.Top + collider.Height
		}
	}
	for _, it := range items {
		if sg, ok := subgroups[it.Subgroup]; ok && it.Subgroup != "" {
			it.Top = sg.Top + 0.5*m.Item.Vertical
			it.Placed = true
		}
	}
}

// PackSubgroupsWithInnerStack lays the bands out by index and, for bands
// with Stack set, packs their items inside the band and grows the band to
// fit.
func PackSubgroupsWithInnerStack(subgroupItems map[string][]*Item, m Margins, subgroups map[string]*Subgroup) {
	doSubStack := false
	for _, sg := range sortedSubgroups(subgroups) {
		doSubStack = doSubStack || sg.Stack
		sg.Top = 0
		for _, other := range subgroups {
			if other.Visible && sg.Index > other.Index {
				sg.Top += other.Height
			}
		}
		items := subgroupItems[sg.ID]
		for _, it := range items {
			it.Top = sg.Top + 0.5*m.Item.Vertical
			it.Placed = true
			if sg.Stack {
				it.BaseTop = it.Top
			}
		}
		if doSubStack && sg.Stack {
			Substack(items, m, sg)
		}
	}
}

// Substack packs items within a subgroup band starting from each item's
// BaseTop and sets the band height to fit them.
func Substack(items []*Item, m Margins, sg *Subgroup) {
	for _, it := range items {
		if it.Stack {
			it.Placed = false
		}
	}
	maxBottom := 0.0
	for _, it := range items {
		if it.Stack {
			it.Top = it.BaseTop
			it.Placed = true
			settle(it, items, m.Item, nil)
		}
		if b := it.Top + it.Height; b > maxBottom {
			maxBottom = b
		}
	}
	sg.Height = maxBottom - sg.Top + 0.5*m.Item.Vertical
}

// BuildSubgroups derives the subgroup bands for items: their time extent,
// a height fitting the tallest item plus the vertical margin, and an index
// from order (appearance order for subgroups order does not name).
func BuildSubgroups(items []*Item, m Margins, order map[string]int, stackInner bool) map[string]*Subgroup {
	out := make(map[string]*Subgroup)
	next := len(order)
	for _, it := range items {
		if it.Subgroup == "" {
			continue
		}
		sg, ok := out[it.Subgroup]
		if !ok {
			idx, known := order[it.Subgroup]
			if !known {
				idx = next
				next++
			}
			sg = &Subgroup{ID: it.Subgroup, Index: idx, Visible: true, Stack: stackInner, Start: it.Start, End: it.End}
			out[it.Subgroup] = sg
		}
		if it.Start < sg.Start {
			sg.Start = it.Start
		}
		if it.End > sg.End {
			sg.End = it.End
		}
		if h := it.Height + m.Item.Vertical; h > sg.Height {
			sg.Height = h
		}
	}
	return out
}

func sortedSubgroups(subgroups map[string]*Subgroup) []*Subgroup {
	out := make([]*Subgroup, 0, len(subgroups))
	for _, sg := range subgroups {
		out = append(out, sg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}
