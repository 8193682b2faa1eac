// Package cluster merges dense neighbouring items into aggregate cluster
// items as the timeline zooms out.
//
// The continuous scale is bucketed into integer levels, and the clusters of
// each level are cached until the item set changes. Clusters keep their
// identity across recomputation whenever their member set is unchanged.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"timeaxis/internal/model"
)

// Criteria decides whether two items may share a cluster.
type Criteria func(a, b model.Item) bool

var presets = map[string]Criteria{
	"any":      func(a, b model.Item) bool { return true },
	"group":    func(a, b model.Item) bool { return a.Group == b.Group },
	"type":     func(a, b model.Item) bool { return a.Type == b.Type },
	"subgroup": func(a, b model.Item) bool { return a.Subgroup == b.Subgroup },
}

// CriteriaByName returns a preset criteria: any, group, type or subgroup.
// An empty name means any.
func CriteriaByName(name string) (Criteria, error) {
	if name == "" {
		name = "any"
	}
	c, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown cluster criteria %q, choose from: any, group, subgroup, type", name)
	}
	return c, nil
}

// Options tune cluster generation.
type Options struct {
	// MaxItems is the number of items a time window may hold before they
	// are clustered. Zero means 1.
	MaxItems int
	Criteria Criteria
	// TitleTemplate renders a cluster title; {count} is replaced by the
	// member count.
	TitleTemplate string
}

// Cluster is a synthetic item standing in for several originals.
type Cluster struct {
	ID      string
	Group   string
	Members []model.Item
	Start   float64
	// End is nil when no member is a ranged item.
	End    *float64
	Center float64
	Title  string
}

// Count returns the number of members.
func (c *Cluster) Count() int { return len(c.Members) }

// MemberIDs returns the member ids in member order.
func (c *Cluster) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// Item renders the cluster as a data item, for criteria checks and for
// placing it on the timeline.
func (c *Cluster) Item() model.Item {
	return model.Item{ID: c.ID, Start: c.Start, End: c.End, Group: c.Group, Type: "cluster", Content: strconv.Itoa(c.Count())}
}

func (c *Cluster) setMembers(members []model.Item) {
	c.Members = members
	lo, hi := math.Inf(1), math.Inf(-1)
	sum := 0.0
	ranged := false
	for _, m := range members {
		lo = math.Min(lo, math.Min(m.Start, m.EndOrStart()))
		hi = math.Max(hi, math.Max(m.Start, m.EndOrStart()))
		sum += m.Center()
		ranged = ranged || m.IsRanged()
	}
	c.Center = sum / float64(len(members))
	if ranged {
		c.Start = lo
		c.End = model.Ptr(hi)
	} else {
		c.Start = c.Center
		c.End = nil
	}
}

// noClusterLevel is the level of scales at which nothing is clustered.
const noClusterLevel = -1

// Level maps a scale in pixels per millisecond onto a discrete level and
// the time window, in ms, that neighbours are counted in.
func Level(scale float64) (level int, window float64) {
	if scale <= 0 || scale >= 1 {
		return noClusterLevel, 0
	}
	level = int(math.Abs(math.Round(math.Log2(100 / scale))))
	return level, math.Pow(2, float64(level))
}

type entry struct {
	item      model.Item
	center    float64
	clustered bool
}

// Engine generates clusters for one item set. It is not safe for
// concurrent use.
type Engine struct {
	items               []model.Item
	groups              map[string][]*entry
	groupOrder          []string
	cache               map[int][]*Cluster
	cacheLevel          int
	dataChanged         bool
	applyOnChangedLevel bool

	newID func() string
}

func NewEngine() *Engine {
	e := &Engine{newID: uuid.NewString}
	e.dropCache()
	return e
}

// SetItems stores the items and marks the cache dirty. Clusters are
// recomputed lazily by Clusters. With applyOnChangedLevel set the new
// items are only picked up once the level changes.
func (e *Engine) SetItems(items []model.Item, applyOnChangedLevel bool) {
	e.items = append([]model.Item(nil), items...)
	e.dataChanged = true
	e.applyOnChangedLevel = applyOnChangedLevel
}

// Invalidate marks the current items as changed so the next Clusters call
// rebuilds, regardless of level.
func (e *Engine) Invalidate() {
	e.dataChanged = true
	e.applyOnChangedLevel = false
}

// Clusters returns the clusters for scale. old holds the clusters of the
// previous call; a new cluster whose member set equals an old one's reuses
// that old value.
func (e *Engine) Clusters(old []*Cluster, scale float64, o Options) []*Cluster {
	crit := o.Criteria
	if crit == nil {
		crit = presets["any"]
	}
	maxItems := o.MaxItems
	if maxItems <= 0 {
		maxItems = 1
	}
	if scale >= 1 {
		return nil
	}
	level, window := Level(scale)

	if e.dataChanged {
		apply := true
		if e.applyOnChangedLevel {
			apply = level != e.cacheLevel
		}
		if apply {
			e.dropCache()
			e.filter()
		}
	}
	e.cacheLevel = level
	if clusters, ok := e.cache[level]; ok {
		return clusters
	}

	var clusters []*Cluster
	for _, g := range e.groupOrder {
		entries := e.groups[g]
		for _, en := range entries {
			en.clustered = false
		}
		for i := 0; i < len(entries); {
			it := entries[i]
			neighbours := 1
			for j := i - 1; j >= 0 && it.center-entries[j].center < window/2; j-- {
				if !entries[j].clustered && crit(it.item, entries[j].item) {
					neighbours++
				}
			}
			for k := i + 1; k < len(entries) && entries[k].center-it.center < window/2; k++ {
				if crit(it.item, entries[k].item) {
					neighbours++
				}
			}
			for l := len(clusters) - 1; l >= 0 && it.center-clusters[l].Center < window; l-- {
				if it.item.Group == clusters[l].Group && crit(it.item, clusters[l].Item()) {
					neighbours++
				}
			}

			if neighbours <= maxItems {
				i++
				continue
			}
			num := neighbours - maxItems + 1
			members := make([]model.Item, 0, num)
			for m := i; len(members) < num && m < len(entries); m++ {
				if crit(entries[i].item, entries[m].item) {
					members = append(members, entries[m].item)
					entries[m].clustered = true
				}
			}
			clusters = append(clusters, e.clusterFor(members, it.item.Group, old, o))
			i += num
		}
	}
	e.cache[level] = clusters
	return clusters
}

func (e *Engine) clusterFor(members []model.Item, group string, old []*Cluster, o Options) *Cluster {
	for _, c := range old {
		if sameMembers(c, members) {
			c.setMembers(members)
			c.Group = group
			return c
		}
	}
	c := &Cluster{
		ID:    e.newID(),
		Group: group,
		Title: strings.Replace(o.TitleTemplate, "{count}", strconv.Itoa(len(members)), 1),
	}
	c.setMembers(members)
	return c
}

func sameMembers(c *Cluster, members []model.Item) bool {
	if len(c.Members) != len(members) {
		return false
	}
	ids := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		ids[m.ID] = struct{}{}
	}
	for _, m := range members {
		if _, ok := ids[m.ID]; !ok {
			return false
		}
	}
	return true
}

// filter groups the items by group and sorts each group by center.
func (e *Engine) filter() {
	e.groups = make(map[string][]*entry)
	e.groupOrder = e.groupOrder[:0]
	for _, it := range e.items {
		if _, ok := e.groups[it.Group]; !ok {
			e.groupOrder = append(e.groupOrder, it.Group)
		}
		e.groups[it.Group] = append(e.groups[it.Group], &entry{item: it, center: it.Center()})
	}
	for _, entries := range e.groups {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].center < entries[j].center })
	}
	e.dataChanged = false
}

func (e *Engine) dropCache() {
	e.cache = map[int][]*Cluster{noClusterLevel: nil}
	e.cacheLevel = noClusterLevel
}
