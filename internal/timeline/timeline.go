// Package timeline composes the range, hidden set, stepper, packer and
// cluster engine into snapshots a render layer can draw directly.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"timeaxis/internal/calendar"
	"timeaxis/internal/clock"
	"timeaxis/internal/cluster"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
	"timeaxis/internal/stack"
	"timeaxis/internal/timerange"
	"timeaxis/internal/timestep"
)

const (
	OrderStart = "start"
	OrderEnd   = "end"
)

// TimeAxis pins the stepper to one scale instead of choosing it from the
// zoom level.
type TimeAxis struct {
	Scale string
	Step  int
}

// ClusterOptions enable clustering.
type ClusterOptions struct {
	MaxItems            int
	Criteria            string
	TitleTemplate       string
	ApplyOnChangedLevel bool
}

// Options are the layout options of a timeline.
type Options struct {
	Margins        stack.Margins
	Stack          bool
	StackSubgroups bool
	// Order is OrderStart or OrderEnd.
	Order         string
	ShowWeekScale bool
	TimeAxis      *TimeAxis
	Cluster       *ClusterOptions
	// PackBudget bounds the time spent packing one snapshot. Zero means
	// unbounded.
	PackBudget time.Duration

	ItemHeight float64
	PointWidth float64
	// LabelCharWidth is the pixel width of one minor label character.
	LabelCharWidth float64
}

// DefaultOptions returns the layout used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Margins:        stack.Margins{Axis: 20, Item: stack.Margin{Horizontal: 10, Vertical: 10}},
		Stack:          true,
		StackSubgroups: true,
		Order:          OrderStart,
		ItemHeight:     20,
		PointWidth:     10,
		LabelCharWidth: 10,
	}
}

// Timeline is one timeline instance. Like the Range it owns, it is not safe
// for concurrent use.
type Timeline struct {
	rng      *timerange.Range
	sched    clock.Scheduler
	clusters *cluster.Engine
	criteria cluster.Criteria

	opts         Options
	items        []model.Item
	lastClusters []*cluster.Cluster
}

// New creates a timeline showing start..end at width pixels.
func New(adapter calendar.Adapter, sched clock.Scheduler, start, end, width float64, rangeOpts timerange.Options, opts Options) (*Timeline, error) {
	rng, err := timerange.New(adapter, sched, nil, start, end, rangeOpts)
	if err != nil {
		return nil, fmt.Errorf("create range: %w", err)
	}
	rng.SetWidth(width)
	t := &Timeline{rng: rng, sched: sched, clusters: cluster.NewEngine()}
	if err := t.SetOptions(opts); err != nil {
		return nil, err
	}
	return t, nil
}

// Range returns the visible window for direct manipulation.
func (t *Timeline) Range() *timerange.Range { return t.rng }

func (t *Timeline) Options() Options { return t.opts }

// SetOptions validates and replaces the layout options.
func (t *Timeline) SetOptions(opts Options) error {
	switch opts.Order {
	case "":
		opts.Order = OrderStart
	case OrderStart, OrderEnd:
	default:
		return fmt.Errorf("unknown item order %q, choose from: start, end", opts.Order)
	}
	if opts.TimeAxis != nil {
		if _, err := timestep.ParseScale(opts.TimeAxis.Scale); err != nil {
			return err
		}
		if opts.TimeAxis.Step <= 0 {
			opts.TimeAxis.Step = 1
		}
	}
	def := DefaultOptions()
	if opts.ItemHeight <= 0 {
		opts.ItemHeight = def.ItemHeight
	}
	if opts.PointWidth <= 0 {
		opts.PointWidth = def.PointWidth
	}
	if opts.LabelCharWidth <= 0 {
		opts.LabelCharWidth = def.LabelCharWidth
	}

	var crit cluster.Criteria
	if opts.Cluster != nil {
		var err error
		if crit, err = cluster.CriteriaByName(opts.Cluster.Criteria); err != nil {
			return err
		}
	}
	t.criteria = crit
	t.opts = opts
	t.clusters.Invalidate()
	return nil
}

// SetItems replaces the data items.
func (t *Timeline) SetItems(items []model.Item) {
	t.items = append([]model.Item(nil), items...)
	apply := t.opts.Cluster != nil && t.opts.Cluster.ApplyOnChangedLevel
	t.clusters.SetItems(t.items, apply)
}

func (t *Timeline) Items() []model.Item { return t.items }

// SetHidden replaces the hidden specs. The error lists skipped specs; the
// others are applied.
func (t *Timeline) SetHidden(specs []model.HiddenSpec) error {
	return t.rng.SetHidden(specs)
}

// SetWidth changes the display width.
func (t *Timeline) SetWidth(px float64) { t.rng.SetWidth(px) }

// MinimumStep is the visible time a minor label needs at the current zoom.
func (t *Timeline) MinimumStep() float64 {
	labelTime := t.rng.ToTime(t.opts.LabelCharWidth * 7)
	hs := t.rng.Hidden()
	return labelTime - hs.DurationBefore(t.rng.Start(), t.rng.End(), labelTime) - t.rng.ToTime(0)
}

// PlacedItem is an item or cluster with its pixel box.
type PlacedItem struct {
	ID       string   `json:"id"`
	Group    string   `json:"group,omitempty"`
	Subgroup string   `json:"subgroup,omitempty"`
	Type     string   `json:"type,omitempty"`
	Content  string   `json:"content,omitempty"`
	Start    float64  `json:"start"`
	End      *float64 `json:"end,omitempty"`
	Left     float64  `json:"left"`
	Width    float64  `json:"width"`
	Top      float64  `json:"top"`
	Height   float64  `json:"height"`

	// Cluster fields.
	Title   string   `json:"title,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Snapshot is everything a render layer needs for one frame.
type Snapshot struct {
	Start    float64          `json:"start"`
	End      float64          `json:"end"`
	Width    float64          `json:"width"`
	Scale    string           `json:"scale"`
	Step     int              `json:"step"`
	Rolling  bool             `json:"rolling"`
	Hidden   []model.Interval `json:"hidden"`
	Ticks    []timestep.Tick  `json:"ticks"`
	Items    []PlacedItem     `json:"items"`
	Clusters []PlacedItem     `json:"clusters"`
	Aborted  bool             `json:"aborted"`
}

// Snapshot lays the current items out for the current window.
func (t *Timeline) Snapshot() (Snapshot, error) {
	start, end, width := t.rng.Start(), t.rng.End(), t.rng.Width()
	if width <= 0 {
		return Snapshot{}, errors.New("timeline width is not set")
	}
	hs := t.rng.Hidden()

	step := timestep.New(t.rng.Adapter(), hs, start, end, t.MinimumStep(), timestep.Options{ShowWeekScale: t.opts.ShowWeekScale})
	if ax := t.opts.TimeAxis; ax != nil {
		if err := step.SetScale(ax.Scale, ax.Step); err != nil {
			return Snapshot{}, err
		}
	}
	snap := Snapshot{
		Start:   start,
		End:     end,
		Width:   width,
		Rolling: t.rng.Rolling(),
		Hidden:  hs.Intervals(),
		Ticks:   step.Ticks(t.rng.ToScreen),
	}
	snap.Scale, snap.Step = step.Scale().String(), step.StepSize()

	clustered := make(map[string]bool)
	var clusters []*cluster.Cluster
	if t.opts.Cluster != nil {
		scale := t.rng.Conversion(width, hs.DurationWithin(start, end)).Scale
		clusters = t.clusters.Clusters(t.lastClusters, scale, cluster.Options{
			MaxItems:      t.opts.Cluster.MaxItems,
			Criteria:      t.criteria,
			TitleTemplate: t.opts.Cluster.TitleTemplate,
		})
		t.lastClusters = clusters
		for _, c := range clusters {
			for _, id := range c.MemberIDs() {
				clustered[id] = true
			}
		}
	}

	window := end - start
	lo, hi := start-window, end+window
	visible := func(it model.Item) bool {
		return it.EndOrStart() >= lo && it.Start <= hi
	}

	data := make(map[string]model.Item)
	var boxes []*stack.Item
	for _, it := range t.items {
		if clustered[it.ID] || !visible(it) {
			continue
		}
		data[it.ID] = it
		boxes = append(boxes, t.box(it))
	}
	clusterData := make(map[string]*cluster.Cluster)
	for _, c := range clusters {
		it := c.Item()
		if !visible(it) {
			continue
		}
		clusterData[c.ID] = c
		boxes = append(boxes, t.box(it))
	}

	snap.Aborted = t.pack(boxes, data, clusterData)

	for _, b := range boxes {
		if c, ok := clusterData[b.ID]; ok {
			snap.Clusters = append(snap.Clusters, placed(c.Item(), b, c))
			continue
		}
		snap.Items = append(snap.Items, placed(data[b.ID], b, nil))
	}
	return snap, nil
}

func (t *Timeline) box(it model.Item) *stack.Item {
	x := t.rng.ToScreen(it.Start)
	b := &stack.Item{
		ID:       it.ID,
		Height:   t.opts.ItemHeight,
		Stack:    t.opts.Stack,
		Subgroup: it.Subgroup,
		Start:    it.Start,
		End:      it.EndOrStart(),
	}
	if it.IsRanged() {
		b.Left = x
		b.Width = t.rng.ToScreen(*it.End) - x
	} else {
		b.Left = x - t.opts.PointWidth/2
		b.Width = t.opts.PointWidth
	}
	return b
}

// pack orders the boxes and packs each group separately. It reports whether
// the pack budget ran out.
func (t *Timeline) pack(boxes []*stack.Item, data map[string]model.Item, clusters map[string]*cluster.Cluster) (aborted bool) {
	if t.opts.Order == OrderEnd {
		stack.OrderByEnd(boxes)
	} else {
		stack.OrderByStart(boxes)
	}

	shouldAbort := func() bool { return false }
	if t.opts.PackBudget > 0 && t.sched != nil {
		deadline := t.sched.Now().Add(t.opts.PackBudget)
		shouldAbort = func() bool { return t.sched.Now().After(deadline) }
	}

	groupOf := func(id string) string {
		if c, ok := clusters[id]; ok {
			return c.Group
		}
		return data[id].Group
	}
	var order []string
	groups := make(map[string][]*stack.Item)
	for _, b := range boxes {
		g := groupOf(b.ID)
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], b)
	}

	for _, g := range order {
		if t.packGroup(groups[g], shouldAbort) {
			appLog.Debug("timeline: packing aborted", "group", g, "items", len(boxes), "budget", t.opts.PackBudget)
			return true
		}
	}
	return false
}

func (t *Timeline) packGroup(items []*stack.Item, shouldAbort func() bool) (aborted bool) {
	m := t.opts.Margins
	subgroups := stack.BuildSubgroups(items, m, nil, t.opts.Stack)
	if !t.opts.Stack {
		stack.PackNoStack(items, m, subgroups, t.opts.StackSubgroups)
		return false
	}
	if len(subgroups) == 0 || !t.opts.StackSubgroups {
		return stack.Pack(items, m, true, shouldAbort)
	}

	var plain []*stack.Item
	bySubgroup := make(map[string][]*stack.Item)
	for _, it := range items {
		if it.Subgroup == "" {
			plain = append(plain, it)
			continue
		}
		bySubgroup[it.Subgroup] = append(bySubgroup[it.Subgroup], it)
	}
	if stack.Pack(plain, m, true, shouldAbort) {
		return true
	}
	stack.PackSubgroupsWithInnerStack(bySubgroup, m, subgroups)
	return false
}

func placed(it model.Item, b *stack.Item, c *cluster.Cluster) PlacedItem {
	p := PlacedItem{
		ID:       it.ID,
		Group:    it.Group,
		Subgroup: it.Subgroup,
		Type:     it.Type,
		Content:  it.Content,
		Start:    it.Start,
		End:      it.End,
		Left:     b.Left,
		Width:    b.Width,
		Top:      b.Top,
		Height:   b.Height,
	}
	if c != nil {
		p.Title = c.Title
		p.Members = c.MemberIDs()
	}
	return p
}
