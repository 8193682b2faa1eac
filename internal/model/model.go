package model

// Times in the engine are float64 milliseconds since the Unix epoch. Inputs
// are integral; clamping may introduce half milliseconds.

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start.
func (iv Interval) Duration() float64 { return iv.End - iv.Start }

// Contains reports whether t lies in [Start, End).
func (iv Interval) Contains(t float64) bool { return t >= iv.Start && t < iv.End }

// Repeat is the period of a repeating hidden spec.
type Repeat string

const (
	RepeatNone    Repeat = ""
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
	RepeatYearly  Repeat = "yearly"
)

// HiddenSpec is either a literal interval (Repeat empty) or a template that
// is materialized across the visible horizon.
type HiddenSpec struct {
	Start  float64
	End    float64
	Repeat Repeat
}

// Item is one data item placed on the timeline. A point item has no End.
type Item struct {
	ID       string
	Start    float64
	End      *float64
	Group    string
	Subgroup string
	Type     string
	Content  string
}

// IsRanged reports whether the item spans an interval.
func (it Item) IsRanged() bool { return it.End != nil }

// Center is the representative time of the item: the midpoint of a ranged
// item, the start of a point item.
func (it Item) Center() float64 {
	if it.End != nil {
		return (it.Start + *it.End) / 2
	}
	return it.Start
}

// EndOrStart returns End when set, Start otherwise.
func (it Item) EndOrStart() float64 {
	if it.End != nil {
		return *it.End
	}
	return it.Start
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }
