// Package hidden keeps the ordered set of hidden intervals the time axis
// skips over, and answers the duration queries coordinate conversion needs.
//
// Coalescing is a pairwise scan and therefore O(n²) in the number of
// materialized intervals. Hidden windows number in the tens to low hundreds
// per horizon, so this is the accepted scaling limit.
package hidden

import (
	"errors"
	"sort"

	"timeaxis/internal/calendar"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
)

// boundaryTolerance absorbs float noise when AccumulatedDuration compares a
// pixel-derived duration against an exact visible-gap length, so that a
// time sitting exactly on a hidden end maps back onto that end.
const boundaryTolerance = 1e-3

// Horizon is the window repeating specs are materialized for. PixelTime is
// the number of milliseconds one pixel covers; templates shorter than four
// pixels are skipped. A zero PixelTime disables that guard.
type Horizon struct {
	Start     float64
	End       float64
	PixelTime float64
}

// Hit is the result of IsHidden.
type Hit struct {
	Hidden bool
	Start  float64
	End    float64
}

// Set is a HiddenIntervalSet. It owns the configured specs and the
// intervals materialized from them for the last horizon.
type Set struct {
	adapter   calendar.Adapter
	specs     []model.HiddenSpec
	intervals []model.Interval
}

func NewSet(adapter calendar.Adapter) *Set {
	if adapter == nil {
		adapter = calendar.UTC()
	}
	return &Set{adapter: adapter}
}

// InsertAll replaces the configured specs and materializes them for h.
// Specs with an unknown repeat kind are skipped; the returned error joins
// one errs.UnknownRepeatKindError per skipped spec and is not fatal.
func (s *Set) InsertAll(specs []model.HiddenSpec, h Horizon) error {
	s.specs = append([]model.HiddenSpec(nil), specs...)
	return s.Refresh(h)
}

// Refresh re-materializes the configured specs for a new horizon.
func (s *Set) Refresh(h Horizon) error {
	var (
		out  []model.Interval
		skip []error
	)
	for _, spec := range s.specs {
		if spec.End < spec.Start {
			appLog.Warn("hidden: spec ends before it starts, skipped", "start", spec.Start, "end", spec.End)
			continue
		}
		if spec.Repeat == model.RepeatNone {
			out = append(out, model.Interval{Start: spec.Start, End: spec.End})
			continue
		}
		ivs, err := s.materialize(spec, h)
		if err != nil {
			appLog.Error("hidden: repeating spec skipped", err, "repeat", string(spec.Repeat))
			skip = append(skip, err)
			continue
		}
		out = append(out, ivs...)
	}
	sortIntervals(out)
	s.intervals = coalesce(out)
	return errors.Join(skip...)
}

// Specs returns the configured specs.
func (s *Set) Specs() []model.HiddenSpec {
	return append([]model.HiddenSpec(nil), s.specs...)
}

// Intervals returns a copy of the materialized, coalesced intervals.
func (s *Set) Intervals() []model.Interval {
	return append([]model.Interval(nil), s.intervals...)
}

func (s *Set) Len() int { return len(s.intervals) }

// IsHidden returns the first interval containing t.
func (s *Set) IsHidden(t float64) Hit {
	for _, iv := range s.intervals {
		if iv.Contains(t) {
			return Hit{Hidden: true, Start: iv.Start, End: iv.End}
		}
	}
	return Hit{Start: t, End: t}
}

// DurationWithin sums the hidden intervals fully inside [a, b).
func (s *Set) DurationWithin(a, b float64) float64 {
	var d float64
	for _, iv := range s.intervals {
		if iv.Start >= a && iv.End <= b {
			d += iv.Duration()
		}
	}
	return d
}

// DurationBefore sums the hidden intervals fully inside [refStart, refEnd)
// that end at or before t. An interval ending exactly at refEnd counts, so
// the range end maps onto the full width.
func (s *Set) DurationBefore(refStart, refEnd, t float64) float64 {
	var d float64
	for _, iv := range s.intervals {
		if iv.Start >= refStart && iv.End <= refEnd && t >= iv.End {
			d += iv.Duration()
		}
	}
	return d
}

// DurationBeforeStart sums the hidden intervals lying between t and a range
// start that is later than t.
func (s *Set) DurationBeforeStart(t, rangeStart float64) float64 {
	var d float64
	for _, iv := range s.intervals {
		if iv.Start >= t && iv.End <= rangeStart {
			d += iv.Duration()
		}
	}
	return d
}

// AccumulatedDuration walks the hidden intervals inside [rangeStart,
// rangeEnd) and returns how much hidden time lies before the point where
// the visible duration from rangeStart reaches required.
func (s *Set) AccumulatedDuration(rangeStart, rangeEnd, required float64) float64 {
	var hidden, visible float64
	prev := rangeStart
	for _, iv := range s.intervals {
		if iv.Start < rangeStart || iv.End > rangeEnd {
			continue
		}
		visible += iv.Start - prev
		prev = iv.End
		if visible > required+boundaryTolerance {
			break
		}
		hidden += iv.Duration()
	}
	return hidden
}

// SnapAway moves t out of the hidden interval containing it: one
// millisecond before its start when direction is negative, one after its
// end otherwise. With soft set, the distance from t to the far boundary is
// carried over so a dragged point does not jump.
func (s *Set) SnapAway(t float64, direction int, soft bool) float64 {
	hit := s.IsHidden(t)
	if !hit.Hidden {
		return t
	}
	if direction < 0 {
		if soft {
			return hit.Start - (hit.End - t) - 1
		}
		return hit.Start - 1
	}
	if soft {
		return hit.End + (t - hit.Start) + 1
	}
	return hit.End + 1
}

func sortIntervals(ivs []model.Interval) {
	sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
}

// coalesce repeatedly absorbs any interval that is contained in, or
// overlaps or touches, another one. Touching counts: [0,5) and [5,9)
// become [0,9).
func coalesce(in []model.Interval) []model.Interval {
	ivs := append([]model.Interval(nil), in...)
	removed := make([]bool, len(ivs))
	for merged := true; merged; {
		merged = false
		for i := range ivs {
			if removed[i] {
				continue
			}
			for j := range ivs {
				if i == j || removed[j] {
					continue
				}
				a, b := &ivs[i], ivs[j]
				switch {
				case b.Start >= a.Start && b.End <= a.End:
				case b.Start >= a.Start && b.Start <= a.End:
					a.End = b.End
				case b.End >= a.Start && b.End <= a.End:
					a.Start = b.Start
				default:
					continue
				}
				removed[j] = true
				merged = true
			}
		}
	}
	out := make([]model.Interval, 0, len(ivs))
	for i, iv := range ivs {
		if !removed[i] {
			out = append(out, iv)
		}
	}
	sortIntervals(out)
	return out
}
