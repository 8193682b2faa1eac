// Package timestep iterates the tick dates of a time axis: it chooses a
// calendar granularity for the visible range and walks calendar-correct
// steps across it, skipping hidden intervals.
package timestep

import (
	"math"
	"time"

	"timeaxis/internal/calendar"
	"timeaxis/internal/hidden"
)

// Hidden is the part of the hidden interval set the stepper needs.
type Hidden interface {
	IsHidden(t float64) hidden.Hit
	SnapAway(t float64, direction int, soft bool) float64
}

// Step is a cursor over tick dates between a start and an end.
type Step struct {
	adapter calendar.Adapter
	hidden  Hidden

	start, end time.Time
	current    time.Time

	scale     Scale
	step      int
	autoScale bool

	showWeekScale bool
	format        Format

	switchedDay   bool
	switchedMonth bool
	switchedYear  bool
}

// Options configure a Step.
type Options struct {
	ShowWeekScale bool
	Format        *Format
}

// New creates a stepper for start..end with a scale chosen for
// minimumStep. hs may be nil.
func New(adapter calendar.Adapter, hs Hidden, start, end, minimumStep float64, opts Options) *Step {
	if adapter == nil {
		adapter = calendar.UTC()
	}
	s := &Step{
		adapter:       adapter,
		hidden:        hs,
		scale:         Day,
		step:          1,
		autoScale:     true,
		showWeekScale: opts.ShowWeekScale,
		format:        DefaultFormat(),
	}
	if opts.Format != nil {
		s.format = *opts.Format
	}
	s.SetRange(start, end, minimumStep)
	return s
}

// SetRange sets the interval to step over. An empty interval is widened to
// one millisecond.
func (s *Step) SetRange(start, end, minimumStep float64) {
	if end == start {
		end = start + 1
	}
	s.start = s.adapter.FromMillis(start)
	s.end = s.adapter.FromMillis(end)
	if s.autoScale {
		s.SetMinimumStep(minimumStep)
	}
}

// SetMinimumStep picks the scale for the given minimum tick distance in ms.
func (s *Step) SetMinimumStep(minimumStep float64) {
	s.scale, s.step = ChooseScale(minimumStep, s.showWeekScale)
}

// SetScale pins the scale and step and turns off automatic scale choice.
func (s *Step) SetScale(name string, step int) error {
	sc, err := ParseScale(name)
	if err != nil {
		return err
	}
	if step < 1 {
		step = 1
	}
	s.scale, s.step, s.autoScale = sc, step, false
	return nil
}

// SetAutoScale turns automatic scale choice on or off.
func (s *Step) SetAutoScale(on bool) { s.autoScale = on }

func (s *Step) Scale() Scale { return s.scale }
func (s *Step) StepSize() int { return s.step }

// First positions the cursor on the first tick at or before the start.
func (s *Step) First() {
	s.current = s.start
	s.RoundToMinor()
}

// RoundToMinor floors the cursor to a boundary of the current scale and to
// a multiple of the step within it. A cursor moved by step flooring is
// snapped back out of any hidden interval.
func (s *Step) RoundToMinor() {
	a := s.adapter
	c := s.current
	if s.scale == Week {
		c = a.Set(c, calendar.FieldWeekday, 0)
	}
	// Each coarser scale also clears every finer field.
	if s.scale == Year {
		c = a.Set(c, calendar.FieldYear, s.step*floorDiv(a.Get(c, calendar.FieldYear), s.step))
		c = a.Set(c, calendar.FieldMonth, 1)
	}
	if s.scale >= Month {
		c = a.Set(c, calendar.FieldDate, 1)
	}
	if s.scale >= Weekday {
		c = a.Set(c, calendar.FieldHours, 0)
	}
	if s.scale >= Hour {
		c = a.Set(c, calendar.FieldMinutes, 0)
	}
	if s.scale >= Minute {
		c = a.Set(c, calendar.FieldSeconds, 0)
	}
	if s.scale >= Second {
		c = a.Set(c, calendar.FieldMilliseconds, 0)
	}

	if s.step != 1 {
		prior := c
		switch s.scale {
		case Millisecond:
			c = a.Subtract(c, a.Get(c, calendar.FieldMilliseconds)%s.step, calendar.Millisecond)
		case Second:
			c = a.Subtract(c, a.Get(c, calendar.FieldSeconds)%s.step, calendar.Second)
		case Minute:
			c = a.Subtract(c, a.Get(c, calendar.FieldMinutes)%s.step, calendar.Minute)
		case Hour:
			c = a.Subtract(c, a.Get(c, calendar.FieldHours)%s.step, calendar.Hour)
		case Weekday, Day:
			c = a.Subtract(c, (a.Get(c, calendar.FieldDate)-1)%s.step, calendar.Day)
		case Week:
			c = a.Subtract(c, a.Get(c, calendar.FieldWeek)%s.step, calendar.Week)
		case Month:
			c = a.Subtract(c, (a.Get(c, calendar.FieldMonth)-1)%s.step, calendar.Month)
		case Year:
			c = a.Subtract(c, a.Get(c, calendar.FieldYear)%s.step, calendar.Year)
		}
		if !prior.Equal(c) && s.hidden != nil {
			c = a.FromMillis(s.hidden.SnapAway(a.Millis(c), -1, true))
		}
	}
	s.current = c
}

// HasNext reports whether the cursor is still at or before the end.
func (s *Step) HasNext() bool {
	return !s.current.After(s.end)
}

// Next advances the cursor by one step using calendar arithmetic.
func (s *Step) Next() {
	a := s.adapter
	prev := s.current
	c := s.current

	switch s.scale {
	case Millisecond:
		c = a.Add(c, s.step, calendar.Millisecond)
	case Second:
		c = a.Add(c, s.step, calendar.Second)
	case Minute:
		c = a.Add(c, s.step, calendar.Minute)
	case Hour:
		c = a.Add(c, s.step, calendar.Hour)
		// Re-align onto multiples of the step after a daylight saving shift:
		// backwards in the first half of the year, forwards in the second.
		if h := a.Get(c, calendar.FieldHours) % s.step; h != 0 {
			if a.Get(c, calendar.FieldMonth) <= 6 {
				c = a.Subtract(c, h, calendar.Hour)
			} else {
				c = a.Add(c, s.step-h, calendar.Hour)
			}
		}
	case Weekday, Day:
		c = a.Add(c, s.step, calendar.Day)
	case Week:
		switch {
		case a.Get(c, calendar.FieldWeekday) != 0:
			// A month-start tick was injected; return to the week cycle.
			c = a.Set(c, calendar.FieldWeekday, 0)
			c = a.Add(c, s.step, calendar.Week)
		case a.IsSame(a.Add(c, 1, calendar.Week), c, calendar.Month):
			c = a.Add(c, s.step, calendar.Week)
		default:
			// Inject a tick on the first day of the next month.
			c = a.Add(c, s.step, calendar.Week)
			c = a.Set(c, calendar.FieldDate, 1)
		}
	case Month:
		c = a.Add(c, s.step, calendar.Month)
	case Year:
		c = a.Add(c, s.step, calendar.Year)
	}

	if s.step != 1 {
		switch s.scale {
		case Millisecond:
			if v := a.Get(c, calendar.FieldMilliseconds); v > 0 && v < s.step {
				c = a.Set(c, calendar.FieldMilliseconds, 0)
			}
		case Second:
			if v := a.Get(c, calendar.FieldSeconds); v > 0 && v < s.step {
				c = a.Set(c, calendar.FieldSeconds, 0)
			}
		case Minute:
			if v := a.Get(c, calendar.FieldMinutes); v > 0 && v < s.step {
				c = a.Set(c, calendar.FieldMinutes, 0)
			}
		case Hour:
			if v := a.Get(c, calendar.FieldHours); v > 0 && v < s.step {
				c = a.Set(c, calendar.FieldHours, 0)
			}
		case Weekday, Day:
			if a.Get(c, calendar.FieldDate) < s.step+1 {
				c = a.Set(c, calendar.FieldDate, 1)
			}
		case Week:
			if a.Get(c, calendar.FieldWeek) < s.step {
				c = a.Set(c, calendar.FieldWeek, 1)
			}
		case Month:
			if a.Get(c, calendar.FieldMonth)-1 < s.step {
				c = a.Set(c, calendar.FieldMonth, 1)
			}
		}
	}

	// Dead-man's switch: a step that went nowhere ends the iteration.
	if c.Equal(prev) {
		c = s.end
	}
	s.current = c

	s.switchedDay, s.switchedMonth, s.switchedYear = false, false, false
	s.stepOverHidden(prev)
}

// stepOverHidden moves a cursor that landed in a hidden interval to the
// interval's end and records which calendar boundary the jump crossed.
func (s *Step) stepOverHidden(prev time.Time) {
	if s.hidden == nil {
		return
	}
	a := s.adapter
	cur := a.Millis(s.current)
	hit := s.hidden.IsHidden(cur)
	if !hit.Hidden || !s.current.Before(s.end) || s.current.Equal(prev) {
		return
	}
	next := a.FromMillis(hit.End)
	switch {
	case a.Get(prev, calendar.FieldYear) != a.Get(next, calendar.FieldYear):
		s.switchedYear = true
	case a.Get(prev, calendar.FieldMonth) != a.Get(next, calendar.FieldMonth):
		s.switchedMonth = true
	case a.Get(prev, calendar.FieldYearDay) != a.Get(next, calendar.FieldYearDay):
		s.switchedDay = true
	}
	s.current = next
}

// Current returns the cursor position in ms.
func (s *Step) Current() float64 { return s.adapter.Millis(s.current) }

// IsMajor reports whether the current tick is also a boundary of the next
// coarser unit, or follows a hidden jump across one.
func (s *Step) IsMajor() bool {
	switch {
	case s.switchedYear:
		return true
	case s.switchedMonth:
		return s.scale != Year && s.scale != Month
	case s.switchedDay:
		return s.scale <= Hour
	}

	a, c := s.adapter, s.current
	switch s.scale {
	case Millisecond:
		return a.Get(c, calendar.FieldMilliseconds) == 0
	case Second:
		return a.Get(c, calendar.FieldSeconds) == 0
	case Minute:
		return a.Get(c, calendar.FieldHours) == 0 && a.Get(c, calendar.FieldMinutes) == 0
	case Hour:
		return a.Get(c, calendar.FieldHours) == 0
	case Weekday, Day:
		if s.showWeekScale {
			return a.Get(c, calendar.FieldDay) == int(time.Monday)
		}
		return a.Get(c, calendar.FieldDate) == 1
	case Week:
		return a.Get(c, calendar.FieldDate) == 1
	case Month:
		return a.Get(c, calendar.FieldMonth) == 1
	}
	return false
}

// Snap rounds date to the nearest tick of scale and step, half up.
func Snap(adapter calendar.Adapter, date float64, scale Scale, step int) float64 {
	a := adapter
	c := a.FromMillis(date)
	zero := func(t time.Time, fields ...calendar.Field) time.Time {
		for _, f := range fields {
			t = a.Set(t, f, 0)
		}
		return t
	}
	roundTo := func(v, unit int) int {
		return int(math.Floor(float64(v)/float64(unit)+0.5)) * unit
	}

	switch scale {
	case Year:
		year := a.Get(c, calendar.FieldYear) + roundTo(a.Get(c, calendar.FieldMonth)-1, 12)/12
		c = a.Set(c, calendar.FieldYear, roundTo(year, step))
		c = a.Set(c, calendar.FieldMonth, 1)
		c = a.Set(c, calendar.FieldDate, 1)
		c = zero(c, calendar.FieldHours, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Month:
		if a.Get(c, calendar.FieldDate) > 15 {
			c = a.Set(c, calendar.FieldDate, 1)
			c = a.Add(c, 1, calendar.Month)
		} else {
			c = a.Set(c, calendar.FieldDate, 1)
		}
		c = zero(c, calendar.FieldHours, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Week:
		if a.Get(c, calendar.FieldWeekday) > 2 {
			c = a.Set(c, calendar.FieldWeekday, 0)
			c = a.Add(c, 1, calendar.Week)
		} else {
			c = a.Set(c, calendar.FieldWeekday, 0)
		}
		c = zero(c, calendar.FieldHours, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Day:
		unit := 12
		if step == 2 || step == 5 {
			unit = 24
		}
		c = a.Set(c, calendar.FieldHours, roundTo(a.Get(c, calendar.FieldHours), unit))
		c = zero(c, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Weekday:
		unit := 6
		if step == 2 || step == 5 {
			unit = 12
		}
		c = a.Set(c, calendar.FieldHours, roundTo(a.Get(c, calendar.FieldHours), unit))
		c = zero(c, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Hour:
		unit := 30
		if step == 4 {
			unit = 60
		}
		c = a.Set(c, calendar.FieldMinutes, roundTo(a.Get(c, calendar.FieldMinutes), unit))
		c = zero(c, calendar.FieldSeconds, calendar.FieldMilliseconds)
	case Minute:
		switch step {
		case 15, 10:
			c = a.Set(c, calendar.FieldMinutes, roundTo(a.Get(c, calendar.FieldMinutes), 5))
			c = a.Set(c, calendar.FieldSeconds, 0)
		case 5:
			c = a.Set(c, calendar.FieldSeconds, roundTo(a.Get(c, calendar.FieldSeconds), 60))
		default:
			c = a.Set(c, calendar.FieldSeconds, roundTo(a.Get(c, calendar.FieldSeconds), 30))
		}
		c = a.Set(c, calendar.FieldMilliseconds, 0)
	case Second:
		switch step {
		case 15, 10:
			c = a.Set(c, calendar.FieldSeconds, roundTo(a.Get(c, calendar.FieldSeconds), 5))
			c = a.Set(c, calendar.FieldMilliseconds, 0)
		case 5:
			c = a.Set(c, calendar.FieldMilliseconds, roundTo(a.Get(c, calendar.FieldMilliseconds), 1000))
		default:
			c = a.Set(c, calendar.FieldMilliseconds, roundTo(a.Get(c, calendar.FieldMilliseconds), 500))
		}
	case Millisecond:
		unit := 1
		if step > 5 {
			unit = step / 2
		}
		c = a.Set(c, calendar.FieldMilliseconds, roundTo(a.Get(c, calendar.FieldMilliseconds), unit))
	}
	return a.Millis(c)
}

func floorDiv(a, b int) int {
	return int(math.Floor(float64(a) / float64(b)))
}
