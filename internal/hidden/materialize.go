package hidden

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"timeaxis/internal/calendar"
	"timeaxis/internal/errs"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
)

// maxOccurrencesPerSpec caps one template's expansion when the pixel guard
// is disabled and the horizon is huge.
const maxOccurrencesPerSpec = 5000

// materialize expands one repeating spec across the horizon. The template's
// start is aligned onto the horizon start, moved one period back so that an
// occurrence straddling the horizon start is included, and then repeated by
// the period until one occurrence past the horizon end. Daily and weekly
// series come from rrule; monthly and yearly ones step by calendar unit.
func (s *Set) materialize(spec model.HiddenSpec, h Horizon) ([]model.Interval, error) {
	if h.PixelTime > 0 && spec.End-spec.Start < 4*h.PixelTime {
		return nil, nil
	}

	a := s.adapter
	ts := a.FromMillis(spec.Start)
	te := a.FromMillis(spec.End)
	rs := a.FromMillis(h.Start)
	re := a.FromMillis(h.End)

	// Each occurrence ends on the template's end wall-clock time, the same
	// number of calendar days after its start, across daylight saving changes.
	spanDays := a.Diff(midnight(a, te), midnight(a, ts), calendar.Day)

	var (
		first time.Time
		until time.Time
		freq  rrule.Frequency

		starts []time.Time
	)
	switch spec.Repeat {
	case model.RepeatDaily:
		first = a.Subtract(onDateOf(a, ts, rs), 7, calendar.Day)
		until = a.Add(re, 1, calendar.Week)
		freq = rrule.DAILY
	case model.RepeatWeekly:
		first = a.Set(onDateOf(a, ts, rs), calendar.FieldDay, a.Get(ts, calendar.FieldDay))
		first = a.Subtract(first, 1, calendar.Week)
		until = a.Add(re, 1, calendar.Week)
		freq = rrule.WEEKLY
	case model.RepeatMonthly:
		months := (a.Get(rs, calendar.FieldYear)-a.Get(ts, calendar.FieldYear))*12 +
			a.Get(rs, calendar.FieldMonth) - a.Get(ts, calendar.FieldMonth)
		starts = unitSeries(a, ts, months-1, a.Add(re, 1, calendar.Month), calendar.Month)
	case model.RepeatYearly:
		years := a.Get(rs, calendar.FieldYear) - a.Get(ts, calendar.FieldYear)
		starts = unitSeries(a, ts, years-1, a.Add(re, 1, calendar.Year), calendar.Year)
	default:
		return nil, &errs.UnknownRepeatKindError{Repeat: string(spec.Repeat)}
	}

	if starts == nil {
		var err error
		if starts, err = occurrences(freq, first, until); err != nil {
			return nil, err
		}
	}

	out := make([]model.Interval, 0, len(starts))
	for _, st := range starts {
		en := onDateOf(a, te, a.Add(st, spanDays, calendar.Day))
		out = append(out, model.Interval{Start: a.Millis(st), End: a.Millis(en)})
	}
	return out, nil
}

// occurrences lists the series starting at first up to (excluding) until,
// plus the one occurrence after it.
func occurrences(freq rrule.Frequency, first, until time.Time) ([]time.Time, error) {
	// rrule works at second precision; carry the sub-second part separately.
	frac := first.Sub(first.Truncate(time.Second))
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Dtstart: first.Truncate(time.Second),
	})
	if err != nil {
		return nil, err
	}

	var out []time.Time
	last := time.Time{}
	for _, t := range r.Between(first.Truncate(time.Second), until, true) {
		t = t.Add(frac)
		if !t.Before(until) {
			break
		}
		out = append(out, t)
		last = t
		if len(out) >= maxOccurrencesPerSpec {
			appLog.Error("hidden: occurrences truncated", errors.New("max occurrences reached"),
				"freq", int(freq), "cap", maxOccurrencesPerSpec)
			return out, nil
		}
	}
	if last.IsZero() {
		last = first
		out = append(out, first)
	}
	if next := r.After(last.Add(-frac), false); !next.IsZero() {
		out = append(out, next.Add(frac))
	}
	return out, nil
}

// unitSeries adds n, n+1, ... months or years to the template start until
// one occurrence reaches until. Each step counts from the template, so a
// day missing from a shorter month or year clamps to its last day instead
// of being skipped.
func unitSeries(a calendar.Adapter, ts time.Time, n int, until time.Time, u calendar.Unit) []time.Time {
	var out []time.Time
	for ; ; n++ {
		t := a.Add(ts, n, u)
		out = append(out, t)
		if !t.Before(until) {
			return out
		}
		if len(out) >= maxOccurrencesPerSpec {
			appLog.Error("hidden: occurrences truncated", errors.New("max occurrences reached"),
				"unit", u.String(), "cap", maxOccurrencesPerSpec)
			return out
		}
	}
}

// onDateOf returns the calendar date of day at the wall-clock time of clock.
func onDateOf(a calendar.Adapter, clock, day time.Time) time.Time {
	t := a.Set(clock, calendar.FieldYear, a.Get(day, calendar.FieldYear))
	t = a.Set(t, calendar.FieldMonth, 1)
	t = a.Set(t, calendar.FieldDate, 1)
	t = a.Set(t, calendar.FieldMonth, a.Get(day, calendar.FieldMonth))
	return a.Set(t, calendar.FieldDate, a.Get(day, calendar.FieldDate))
}

func midnight(a calendar.Adapter, t time.Time) time.Time {
	for _, f := range []calendar.Field{calendar.FieldHours, calendar.FieldMinutes, calendar.FieldSeconds, calendar.FieldMilliseconds} {
		t = a.Set(t, f, 0)
	}
	return t
}
