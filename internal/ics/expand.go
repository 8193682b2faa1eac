package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
)

const defaultMaxOccurrences = 5000

// Window is the span events are expanded over.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxOccurrences caps one recurring event. Zero means 5000.
	MaxOccurrences int
}

// Expand turns events into timeline items inside w. Recurring events are
// expanded with their EXDATEs removed and RECURRENCE-ID overrides applied.
// Items get the id UID@start-ms, the source group, and the summary as
// content. Events without duration become point items.
func Expand(events []Event, w Window) ([]model.Item, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("expand: window end is before its start")
	}
	if w.MaxOccurrences <= 0 {
		w.MaxOccurrences = defaultMaxOccurrences
	}

	overrides := make(map[string][]Event)
	var bases []Event
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var items []model.Item
	for _, ev := range bases {
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, w) {
				items = append(items, toItem(ev, ev.Start, ev.End))
			}
			continue
		}
		occ, err := expandRecurring(ev, overrides[ev.UID], w)
		if err != nil {
			appLog.Error("ics: recurring event skipped", err, "uid", ev.UID, "rrule", ev.RRule)
			continue
		}
		items = append(items, occ...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start != items[j].Start {
			return items[i].Start < items[j].Start
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func expandRecurring(ev Event, overrides []Event, w Window) ([]model.Item, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE: %w", err)
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	duration := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	// Occurrences starting before the window may still reach into it.
	starts := set.Between(w.Start.Add(-duration).In(loc), w.End.In(loc), true)
	if len(starts) > w.MaxOccurrences {
		appLog.Warn("ics: occurrences truncated", "uid", ev.UID, "cap", w.MaxOccurrences)
		starts = starts[:w.MaxOccurrences]
	}

	items := make([]model.Item, 0, len(starts))
	for _, start := range starts {
		end := start.Add(duration)
		if ev.AllDay {
			end = start.AddDate(0, 0, int(duration.Round(24*time.Hour)/(24*time.Hour)))
		}
		inst := ev
		if o, ok := overrideFor(overrides, start); ok {
			inst, start, end = o, o.Start, o.End
		}
		if overlaps(start, end, w) {
			items = append(items, toItem(inst, start, end))
		}
	}
	return items, nil
}

func overrideFor(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func overlaps(start, end time.Time, w Window) bool {
	return !end.Before(w.Start) && !start.After(w.End)
}

func toItem(ev Event, start, end time.Time) model.Item {
	startMs := float64(start.UnixMilli())
	it := model.Item{
		ID:      fmt.Sprintf("%s@%d", ev.UID, start.UnixMilli()),
		Start:   startMs,
		Group:   ev.Source.GroupName(),
		Type:    "point",
		Content: ev.Summary,
	}
	if end.After(start) {
		it.End = model.Ptr(float64(end.UnixMilli()))
		it.Type = "range"
	}
	return it
}
