package timerange

import "timeaxis/internal/calendar"

// EventKind names a range notification.
type EventKind string

const (
	// RangeChange fires on every applied change, including each animation
	// frame that moved the window.
	RangeChange EventKind = "rangechange"
	// RangeChanged fires once a change is complete.
	RangeChanged EventKind = "rangechanged"
	// CheckRangedItems fires when the new window does not overlap the old
	// one at all, so visible items need a full rescan.
	CheckRangedItems EventKind = "checkRangedItems"
)

// Event is delivered synchronously to subscribers before the call that
// caused it returns.
type Event struct {
	Kind   EventKind
	Start  float64
	End    float64
	ByUser bool
}

// Subscribe registers fn for range events and returns a function that
// removes it.
func (r *Range) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	return func() { delete(r.listeners, id) }
}

func (r *Range) emit(kind EventKind, byUser bool) {
	ev := Event{Kind: kind, Start: r.start, End: r.end, ByUser: byUser}
	for id := 0; id < r.nextListener; id++ {
		if fn, ok := r.listeners[id]; ok {
			fn(ev)
		}
	}
}

// Adapter returns the calendar adapter the range was created with.
func (r *Range) Adapter() calendar.Adapter { return r.adapter }
