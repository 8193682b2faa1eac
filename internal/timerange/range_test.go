package timerange

import (
	"errors"
	"math"
	"testing"
	"time"

	"timeaxis/internal/calendar"
	"timeaxis/internal/clock"
	"timeaxis/internal/errs"
	"timeaxis/internal/model"
)

func newRange(t *testing.T, start, end float64, opts Options) (*Range, *clock.Manual) {
	t.Helper()
	m := clock.NewManual(time.UnixMilli(1_000_000))
	r, err := New(calendar.UTC(), m, nil, start, end, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, m
}

func assertRange(t *testing.T, r *Range, start, end float64) {
	t.Helper()
	if r.Start() != start || r.End() != end {
		t.Fatalf("range = [%v, %v], want [%v, %v]", r.Start(), r.End(), start, end)
	}
}

func TestClampingIdempotence(t *testing.T) {
	opts := Options{Min: model.Ptr(0), Max: model.Ptr(10000), ZoomMin: 100, ZoomMax: 5000}
	r, _ := newRange(t, 0, 1000, opts)

	for _, c := range [][2]float64{{0, 100}, {0, 5000}, {5000, 10000}, {1234, 4321}, {9900, 10000}} {
		changed, err := r.SetRange(c[0], c[1], SetOptions{})
		if err != nil {
			t.Fatalf("SetRange(%v): %v", c, err)
		}
		assertRange(t, r, c[0], c[1])
		changed, _ = r.SetRange(c[0], c[1], SetOptions{})
		if changed {
			t.Fatalf("re-applying %v reported a change", c)
		}
	}
}

func TestClamping(t *testing.T) {
	cases := []struct {
		name       string
		opts       Options
		start, end float64
		want       [2]float64
	}{
		{"min shifts both", Options{Min: model.Ptr(0), Max: model.Ptr(10000)}, -500, 500, [2]float64{0, 1000}},
		{"max shifts both", Options{Min: model.Ptr(0), Max: model.Ptr(10000)}, 9500, 10500, [2]float64{9000, 10000}},
		{"both bounds", Options{Min: model.Ptr(0), Max: model.Ptr(10000)}, -100, 20000, [2]float64{0, 10000}},
		{"end before start", Options{ZoomMin: 100}, 500, 100, [2]float64{450, 550}},
		{"zoom max", Options{Min: model.Ptr(0), Max: model.Ptr(10000), ZoomMax: 5000}, 0, 10000, [2]float64{2500, 7500}},
		{"zoom min", Options{ZoomMin: 1000}, 400, 600, [2]float64{0, 1000}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, _ := newRange(t, 3000, 3300, c.opts)
			if _, err := r.SetRange(c.start, c.end, SetOptions{}); err != nil {
				t.Fatalf("SetRange: %v", err)
			}
			assertRange(t, r, c.want[0], c.want[1])
		})
	}
}

func TestZoomFloorStability(t *testing.T) {
	r, _ := newRange(t, 0, 2000, Options{ZoomMin: 1000})

	if _, err := r.Zoom(0.1, nil, 1); err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	assertRange(t, r, 500, 1500)

	changed, err := r.Zoom(0.1, nil, 1)
	if err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	if changed {
		t.Fatal("zooming at the floor should not change the range")
	}
	assertRange(t, r, 500, 1500)
}

func TestInvalidRange(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	_, err := r.SetRange(math.NaN(), 10, SetOptions{})
	var ire *errs.InvalidRangeError
	if !errors.As(err, &ire) || ire.Bound != "start" {
		t.Fatalf("expected InvalidRangeError for start, got %v", err)
	}
	assertRange(t, r, 0, 1000)
}

func TestUnknownEasing(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	_, err := r.SetRange(0, 2000, SetOptions{Animation: &Animation{Easing: "bounce"}})
	var uee *errs.UnknownEasingError
	if !errors.As(err, &uee) {
		t.Fatalf("expected UnknownEasingError, got %v", err)
	}
	found := false
	for _, n := range uee.Choose {
		found = found || n == "linear"
	}
	if !found {
		t.Fatalf("choices should list linear: %v", uee.Choose)
	}
}

func TestAnimation(t *testing.T) {
	r, m := newRange(t, 0, 1000, Options{})
	var kinds []EventKind
	r.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	var eases []float64
	finished := 0
	_, err := r.SetRange(1000, 2000, SetOptions{
		Animation:     &Animation{Duration: 100 * time.Millisecond, Easing: "linear"},
		FrameCallback: func(ease float64, changed, done bool) { eases = append(eases, ease) },
		Callback:      func() { finished++ },
	})
	if err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if len(eases) != 1 || eases[0] != 0 {
		t.Fatalf("first frame runs synchronously at ease 0, got %v", eases)
	}

	m.Advance(20 * time.Millisecond)
	if math.Abs(r.Start()-200) > 1e-9 || math.Abs(r.End()-1200) > 1e-9 {
		t.Fatalf("after 20ms range = [%v, %v]", r.Start(), r.End())
	}

	m.Advance(200 * time.Millisecond)
	assertRange(t, r, 1000, 2000)
	if finished != 1 {
		t.Fatalf("callback ran %d times", finished)
	}
	if kinds[len(kinds)-1] != RangeChanged {
		t.Fatalf("last event = %v, want rangechanged", kinds[len(kinds)-1])
	}
	changedCount := 0
	for _, k := range kinds {
		if k == RangeChanged {
			changedCount++
		}
	}
	if changedCount != 1 {
		t.Fatalf("rangechanged fired %d times", changedCount)
	}
	if m.Pending() != 0 {
		t.Fatalf("frames still scheduled: %d", m.Pending())
	}
}

func TestAnimationCancelledByNewSetRange(t *testing.T) {
	r, m := newRange(t, 0, 1000, Options{})
	finished := false
	_, _ = r.SetRange(10000, 11000, SetOptions{
		Animation: &Animation{Duration: 500 * time.Millisecond},
		Callback:  func() { finished = true },
	})
	m.Advance(40 * time.Millisecond)

	if _, err := r.SetRange(0, 500, SetOptions{}); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	m.Advance(time.Second)
	assertRange(t, r, 0, 500)
	if finished {
		t.Fatal("cancelled animation completed")
	}
	if m.Pending() != 0 {
		t.Fatalf("stale frames scheduled: %d", m.Pending())
	}
}

func TestCheckRangedItems(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	checks := 0
	r.Subscribe(func(ev Event) {
		if ev.Kind == CheckRangedItems {
			checks++
		}
	})
	_, _ = r.SetRange(500, 1500, SetOptions{})
	if checks != 0 {
		t.Fatal("overlapping move should not request a rescan")
	}
	_, _ = r.SetRange(5000, 6000, SetOptions{})
	if checks != 1 {
		t.Fatalf("disjoint move requested %d rescans, want 1", checks)
	}
}

func TestUnsubscribe(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	n := 0
	stop := r.Subscribe(func(Event) { n++ })
	_, _ = r.SetRange(0, 2000, SetOptions{})
	stop()
	_, _ = r.SetRange(0, 3000, SetOptions{})
	if n != 2 {
		t.Fatalf("events seen = %d, want 2 (change + changed)", n)
	}
}

func TestRolling(t *testing.T) {
	r, m := newRange(t, 0, 1000, Options{Rolling: RollingMode{Follow: true, Offset: 0.25}})
	if !r.Rolling() {
		t.Fatal("rolling should be active")
	}
	assertRange(t, r, 1_000_000-250, 1_000_000+750)

	m.Advance(30 * time.Millisecond)
	assertRange(t, r, 1_000_030-250, 1_000_030+750)

	if _, err := r.SetRange(0, 1000, SetOptions{ByUser: true}); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if r.Rolling() {
		t.Fatal("explicit SetRange should stop rolling")
	}
	m.Advance(time.Second)
	assertRange(t, r, 0, 1000)
}

func TestMoveAndMoveTo(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	if _, err := r.Move(0.5); err != nil {
		t.Fatalf("Move: %v", err)
	}
	assertRange(t, r, 500, 1500)
	if _, err := r.MoveTo(0, SetOptions{}); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	assertRange(t, r, -500, 500)
}

func TestZoomKeepsHiddenTimeOnItsSide(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	if err := r.SetHidden([]model.HiddenSpec{{Start: 400, End: 600}}); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	center := 700.0
	if _, err := r.Zoom(0.5, &center, -1); err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	assertRange(t, r, 250, 850)
}

func TestBoundsSnapOutOfHidden(t *testing.T) {
	r, _ := newRange(t, 0, 5000, Options{})
	if err := r.SetHidden([]model.HiddenSpec{{Start: 1000, End: 2000}}); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	_, _ = r.SetRange(1500, 3000, SetOptions{})
	assertRange(t, r, 2001, 3000)

	_, _ = r.SetRange(0, 1500, SetOptions{})
	assertRange(t, r, 0, 999)
}

func TestSnapBackToSameWindowIsNoChange(t *testing.T) {
	r, _ := newRange(t, 0, 5000, Options{})
	if err := r.SetHidden([]model.HiddenSpec{{Start: 1000, End: 2000}}); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	_, _ = r.SetRange(1500, 3000, SetOptions{})
	assertRange(t, r, 2001, 3000)

	var events []EventKind
	r.Subscribe(func(e Event) { events = append(events, e.Kind) })
	changed, err := r.SetRange(1500, 3000, SetOptions{})
	if err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	assertRange(t, r, 2001, 3000)
	if changed {
		t.Error("window ended where it started but reported a change")
	}
	for _, k := range events {
		if k == RangeChange || k == RangeChanged {
			t.Fatalf("unexpected %s event", k)
		}
	}
}

func TestConversion(t *testing.T) {
	r, _ := newRange(t, 0, 1000, Options{})
	if c := r.Conversion(500, 0); c.Offset != 0 || c.Scale != 0.5 {
		t.Fatalf("Conversion = %+v", c)
	}
	r.SetWidth(500)
	if got := r.MillisecondsPerPixel(); got != 2 {
		t.Fatalf("MillisecondsPerPixel = %v", got)
	}
	if x := r.ToScreen(500); x != 250 {
		t.Fatalf("ToScreen = %v", x)
	}
}
