// Package timerange owns the visible time window of a timeline: clamping
// against min/max and zoom bounds, animated transitions, rolling mode, and
// the zoom and pan helpers built on top of SetRange.
package timerange

import (
	"errors"
	"fmt"
	"math"
	"time"

	"timeaxis/internal/calendar"
	"timeaxis/internal/clock"
	"timeaxis/internal/convert"
	"timeaxis/internal/errs"
	"timeaxis/internal/hidden"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
)

const (
	// DefaultZoomMin is the smallest visible duration, in ms.
	DefaultZoomMin = 10
	// DefaultZoomMax is roughly 10000 years, in ms.
	DefaultZoomMax = 315360000000000

	DefaultAnimationDuration = 500 * time.Millisecond
	frameInterval            = 20 * time.Millisecond

	// zoomFloorTolerance lets a request that differs from the current range
	// by half a millisecond keep the current values at the zoom floor.
	zoomFloorTolerance = 0.5
)

// RollingMode keeps the range centered around now.
type RollingMode struct {
	Follow bool
	// Offset is the fraction of the window placed before now. Zero means
	// the default of 0.5.
	Offset float64
}

// Options are the range policy fields.
type Options struct {
	Min     *float64
	Max     *float64
	ZoomMin float64
	ZoomMax float64
	Rolling RollingMode
}

// Animation configures an animated SetRange. A zero Duration means
// DefaultAnimationDuration and an empty Easing means DefaultEasing.
type Animation struct {
	Duration time.Duration
	Easing   string
}

// SetOptions are per-call options for SetRange.
type SetOptions struct {
	Animation *Animation
	ByUser    bool
	// Callback runs once the range has been applied, after the final frame
	// of an animation.
	Callback func()
	// FrameCallback runs after every animation frame.
	FrameCallback func(ease float64, changed, done bool)

	internal bool
}

// Range is the visible [Start, End] window. It is not safe for concurrent
// use; drive it from the goroutine its Scheduler runs callbacks on.
type Range struct {
	start, end float64
	opts       Options
	width      float64

	adapter calendar.Adapter
	sched   clock.Scheduler
	hidden  *hidden.Set

	startToFront bool
	endToFront   bool

	animToken    int
	animTimer    clock.Timer
	rollingTimer clock.Timer

	nextListener int
	listeners    map[int]func(Event)
}

// New creates a range spanning start..end. A nil hidden set is replaced by
// an empty one.
func New(adapter calendar.Adapter, sched clock.Scheduler, hs *hidden.Set, start, end float64, opts Options) (*Range, error) {
	if adapter == nil {
		adapter = calendar.UTC()
	}
	if hs == nil {
		hs = hidden.NewSet(adapter)
	}
	r := &Range{
		start:      start,
		end:        end,
		adapter:    adapter,
		sched:      sched,
		hidden:     hs,
		endToFront: true,
		listeners:  make(map[int]func(Event)),
	}
	norm, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}
	r.opts = norm
	if _, err := r.SetRange(start, end, SetOptions{internal: true}); err != nil {
		return nil, err
	}
	if norm.Rolling.Follow {
		r.StartRolling()
	}
	return r, nil
}

func normalizeOptions(opts Options) (Options, error) {
	if opts.Rolling.Offset < 0 || opts.Rolling.Offset > 1 {
		return opts, fmt.Errorf("rolling offset %v outside [0, 1]", opts.Rolling.Offset)
	}
	if opts.Min != nil && opts.Max != nil && *opts.Max < *opts.Min {
		return opts, errors.New("max must not be before min")
	}
	if opts.ZoomMin == 0 {
		opts.ZoomMin = DefaultZoomMin
	}
	if opts.ZoomMax == 0 {
		opts.ZoomMax = DefaultZoomMax
	}
	return opts, nil
}

// SetOptions replaces the range policy and re-applies the current window
// under it. Rolling mode starts or stops according to opts.Rolling.Follow.
func (r *Range) SetOptions(opts Options) error {
	norm, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	r.opts = norm
	if _, err := r.SetRange(r.start, r.end, SetOptions{internal: true}); err != nil {
		return err
	}
	if norm.Rolling.Follow {
		r.StartRolling()
	} else {
		r.StopRolling()
	}
	return nil
}

func (r *Range) Options() Options { return r.opts }

func (r *Range) Start() float64 { return r.start }
func (r *Range) End() float64   { return r.end }

// Hidden returns the hidden interval set the range keeps materialized.
func (r *Range) Hidden() *hidden.Set { return r.hidden }

// Width is the pixel width the range is displayed at.
func (r *Range) Width() float64 { return r.width }

// SetWidth updates the display width. Repeating hidden specs depend on it
// through the pixel guard, so they are refreshed.
func (r *Range) SetWidth(px float64) {
	if px == r.width {
		return
	}
	r.width = px
	r.refreshHidden()
}

// SetHidden replaces the hidden specs and materializes them for the
// current window. The error reports skipped specs and is not fatal.
func (r *Range) SetHidden(specs []model.HiddenSpec) error {
	err := r.hidden.InsertAll(specs, r.horizon())
	r.snapOutOfHidden()
	return err
}

// Conversion returns the affine time-to-pixel map for a pixel width with
// hiddenDuration compressed away.
func (r *Range) Conversion(width, hiddenDuration float64) convert.Conversion {
	return convert.ConversionFor(r.start, r.end, width, hiddenDuration)
}

// MillisecondsPerPixel returns how much time one pixel covers.
func (r *Range) MillisecondsPerPixel() float64 {
	if r.width == 0 {
		return 0
	}
	return (r.end - r.start) / r.width
}

// ToScreen converts t to a pixel position at the current width.
func (r *Range) ToScreen(t float64) float64 {
	return convert.ToScreen(r.hidden, t, r.start, r.end, r.width)
}

// ToTime converts a pixel position at the current width to a time.
func (r *Range) ToTime(x float64) float64 {
	return convert.ToTime(r.hidden, x, r.start, r.end, r.width)
}

// SetRange moves the window to start..end, clamped by the range policy.
// Without an animation it applies immediately and reports whether the
// window changed. With an animation the first frame is applied now and
// the rest on the scheduler; the result reports whether the target differs
// from the current window. Any in-flight animation is cancelled. A
// non-animated call stops rolling mode.
func (r *Range) SetRange(start, end float64, o SetOptions) (bool, error) {
	if math.IsNaN(start) || math.IsInf(start, 0) {
		return false, &errs.InvalidRangeError{Bound: "start", Value: start}
	}
	if math.IsNaN(end) || math.IsInf(end, 0) {
		return false, &errs.InvalidRangeError{Bound: "end", Value: end}
	}
	r.cancelAnimation()

	if o.Animation == nil {
		if !o.internal {
			r.StopRolling()
		}
		prevStart, prevEnd := r.start, r.end
		if _, err := r.apply(start, end); err != nil {
			return false, err
		}
		r.refreshHidden()
		changed := r.start != prevStart || r.end != prevEnd
		if changed {
			r.emit(RangeChange, o.ByUser)
			r.emit(RangeChanged, o.ByUser)
		}
		if o.Callback != nil {
			o.Callback()
		}
		return changed, nil
	}

	ease, err := Easing(o.Animation.Easing)
	if err != nil {
		return false, err
	}
	if r.sched == nil {
		return false, errors.New("animated range change needs a scheduler")
	}
	duration := o.Animation.Duration
	if duration <= 0 {
		duration = DefaultAnimationDuration
	}
	r.animate(start, end, duration, ease, o)
	return start != r.start || end != r.end, nil
}

func (r *Range) animate(finalStart, finalEnd float64, duration time.Duration, ease EasingFunc, o SetOptions) {
	initStart, initEnd := r.start, r.end
	initTime := r.sched.Now()
	token := r.animToken
	anyChanged := false

	var frame func()
	frame = func() {
		if token != r.animToken {
			return
		}
		r.animTimer = nil
		elapsed := r.sched.Now().Sub(initTime)
		progress := math.Min(float64(elapsed)/float64(duration), 1)
		e := ease(progress)
		done := elapsed > duration

		s, en := finalStart, finalEnd
		if !done {
			s = initStart + (finalStart-initStart)*e
			en = initEnd + (finalEnd-initEnd)*e
		}
		changed, err := r.apply(s, en)
		if err != nil {
			appLog.Error("timerange: animation frame rejected", err)
			return
		}
		r.refreshHidden()
		anyChanged = anyChanged || changed

		if o.FrameCallback != nil {
			o.FrameCallback(e, changed, done)
		}
		if changed {
			r.emit(RangeChange, o.ByUser)
		}
		if done {
			if anyChanged {
				r.emit(RangeChanged, o.ByUser)
			}
			if o.Callback != nil {
				o.Callback()
			}
			return
		}
		r.animTimer = r.sched.AfterFunc(frameInterval, frame)
	}
	frame()
}

func (r *Range) cancelAnimation() {
	r.animToken++
	if r.animTimer != nil {
		r.animTimer.Stop()
		r.animTimer = nil
		appLog.Debug("timerange: animation cancelled")
	}
}

// apply clamps start..end and stores it. It reports whether the stored
// window changed.
func (r *Range) apply(start, end float64) (bool, error) {
	if math.IsNaN(start) {
		return false, &errs.InvalidRangeError{Bound: "start", Value: start}
	}
	if math.IsNaN(end) {
		return false, &errs.InvalidRangeError{Bound: "end", Value: end}
	}
	newStart, newEnd := start, end
	if newEnd < newStart {
		newEnd = newStart
	}

	lo, hi := r.opts.Min, r.opts.Max
	if lo != nil && newStart < *lo {
		diff := *lo - newStart
		newStart += diff
		newEnd += diff
		if hi != nil && newEnd > *hi {
			newEnd = *hi
		}
	}
	if hi != nil && newEnd > *hi {
		diff := newEnd - *hi
		newStart -= diff
		newEnd -= diff
		if lo != nil && newStart < *lo {
			newStart = *lo
		}
	}

	zoomMin := math.Max(r.opts.ZoomMin, 0)
	if newEnd-newStart < zoomMin {
		if r.end-r.start == zoomMin && newStart >= r.start-zoomFloorTolerance && newEnd <= r.end {
			newStart, newEnd = r.start, r.end
		} else {
			diff := zoomMin - (newEnd - newStart)
			newStart -= diff / 2
			newEnd += diff / 2
		}
	}

	zoomMax := math.Max(r.opts.ZoomMax, 0)
	if newEnd-newStart > zoomMax {
		if r.end-r.start == zoomMax && newStart < r.start && newEnd > r.end {
			newStart, newEnd = r.start, r.end
		} else {
			diff := (newEnd - newStart) - zoomMax
			newStart += diff / 2
			newEnd -= diff / 2
		}
	}

	changed := r.start != newStart || r.end != newEnd
	overlaps := (newStart >= r.start && newStart <= r.end) ||
		(newEnd >= r.start && newEnd <= r.end) ||
		(r.start >= newStart && r.start <= newEnd) ||
		(r.end >= newStart && r.end <= newEnd)

	r.start, r.end = newStart, newEnd
	if !overlaps {
		r.emit(CheckRangedItems, false)
	}
	return changed, nil
}

func (r *Range) horizon() hidden.Horizon {
	h := hidden.Horizon{Start: r.start, End: r.end}
	if r.width > 0 {
		h.PixelTime = (r.end - r.start) / r.width
	}
	return h
}

// refreshHidden re-materializes repeating hidden specs for the current
// window and moves a bound that landed inside a hidden interval out of it.
func (r *Range) refreshHidden() {
	// Skipped specs are logged by the hidden set.
	_ = r.hidden.Refresh(r.horizon())
	r.snapOutOfHidden()
}

func (r *Range) snapOutOfHidden() {
	startHit := r.hidden.IsHidden(r.start)
	endHit := r.hidden.IsHidden(r.end)
	if !startHit.Hidden && !endHit.Hidden {
		return
	}
	s, e := r.start, r.end
	if startHit.Hidden {
		if r.startToFront {
			s = startHit.Start - 1
		} else {
			s = startHit.End + 1
		}
	}
	if endHit.Hidden {
		if r.endToFront {
			e = endHit.Start - 1
		} else {
			e = endHit.End + 1
		}
	}
	if _, err := r.apply(s, e); err != nil {
		appLog.Error("timerange: snapping out of hidden interval failed", err)
	}
}

// Zoom scales the window around center (the midpoint when nil) by scale;
// values below 1 zoom in. Hidden time on either side of center is kept on
// that side, and delta gives the zoom direction for snapping bounds out of
// hidden intervals.
func (r *Range) Zoom(scale float64, center *float64, delta int) (bool, error) {
	c := (r.start + r.end) / 2
	if center != nil {
		c = *center
	}
	hiddenDuration := r.hidden.DurationWithin(r.start, r.end)
	before := r.hidden.DurationBefore(r.start, r.end, c)
	after := hiddenDuration - before

	newStart := c - before + (r.start-(c-before))*scale
	newEnd := c + after + (r.end-(c+after))*scale

	r.startToFront = delta <= 0
	r.endToFront = -delta <= 0
	defer func() {
		r.startToFront = false
		r.endToFront = true
	}()

	newStart = r.hidden.SnapAway(newStart, delta, true)
	newEnd = r.hidden.SnapAway(newEnd, -delta, true)
	return r.SetRange(newStart, newEnd, SetOptions{ByUser: true})
}

// Move pans the window by delta times its duration.
func (r *Range) Move(delta float64) (bool, error) {
	diff := r.end - r.start
	return r.SetRange(r.start+diff*delta, r.end+diff*delta, SetOptions{ByUser: true})
}

// MoveTo centers the window on t.
func (r *Range) MoveTo(t float64, o SetOptions) (bool, error) {
	diff := (r.start+r.end)/2 - t
	return r.SetRange(r.start-diff, r.end-diff, o)
}

// Rolling reports whether rolling mode is active.
func (r *Range) Rolling() bool { return r.rollingTimer != nil }

// StartRolling recenters the window on now and keeps doing so on an
// interval between 30ms and 1s derived from the current scale.
func (r *Range) StartRolling() {
	if r.sched == nil {
		return
	}
	r.StopRolling()
	r.roll()
}

func (r *Range) roll() {
	r.rollingTimer = nil
	offset := r.opts.Rolling.Offset
	if offset == 0 {
		offset = 0.5
	}
	now := float64(r.sched.Now().UnixNano()) / float64(time.Millisecond)
	window := r.end - r.start
	if _, err := r.SetRange(now-window*offset, now+window*(1-offset), SetOptions{internal: true}); err != nil {
		appLog.Error("timerange: rolling update failed", err)
	}

	scale := r.Conversion(r.width, 0).Scale
	interval := 1 / scale / 10
	interval = math.Min(math.Max(interval, 30), 1000)
	r.rollingTimer = r.sched.AfterFunc(time.Duration(interval*float64(time.Millisecond)), r.roll)
}

func (r *Range) StopRolling() {
	if r.rollingTimer != nil {
		r.rollingTimer.Stop()
		r.rollingTimer = nil
	}
}
