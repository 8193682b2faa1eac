// Package clock is the timer facility the engine schedules animation frames
// and rolling-mode updates on.
//
// All callbacks of one Scheduler run serially: Manual runs them on the
// goroutine calling Advance, Loop runs them on the goroutine calling Run.
// Engine state is therefore only ever touched from one goroutine.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped it, false if it already ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Manual is a deterministic Scheduler driven by Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m    *Manual
	at   time.Time
	seq  int
	f    func()
	done bool
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Pending returns the number of callbacks not yet run or stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every callback that falls
// due in deadline order. Callbacks scheduled by callbacks run too when they
// fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.done = true
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.f()
	}
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

// Loop is a real-time Scheduler whose callbacks are serialized on the
// goroutine running Run. Other goroutines reach engine state through Do.
type Loop struct {
	ch   chan func()
	quit chan struct{}
	once sync.Once
}

func NewLoop() *Loop {
	return &Loop{ch: make(chan func(), 64), quit: make(chan struct{})}
}

func (l *Loop) Now() time.Time { return time.Now() }

// Run executes posted callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.quit) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.ch:
			f()
		}
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	select {
	case l.ch <- func() { defer close(done); f() }:
	case <-l.quit:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.quit:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

type loopTimer struct {
	mu      sync.Mutex
	stopped bool
	t       *time.Timer
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		run := func() {
			lt.mu.Lock()
			stopped := lt.stopped
			lt.stopped = true
			lt.mu.Unlock()
			if !stopped {
				f()
			}
		}
		select {
		case l.ch <- run:
		case <-l.quit:
		}
	})
	return lt
}

func (lt *loopTimer) Stop() bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.stopped {
		return false
	}
	lt.stopped = true
	lt.t.Stop()
	return true
}
