// Package calendar is the calendar adapter the engine delegates all
// calendar-aware arithmetic to. The engine itself only sees epoch
// milliseconds; anything involving months, weekdays, daylight saving or
// formatting goes through an Adapter.
package calendar

import (
	"fmt"
	"math"
	"time"
)

// Unit is a calendar unit for Add, Diff and IsSame.
type Unit int

const (
	Millisecond Unit = iota
	Second
	Minute
	Hour
	Day
	Week
	Month
	Year
)

var unitNames = [...]string{"millisecond", "second", "minute", "hour", "day", "week", "month", "year"}

func (u Unit) String() string {
	if int(u) < len(unitNames) {
		return unitNames[u]
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// Field is a calendar component readable with Get and writable with Set.
type Field int

const (
	FieldYear Field = iota
	FieldMonth        // 1..12
	FieldDate         // day of month, 1..31
	FieldHours        // 0..23
	FieldMinutes      // 0..59
	FieldSeconds      // 0..59
	FieldMilliseconds // 0..999
	FieldDay          // day of week, Sunday = 0
	FieldWeekday      // day of week relative to the configured week start, 0..6
	FieldWeek         // week of year
	FieldYearDay      // 1..366
)

// Adapter exposes the calendar capability set the engine consumes.
// Setters roll a value past its range into the next larger unit (date 32
// of January is February 1st), except FieldYear and FieldMonth, which keep
// the day of month and clamp it to the target month's last day.
type Adapter interface {
	Now() time.Time
	FromMillis(ms float64) time.Time
	Millis(t time.Time) float64
	Get(t time.Time, f Field) int
	Set(t time.Time, f Field, v int) time.Time
	Add(t time.Time, n int, u Unit) time.Time
	Subtract(t time.Time, n int, u Unit) time.Time
	Diff(a, b time.Time, u Unit) int
	IsSame(a, b time.Time, u Unit) bool
	Format(t time.Time, layout string) string
}

// Zoned is the default Adapter: wall-clock arithmetic in one location.
type Zoned struct {
	Loc       *time.Location
	WeekStart time.Weekday
	Clock     func() time.Time
}

// NewZoned returns an adapter for loc (UTC when nil) with weeks starting on
// weekStart.
func NewZoned(loc *time.Location, weekStart time.Weekday) *Zoned {
	if loc == nil {
		loc = time.UTC
	}
	return &Zoned{Loc: loc, WeekStart: weekStart, Clock: time.Now}
}

// UTC is a Monday-start adapter in UTC.
func UTC() *Zoned { return NewZoned(time.UTC, time.Monday) }

func (z *Zoned) Now() time.Time {
	if z.Clock == nil {
		return time.Now().In(z.Loc)
	}
	return z.Clock().In(z.Loc)
}

func (z *Zoned) FromMillis(ms float64) time.Time {
	whole := math.Floor(ms)
	frac := ms - whole
	return time.UnixMilli(int64(whole)).Add(time.Duration(frac * float64(time.Millisecond))).In(z.Loc)
}

func (z *Zoned) Millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func (z *Zoned) Get(t time.Time, f Field) int {
	t = t.In(z.Loc)
	switch f {
	case FieldYear:
		return t.Year()
	case FieldMonth:
		return int(t.Month())
	case FieldDate:
		return t.Day()
	case FieldHours:
		return t.Hour()
	case FieldMinutes:
		return t.Minute()
	case FieldSeconds:
		return t.Second()
	case FieldMilliseconds:
		return t.Nanosecond() / int(time.Millisecond)
	case FieldDay:
		return int(t.Weekday())
	case FieldWeekday:
		return (int(t.Weekday()) - int(z.WeekStart) + 7) % 7
	case FieldWeek:
		return z.week(t)
	case FieldYearDay:
		return t.YearDay()
	}
	return 0
}

func (z *Zoned) Set(t time.Time, f Field, v int) time.Time {
	t = t.In(z.Loc)
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	ms := t.Nanosecond() / int(time.Millisecond)
	switch f {
	case FieldYear:
		// Feb 29 in a non-leap year clamps like month arithmetic does.
		return clampDate(v, int(mo), d, h, mi, s, ms, z.Loc)
	case FieldMonth:
		return clampDate(y, v, d, h, mi, s, ms, z.Loc)
	case FieldDate:
		d = v
	case FieldHours:
		h = v
	case FieldMinutes:
		mi = v
	case FieldSeconds:
		s = v
	case FieldMilliseconds:
		ms = v
	case FieldDay:
		return z.Add(t, v-int(t.Weekday()), Day)
	case FieldWeekday:
		return z.Add(t, v-z.Get(t, FieldWeekday), Day)
	case FieldWeek:
		return z.Add(t, v-z.week(t), Week)
	case FieldYearDay:
		return z.Add(t, v-t.YearDay(), Day)
	}
	return time.Date(y, mo, d, h, mi, s, ms*int(time.Millisecond), z.Loc)
}

func (z *Zoned) Add(t time.Time, n int, u Unit) time.Time {
	t = t.In(z.Loc)
	switch u {
	case Millisecond:
		return t.Add(time.Duration(n) * time.Millisecond)
	case Second:
		return t.Add(time.Duration(n) * time.Second)
	case Minute:
		return t.Add(time.Duration(n) * time.Minute)
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n)
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		y, mo, d := t.Date()
		h, mi, s := t.Clock()
		return clampDate(y, int(mo)+n, d, h, mi, s, t.Nanosecond()/int(time.Millisecond), z.Loc)
	case Year:
		y, mo, d := t.Date()
		h, mi, s := t.Clock()
		return clampDate(y+n, int(mo), d, h, mi, s, t.Nanosecond()/int(time.Millisecond), z.Loc)
	}
	return t
}

func (z *Zoned) Subtract(t time.Time, n int, u Unit) time.Time {
	return z.Add(t, -n, u)
}

// Diff returns the whole number of units from b to a, truncated toward zero.
func (z *Zoned) Diff(a, b time.Time, u Unit) int {
	a, b = a.In(z.Loc), b.In(z.Loc)
	switch u {
	case Millisecond:
		return int(a.Sub(b) / time.Millisecond)
	case Second:
		return int(a.Sub(b) / time.Second)
	case Minute:
		return int(a.Sub(b) / time.Minute)
	case Hour:
		return int(a.Sub(b) / time.Hour)
	case Day, Week:
		days := 0
		if !a.Before(b) {
			for !z.Add(b, days+1, Day).After(a) {
				days++
			}
		} else {
			for !z.Add(b, days-1, Day).Before(a) {
				days--
			}
		}
		if u == Week {
			return days / 7
		}
		return days
	case Month, Year:
		months := (a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month())
		if months > 0 && z.Add(b, months, Month).After(a) {
			months--
		} else if months < 0 && z.Add(b, months, Month).Before(a) {
			months++
		}
		if u == Year {
			return months / 12
		}
		return months
	}
	return 0
}

// IsSame reports whether a and b fall in the same unit (same hour, same
// day, same week, ...).
func (z *Zoned) IsSame(a, b time.Time, u Unit) bool {
	return z.StartOf(a, u).Equal(z.StartOf(b, u))
}

// StartOf floors t to the start of its unit.
func (z *Zoned) StartOf(t time.Time, u Unit) time.Time {
	t = t.In(z.Loc)
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	ms := t.Nanosecond() / int(time.Millisecond)
	switch u {
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, z.Loc)
	case Month:
		return time.Date(y, mo, 1, 0, 0, 0, 0, z.Loc)
	case Week:
		day := time.Date(y, mo, d, 0, 0, 0, 0, z.Loc)
		return z.Add(day, -z.Get(day, FieldWeekday), Day)
	case Day:
		return time.Date(y, mo, d, 0, 0, 0, 0, z.Loc)
	case Hour:
		return time.Date(y, mo, d, h, 0, 0, 0, z.Loc)
	case Minute:
		return time.Date(y, mo, d, h, mi, 0, 0, z.Loc)
	case Second:
		return time.Date(y, mo, d, h, mi, s, 0, z.Loc)
	}
	return time.Date(y, mo, d, h, mi, s, ms*int(time.Millisecond), z.Loc)
}

func (z *Zoned) Format(t time.Time, layout string) string {
	return t.In(z.Loc).Format(layout)
}

// week numbers weeks ISO-style for Monday starts, and US-style (the week
// holding January 1st is week 1) otherwise.
func (z *Zoned) week(t time.Time) int {
	if z.WeekStart == time.Monday {
		_, w := t.ISOWeek()
		return w
	}
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, z.Loc)
	lead := (int(jan1.Weekday()) - int(z.WeekStart) + 7) % 7
	return (t.YearDay()-1+lead)/7 + 1
}

// clampDate builds a date, clamping the day to the last day of the target
// month instead of rolling over (Jan 31 + 1 month = Feb 28/29).
func clampDate(y, mo, d, h, mi, s, ms int, loc *time.Location) time.Time {
	first := time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, h, mi, s, ms*int(time.Millisecond), loc)
}
