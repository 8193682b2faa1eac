package timestep

import "timeaxis/internal/errs"

// Scale is a rung of the tick granularity ladder, finest first.
type Scale int

const (
	Millisecond Scale = iota
	Second
	Minute
	Hour
	Weekday
	Day
	Week
	Month
	Year
)

var scaleNames = [...]string{"millisecond", "second", "minute", "hour", "weekday", "day", "week", "month", "year"}

func (s Scale) String() string {
	if s >= 0 && int(s) < len(scaleNames) {
		return scaleNames[s]
	}
	return "unknown"
}

// ScaleNames lists the ladder from finest to coarsest.
func ScaleNames() []string {
	return append([]string(nil), scaleNames[:]...)
}

// ParseScale resolves a scale name.
func ParseScale(name string) (Scale, error) {
	for i, n := range scaleNames {
		if n == name {
			return Scale(i), nil
		}
	}
	return 0, &errs.UnknownScaleError{Scale: name, Choose: ScaleNames()}
}

// Approximate unit lengths used to pick a scale. These are deliberately not
// calendar exact.
const (
	msSecond = 1000.0
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour
	msMonth  = 30 * msDay
	msYear   = 12 * msMonth
)

type rung struct {
	scale    Scale
	step     int
	duration float64
	weekOnly bool
}

// ladder holds every allowed (scale, step) pair from finest to coarsest.
var ladder = []rung{
	{Millisecond, 1, 1, false},
	{Millisecond, 5, 5, false},
	{Millisecond, 10, 10, false},
	{Millisecond, 50, 50, false},
	{Millisecond, 100, 100, false},
	{Millisecond, 200, 200, false},
	{Second, 1, msSecond, false},
	{Second, 5, 5 * msSecond, false},
	{Second, 10, 10 * msSecond, false},
	{Second, 15, 15 * msSecond, false},
	{Minute, 1, msMinute, false},
	{Minute, 5, 5 * msMinute, false},
	{Minute, 10, 10 * msMinute, false},
	{Minute, 15, 15 * msMinute, false},
	{Hour, 1, msHour, false},
	{Hour, 4, 4 * msHour, false},
	{Weekday, 1, msDay / 2, false},
	{Day, 1, msDay, false},
	{Day, 2, 2 * msDay, false},
	{Week, 1, 7 * msDay, true},
	{Month, 1, msMonth, false},
	{Month, 3, 3 * msMonth, false},
	{Year, 1, msYear, false},
	{Year, 5, 5 * msYear, false},
	{Year, 10, 10 * msYear, false},
	{Year, 50, 50 * msYear, false},
	{Year, 100, 100 * msYear, false},
	{Year, 500, 500 * msYear, false},
	{Year, 1000, 1000 * msYear, false},
}

// ChooseScale returns the finest (scale, step) pair whose approximate
// duration exceeds minimumStep. The week rung is only considered when
// showWeekScale is set. Beyond the coarsest rung it returns year/1000.
func ChooseScale(minimumStep float64, showWeekScale bool) (Scale, int) {
	for _, r := range ladder {
		if r.weekOnly && !showWeekScale {
			continue
		}
		if r.duration > minimumStep {
			return r.scale, r.step
		}
	}
	return Year, 1000
}
