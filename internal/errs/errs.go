// Package errs holds the typed errors returned by the timeline engine.
package errs

import (
	"fmt"
	"strings"
)

// InvalidRangeError reports a range bound that does not resolve to a finite
// time value.
type InvalidRangeError struct {
	Bound string // "start" or "end"
	Value any
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid %s %v", e.Bound, e.Value)
}

// UnknownRepeatKindError reports a repeating hidden spec whose repeat kind is
// not one of daily, weekly, monthly, yearly.
type UnknownRepeatKindError struct {
	Repeat string
}

func (e *UnknownRepeatKindError) Error() string {
	return fmt.Sprintf("wrong repeat format, allowed are: daily, weekly, monthly, yearly. Given: %q", e.Repeat)
}

// UnknownScaleError reports a stepper scale outside the supported ladder.
type UnknownScaleError struct {
	Scale  string
	Choose []string
}

func (e *UnknownScaleError) Error() string {
	return fmt.Sprintf("unknown scale %q. Choose from: %s", e.Scale, strings.Join(e.Choose, ", "))
}

// UnknownEasingError reports an animation easing function that is not in the
// easing table.
type UnknownEasingError struct {
	Name   string
	Choose []string
}

func (e *UnknownEasingError) Error() string {
	return fmt.Sprintf("unknown easing function %q. Choose from: %s", e.Name, strings.Join(e.Choose, ", "))
}
