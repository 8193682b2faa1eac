package timerange

import (
	"sort"

	"timeaxis/internal/errs"
)

// EasingFunc maps animation progress in [0, 1] to an easing coefficient.
type EasingFunc func(t float64) float64

const DefaultEasing = "easeInOutQuad"

var easings = map[string]EasingFunc{
	"linear":     func(t float64) float64 { return t },
	"easeInQuad": func(t float64) float64 { return t * t },
	"easeOutQuad": func(t float64) float64 {
		return t * (2 - t)
	},
	"easeInOutQuad": func(t float64) float64 {
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	},
	"easeInCubic": func(t float64) float64 { return t * t * t },
	"easeOutCubic": func(t float64) float64 {
		t--
		return t*t*t + 1
	},
	"easeInOutCubic": func(t float64) float64 {
		if t < 0.5 {
			return 4 * t * t * t
		}
		return (t-1)*(2*t-2)*(2*t-2) + 1
	},
	"easeInQuart": func(t float64) float64 { return t * t * t * t },
	"easeOutQuart": func(t float64) float64 {
		t--
		return 1 - t*t*t*t
	},
	"easeInOutQuart": func(t float64) float64 {
		if t < 0.5 {
			return 8 * t * t * t * t
		}
		t--
		return 1 - 8*t*t*t*t
	},
	"easeInQuint": func(t float64) float64 { return t * t * t * t * t },
	"easeOutQuint": func(t float64) float64 {
		t--
		return 1 + t*t*t*t*t
	},
	"easeInOutQuint": func(t float64) float64 {
		if t < 0.5 {
			return 16 * t * t * t * t * t
		}
		t--
		return 1 + 16*t*t*t*t*t
	},
}

// Easing looks up an easing function by name. An empty name selects
// DefaultEasing.
func Easing(name string) (EasingFunc, error) {
	if name == "" {
		name = DefaultEasing
	}
	f, ok := easings[name]
	if !ok {
		return nil, &errs.UnknownEasingError{Name: name, Choose: EasingNames()}
	}
	return f, nil
}

// EasingNames lists the supported easing functions in sorted order.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for n := range easings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
