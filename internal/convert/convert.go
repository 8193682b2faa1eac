// Package convert maps between time values and horizontal pixel positions
// for a visible range, compressing hidden intervals to zero width.
package convert

import "timeaxis/internal/hidden"

// Hidden is the subset of the hidden interval set the converter consults.
type Hidden interface {
	Len() int
	IsHidden(t float64) hidden.Hit
	DurationWithin(a, b float64) float64
	DurationBefore(refStart, refEnd, t float64) float64
	DurationBeforeStart(t, rangeStart float64) float64
	AccumulatedDuration(rangeStart, rangeEnd, required float64) float64
}

// Conversion is the affine map x = (t - Offset) * Scale.
type Conversion struct {
	Offset float64 `json:"offset"`
	Scale  float64 `json:"scale"`
}

// ConversionFor returns the conversion for a range of the given pixel width
// with hiddenDuration of it compressed away. It degenerates to {0, 1} for a
// zero width or an empty range.
func ConversionFor(start, end, width, hiddenDuration float64) Conversion {
	if width == 0 || end == start {
		return Conversion{Offset: 0, Scale: 1}
	}
	return Conversion{Offset: start, Scale: width / (end - start - hiddenDuration)}
}

// ToScreen returns the pixel position of t. A hidden t is placed at the
// start of its interval. Times before, inside and after the range are
// corrected separately so off-screen items stay consistent while dragging.
func ToScreen(h Hidden, t, rangeStart, rangeEnd, width float64) float64 {
	if h == nil || h.Len() == 0 {
		c := ConversionFor(rangeStart, rangeEnd, width, 0)
		return (t - c.Offset) * c.Scale
	}
	if hit := h.IsHidden(t); hit.Hidden {
		t = hit.Start
	}
	switch {
	case t < rangeStart:
		c := ConversionFor(rangeStart, rangeEnd, width, h.DurationWithin(rangeStart, rangeEnd))
		t += h.DurationBeforeStart(t, c.Offset)
		return -(c.Offset - t) * c.Scale
	case t > rangeEnd:
		return CorrectForHidden(h, t, rangeStart, t, rangeStart, rangeEnd, width)
	default:
		return CorrectForHidden(h, t, rangeStart, rangeEnd, rangeStart, rangeEnd, width)
	}
}

// CorrectForHidden applies the range's conversion to t after removing the
// hidden time inside [refStart, refEnd) that precedes it.
func CorrectForHidden(h Hidden, t, refStart, refEnd, rangeStart, rangeEnd, width float64) float64 {
	c := ConversionFor(rangeStart, rangeEnd, width, h.DurationWithin(rangeStart, rangeEnd))
	t -= h.DurationBefore(refStart, refEnd, t)
	return (t - c.Offset) * c.Scale
}

// ToTime inverts ToScreen: it maps x to a visible duration from the range
// start and adds back the hidden time traversed on the way.
func ToTime(h Hidden, x, rangeStart, rangeEnd, width float64) float64 {
	if h == nil || h.Len() == 0 {
		c := ConversionFor(rangeStart, rangeEnd, width, 0)
		return x/c.Scale + c.Offset
	}
	if width == 0 {
		return rangeStart
	}
	visible := rangeEnd - rangeStart - h.DurationWithin(rangeStart, rangeEnd)
	partial := visible * x / width
	return rangeStart + partial + h.AccumulatedDuration(rangeStart, rangeEnd, partial)
}
