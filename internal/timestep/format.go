package timestep

import (
	"fmt"
	"strconv"
	"time"

	"timeaxis/internal/calendar"
)

// Special layouts handled outside time.Format.
const (
	LayoutMillis = "millis" // zero padded milliseconds
	LayoutWeek   = "week"   // week of year
)

// Format holds the minor and major label layouts per scale, as Go time
// layouts or one of the special layouts above. An empty layout renders an
// empty label.
type Format struct {
	Minor map[Scale]string
	Major map[Scale]string
}

func DefaultFormat() Format {
	return Format{
		Minor: map[Scale]string{
			Millisecond: LayoutMillis,
			Second:      "5",
			Minute:      "15:04",
			Hour:        "15:04",
			Weekday:     "Mon 2",
			Day:         "2",
			Week:        LayoutWeek,
			Month:       "Jan",
			Year:        "2006",
		},
		Major: map[Scale]string{
			Millisecond: "15:04:05",
			Second:      "2 January 15:04",
			Minute:      "Mon 2 January",
			Hour:        "Mon 2 January",
			Weekday:     "January 2006",
			Day:         "January 2006",
			Week:        "January 2006",
			Month:       "2006",
			Year:        "",
		},
	}
}

func (s *Step) render(t time.Time, layout string) string {
	switch layout {
	case "":
		return ""
	case LayoutMillis:
		return fmt.Sprintf("%03d", s.adapter.Get(t, calendar.FieldMilliseconds))
	case LayoutWeek:
		return strconv.Itoa(s.adapter.Get(t, calendar.FieldWeek))
	}
	return s.adapter.Format(t, layout)
}

// MinorLabel renders the minor label of the current tick.
func (s *Step) MinorLabel() string {
	return s.render(s.current, s.format.Minor[s.scale])
}

// MajorLabel renders the major label of the current tick.
func (s *Step) MajorLabel() string {
	return s.render(s.current, s.format.Major[s.scale])
}

// maxTicks bounds one tick sequence.
const maxTicks = 1000

// Tick is one labelled axis position for the render layer.
type Tick struct {
	Time       float64 `json:"time"`
	X          float64 `json:"x"`
	Width      float64 `json:"width"`
	Label      string  `json:"label"`
	Major      bool    `json:"major"`
	MajorLabel string  `json:"majorLabel,omitempty"`
	// ShowMinor is false when the tick is too narrow next to its
	// predecessor to carry a minor label.
	ShowMinor bool `json:"showMinor"`
}

// Ticks walks the range from First and returns every tick with its pixel
// position from toScreen.
func (s *Step) Ticks(toScreen func(t float64) float64) []Tick {
	s.First()
	var (
		out       []Tick
		prevWidth float64
	)
	for s.HasNext() && len(out) < maxTicks {
		tick := Tick{
			Time:  s.Current(),
			Major: s.IsMajor(),
			Label: s.MinorLabel(),
		}
		if tick.Major {
			tick.MajorLabel = s.MajorLabel()
		}
		tick.X = toScreen(tick.Time)
		s.Next()
		tick.Width = toScreen(s.Current()) - tick.X
		tick.ShowMinor = tick.Width >= prevWidth*0.4
		prevWidth = tick.Width
		out = append(out, tick)
	}
	return out
}
