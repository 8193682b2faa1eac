package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeValue is a point in time as written in the file: RFC3339, a
// YYYY-MM-DD date read in the configured timezone, or epoch milliseconds.
type TimeValue string

// IsZero reports whether the value is unset.
func (v TimeValue) IsZero() bool { return strings.TrimSpace(string(v)) == "" }

// Millis resolves the value to epoch milliseconds.
func (v TimeValue) Millis(loc *time.Location) (float64, error) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return 0, errors.New("empty time value")
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return float64(t.UnixMilli()), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return float64(t.UnixMilli()), nil
	}
	return 0, fmt.Errorf("time %q is neither RFC3339, YYYY-MM-DD nor epoch milliseconds", s)
}

// Duration is a span in milliseconds, written as a Go duration string
// ("1h30m") or a number of milliseconds.
type Duration float64

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*d = Duration(ms)
		return nil
	}
	td, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(float64(td) / float64(time.Millisecond))
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return 0, nil
	}
	return d.Std().String(), nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(float64(d) * float64(time.Millisecond))
}

// Rolling is the rolling_mode key. A bare boolean is the legacy shape.
type Rolling struct {
	Follow bool    `yaml:"follow" json:"follow"`
	Offset float64 `yaml:"offset" json:"offset" validate:"gte=0,lte=1"`
}

func (r *Rolling) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var follow bool
		if err := node.Decode(&follow); err != nil {
			return err
		}
		*r = Rolling{Follow: follow, Offset: 0.5}
		return nil
	}
	type plain Rolling
	p := plain{Offset: 0.5}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rolling(p)
	return nil
}

// HiddenDate is one entry of hidden_dates.
type HiddenDate struct {
	Start  TimeValue `yaml:"start" json:"start" validate:"required"`
	End    TimeValue `yaml:"end" json:"end" validate:"required"`
	Repeat string    `yaml:"repeat,omitempty" json:"repeat,omitempty"`
}

// HiddenDates is the hidden_dates key. A single mapping is the legacy
// shape.
type HiddenDates []HiddenDate

func (h *HiddenDates) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var one HiddenDate
		if err := node.Decode(&one); err != nil {
			return err
		}
		*h = HiddenDates{one}
		return nil
	case yaml.SequenceNode:
		var many []HiddenDate
		if err := node.Decode(&many); err != nil {
			return err
		}
		*h = many
		return nil
	}
	return fmt.Errorf("line %d: hidden_dates must be a mapping or a list", node.Line)
}

// Cluster is the cluster key. A bare boolean is the legacy shape.
type Cluster struct {
	Enabled             bool   `yaml:"enabled" json:"enabled"`
	MaxItems            int    `yaml:"max_items,omitempty" json:"max_items,omitempty" validate:"gte=0"`
	Criteria            string `yaml:"criteria,omitempty" json:"criteria,omitempty" validate:"omitempty,oneof=any group type subgroup"`
	TitleTemplate       string `yaml:"title_template,omitempty" json:"title_template,omitempty"`
	ApplyOnChangedLevel bool   `yaml:"apply_on_changed_level,omitempty" json:"apply_on_changed_level,omitempty"`
}

func (c *Cluster) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var on bool
		if err := node.Decode(&on); err != nil {
			return err
		}
		*c = Cluster{Enabled: on}
		return nil
	}
	type plain Cluster
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Cluster(p)
	return nil
}

// TimeAxis pins the time axis scale.
type TimeAxis struct {
	Scale string `yaml:"scale" json:"scale" validate:"required,oneof=millisecond second minute hour weekday day week month year"`
	Step  int    `yaml:"step" json:"step" validate:"gte=0"`
}
