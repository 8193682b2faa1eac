package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"timeaxis/internal/calendar"
	"timeaxis/internal/ics"
	"timeaxis/internal/model"
	"timeaxis/internal/stack"
	"timeaxis/internal/timeline"
	"timeaxis/internal/timerange"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "TIMEAXIS_CONFIG"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
}

// Config is the top-level configuration: the service keys followed by the
// timeline options.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required"`
	// Timezone is the IANA zone the calendar math runs in.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`
	// WeekStart is "monday" (ISO week numbers) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start" validate:"oneof=monday sunday"`
	// RefreshCron is the cron schedule for refetching ICS sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`
	// Width is the pixel width snapshots are laid out at.
	Width float64 `yaml:"width" json:"width" validate:"gt=0"`

	ICS       []ics.Source     `yaml:"ics" json:"ics" validate:"dive"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Start       TimeValue   `yaml:"start,omitempty" json:"start,omitempty"`
	End         TimeValue   `yaml:"end,omitempty" json:"end,omitempty"`
	Min         TimeValue   `yaml:"min,omitempty" json:"min,omitempty"`
	Max         TimeValue   `yaml:"max,omitempty" json:"max,omitempty"`
	ZoomMin     Duration    `yaml:"zoom_min,omitempty" json:"zoom_min,omitempty" validate:"gte=0"`
	ZoomMax     Duration    `yaml:"zoom_max,omitempty" json:"zoom_max,omitempty" validate:"gte=0"`
	Rolling     Rolling     `yaml:"rolling_mode" json:"rolling_mode"`
	HiddenDates HiddenDates `yaml:"hidden_dates,omitempty" json:"hidden_dates,omitempty" validate:"dive"`

	Cluster        Cluster       `yaml:"cluster" json:"cluster"`
	Margin         stack.Margins `yaml:"margin" json:"margin"`
	Stack          bool          `yaml:"stack" json:"stack"`
	StackSubgroups bool          `yaml:"stack_subgroups" json:"stack_subgroups"`
	Order          string        `yaml:"order" json:"order" validate:"oneof=start end"`
	ShowWeekScale  bool          `yaml:"show_week_scale" json:"show_week_scale"`
	TimeAxis       *TimeAxis     `yaml:"time_axis,omitempty" json:"time_axis,omitempty"`
	PackBudget     Duration      `yaml:"pack_budget,omitempty" json:"pack_budget,omitempty" validate:"gte=0"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	layout := timeline.DefaultOptions()
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "UTC",
		WeekStart:      "monday",
		RefreshCron:    "*/15 * * * *",
		Width:          1000,
		ICS:            []ics.Source{},
		Rolling:        Rolling{Offset: 0.5},
		Margin:         layout.Margins,
		Stack:          layout.Stack,
		StackSubgroups: layout.StackSubgroups,
		Order:          layout.Order,
	}
}

// Normalize fills in missing values so partially filled or older files
// still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	c.WeekStart = strings.ToLower(c.WeekStart)
	if c.WeekStart != "sunday" {
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Order == "" {
		c.Order = def.Order
	}
	if c.ICS == nil {
		c.ICS = []ics.Source{}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints, the timezone and the refresh schedule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Adapter returns the calendar the engine computes in.
func (c *Config) Adapter() (*calendar.Zoned, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	weekStart := time.Monday
	if c.WeekStart == "sunday" {
		weekStart = time.Sunday
	}
	return calendar.NewZoned(loc, weekStart), nil
}

// Window returns the initial range. A missing start is the start of the
// current day and a missing end is one week after the start.
func (c *Config) Window(a *calendar.Zoned) (start, end float64, err error) {
	if c.Start.IsZero() {
		start = a.Millis(a.StartOf(a.Now(), calendar.Day))
	} else if start, err = c.Start.Millis(a.Loc); err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	if c.End.IsZero() {
		end = a.Millis(a.Add(a.FromMillis(start), 1, calendar.Week))
	} else if end, err = c.End.Millis(a.Loc); err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

// RangeOptions returns the range policy.
func (c *Config) RangeOptions(loc *time.Location) (timerange.Options, error) {
	opts := timerange.Options{
		ZoomMin: float64(c.ZoomMin),
		ZoomMax: float64(c.ZoomMax),
		Rolling: timerange.RollingMode{Follow: c.Rolling.Follow, Offset: c.Rolling.Offset},
	}
	if !c.Min.IsZero() {
		ms, err := c.Min.Millis(loc)
		if err != nil {
			return opts, fmt.Errorf("min: %w", err)
		}
		opts.Min = model.Ptr(ms)
	}
	if !c.Max.IsZero() {
		ms, err := c.Max.Millis(loc)
		if err != nil {
			return opts, fmt.Errorf("max: %w", err)
		}
		opts.Max = model.Ptr(ms)
	}
	return opts, nil
}

// HiddenSpecs resolves hidden_dates. Repeat kinds are passed through
// unchecked; the hidden set reports and skips unknown ones.
func (c *Config) HiddenSpecs(loc *time.Location) ([]model.HiddenSpec, error) {
	specs := make([]model.HiddenSpec, 0, len(c.HiddenDates))
	for i, hd := range c.HiddenDates {
		start, err := hd.Start.Millis(loc)
		if err != nil {
			return nil, fmt.Errorf("hidden_dates[%d].start: %w", i, err)
		}
		end, err := hd.End.Millis(loc)
		if err != nil {
			return nil, fmt.Errorf("hidden_dates[%d].end: %w", i, err)
		}
		specs = append(specs, model.HiddenSpec{Start: start, End: end, Repeat: model.Repeat(strings.ToLower(hd.Repeat))})
	}
	return specs, nil
}

// TimelineOptions returns the layout options.
func (c *Config) TimelineOptions() timeline.Options {
	opts := timeline.DefaultOptions()
	opts.Margins = c.Margin
	opts.Stack = c.Stack
	opts.StackSubgroups = c.StackSubgroups
	opts.Order = c.Order
	opts.ShowWeekScale = c.ShowWeekScale
	opts.PackBudget = c.PackBudget.Std()
	if c.TimeAxis != nil {
		opts.TimeAxis = &timeline.TimeAxis{Scale: c.TimeAxis.Scale, Step: c.TimeAxis.Step}
	}
	if c.Cluster.Enabled {
		opts.Cluster = &timeline.ClusterOptions{
			MaxItems:            c.Cluster.MaxItems,
			Criteria:            c.Cluster.Criteria,
			TitleTemplate:       c.Cluster.TitleTemplate,
			ApplyOnChangedLevel: c.Cluster.ApplyOnChangedLevel,
		}
	}
	return opts
}

// Path returns the config path from TIMEAXIS_CONFIG, or def.
func Path(def string) string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return def
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is decoded over the defaults, legacy shapes are
//     normalized, and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The
// directory is created 0700 and the file ends up 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timeaxis-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
