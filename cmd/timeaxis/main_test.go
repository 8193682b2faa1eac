package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"timeaxis/internal/clock"
	"timeaxis/internal/config"
	"timeaxis/internal/timeline"
	"timeaxis/internal/web"
)

func TestResolveVersion(t *testing.T) {
	cases := []struct {
		name    string
		ldflags string
		info    *debug.BuildInfo
		want    string
	}{
		{"ldflags win", "v1.2.3", &debug.BuildInfo{Main: debug.Module{Version: "v0.0.0"}}, "v1.2.3"},
		{"build info", "dev", &debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}}, "v1.2.3"},
		{"devel", "dev", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "dev"},
		{"nil info", "dev", nil, "dev"},
	}
	for _, c := range cases {
		if got := resolveVersion(c.ldflags, c.info); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("timeaxis %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	if out := run(t, "version"); !strings.HasPrefix(out, "timeaxis version ") {
		t.Fatalf("version output = %q", out)
	}
}

func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Start = "2024-01-01"
	cfg.End = "2024-01-08"
	if mutate != nil {
		mutate(cfg)
	}
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSnapshotCommand(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) {
		c.HiddenDates = config.HiddenDates{{Start: "2024-01-06", End: "2024-01-08", Repeat: "weekly"}}
	})
	out := run(t, "snapshot", "--config", path, "--refresh=false", "--width", "800")

	var snap timeline.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	wantStart := float64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	if snap.Start != wantStart || snap.Width != 800 {
		t.Fatalf("snapshot = %v @%v", snap.Start, snap.Width)
	}
	if len(snap.Hidden) == 0 {
		t.Fatal("weekend should be hidden")
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, nil)
	t.Setenv(config.EnvPath, path)
	out := run(t, "snapshot", "--refresh=false")
	if !strings.Contains(out, `"width": 1000`) {
		t.Fatalf("snapshot did not use %s:\n%s", path, out)
	}
}

func TestApplyConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	loop := clock.NewLoop()
	tl, err := buildTimeline(cfg, loop)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	srv := web.NewServer(cfg, tl, loop, nil)

	next := *cfg
	next.Width = 500
	next.Order = "end"
	next.HiddenDates = config.HiddenDates{{Start: "2024-01-06", End: "2024-01-08", Repeat: "weekly"}}
	if err := applyConfig(ctx, loop, tl, srv, cfg, &next); err != nil {
		t.Fatalf("applyConfig: %v", err)
	}

	var (
		width  float64
		order  string
		hidden int
	)
	if err := loop.Do(ctx, func() {
		width = tl.Range().Width()
		order = tl.Options().Order
		snap, _ := tl.Snapshot()
		hidden = len(snap.Hidden)
	}); err != nil {
		t.Fatal(err)
	}
	if width != 500 || order != "end" || hidden == 0 {
		t.Fatalf("applied width=%v order=%q hidden=%d", width, order, hidden)
	}

	bad := next
	bad.Order = "size"
	if err := applyConfig(ctx, loop, tl, srv, cfg, &bad); err == nil {
		t.Fatal("expected invalid order to be rejected")
	}
}

func TestUnknownRepeatDoesNotBlockStartup(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, func(c *config.Config) {
		c.HiddenDates = config.HiddenDates{
			{Start: "2024-01-03", End: "2024-01-05"},
			{Start: "2024-01-06", End: "2024-01-07", Repeat: "fortnightly"},
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	tl, err := buildTimeline(cfg, clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("buildTimeline: %v", err)
	}
	got := tl.Range().Hidden().Intervals()
	want := float64(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC).UnixMilli())
	if len(got) != 1 || got[0].Start != want {
		t.Fatalf("hidden = %+v, want only the literal Jan 3-5 interval", got)
	}
}

func TestApplyConfigWithUnknownRepeat(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	loop := clock.NewLoop()
	tl, err := buildTimeline(cfg, loop)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	srv := web.NewServer(cfg, tl, loop, nil)

	next := *cfg
	next.Width = 640
	next.HiddenDates = config.HiddenDates{
		{Start: "2024-01-03", End: "2024-01-05"},
		{Start: "2024-01-06", End: "2024-01-07", Repeat: "fortnightly"},
	}
	if err := applyConfig(ctx, loop, tl, srv, cfg, &next); err != nil {
		t.Fatalf("applyConfig: %v", err)
	}

	var (
		width  float64
		hidden int
	)
	if err := loop.Do(ctx, func() {
		width = tl.Range().Width()
		hidden = tl.Range().Hidden().Len()
	}); err != nil {
		t.Fatal(err)
	}
	if width != 640 || hidden != 1 {
		t.Fatalf("reload applied width=%v hidden=%d", width, hidden)
	}
}
