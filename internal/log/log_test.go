package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"error", "error"},
		{"", "info"},
		{"nonsense", "info"},
	}
	for _, c := range cases {
		if got := parseLevel(c.in).String(); got != c.want {
			t.Errorf("parseLevel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestKeyValueOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelDebug)
	defer SetLevel(LevelInfo)

	Info("range applied", "start", 10, "end", 20)
	Error("pack aborted", errors.New("budget"), "items", 3)
	Debug("odd", "dangling")

	out := buf.String()
	for _, want := range []string{`"message":"range applied"`, `"start":10`, `"end":20`, `"error":"budget"`, `"items":3`, `"message":"odd"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelError)
	defer SetLevel(LevelInfo)

	Info("hidden")
	Warn("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below error level, got %q", buf.String())
	}
}
