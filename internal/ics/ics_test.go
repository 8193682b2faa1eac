package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//timeaxis//test//EN
BEGIN:VEVENT
UID:standup
DTSTART:20240101T090000Z
DTEND:20240101T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240103T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup
RECURRENCE-ID:20240104T090000Z
DTSTART:20240104T100000Z
DTEND:20240104T103000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTART;VALUE=DATE:20240102
DTEND;VALUE=DATE:20240103
SUMMARY:Holiday
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

func TestParseAndExpand(t *testing.T) {
	src := Source{ID: "team", URL: "https://example.com/team.ics"}
	events, err := Parse(src, crlf(feed), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("parsed %d events, want 3", len(events))
	}

	items, err := Expand(events, Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []struct {
		start   time.Time
		content string
	}{
		{time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), "Standup"},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "Holiday"},
		{time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), "Standup"},
		{time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC), "Standup (moved)"},
		{time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), "Standup"},
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d: %+v", len(items), len(want), items)
	}
	for i, w := range want {
		it := items[i]
		if it.Start != float64(w.start.UnixMilli()) || it.Content != w.content {
			t.Errorf("item %d = %s at %v, want %s at %v", i, it.Content, time.UnixMilli(int64(it.Start)).UTC(), w.content, w.start)
		}
		if it.Group != "team" || !it.IsRanged() {
			t.Errorf("item %d: group %q ranged %v", i, it.Group, it.IsRanged())
		}
	}
	if d := *items[1].End - items[1].Start; d != float64(24*time.Hour/time.Millisecond) {
		t.Errorf("all-day item lasts %vms", d)
	}
}

func TestExpandRejectsInvertedWindow(t *testing.T) {
	now := time.Now()
	if _, err := Expand(nil, Window{Start: now, End: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetchUsesETag(t *testing.T) {
	var hits, notModified atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(feed))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	src := Source{ID: "team", URL: srv.URL + "/team.ics"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, src)
	if err != nil || first.FromCache {
		t.Fatalf("first fetch: cache=%v err=%v", first.FromCache, err)
	}
	second, err := f.Fetch(ctx, src)
	if err != nil || !second.FromCache || string(second.Body) != string(first.Body) {
		t.Fatalf("second fetch: cache=%v err=%v", second.FromCache, err)
	}
	if notModified.Load() != 1 {
		t.Fatalf("conditional request not sent")
	}

	fail.Store(true)
	third, err := f.Fetch(ctx, src)
	if err != nil || !third.FromCache {
		t.Fatalf("failed fetch should fall back to cache: cache=%v err=%v", third.FromCache, err)
	}

	other := Source{ID: "other", URL: srv.URL + "/other.ics"}
	results, err := f.FetchAll(ctx, []Source{src, other})
	if err == nil || !strings.Contains(err.Error(), "other") {
		t.Fatalf("expected joined error naming the failed source, got %v", err)
	}
	if len(results) != 1 || results[0].Source.ID != "team" {
		t.Fatalf("results = %+v", results)
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/private/cal.ics?token=abc": "https://example.com/...(redacted)",
		"not a url": "ics://...(redacted)",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceGroupName(t *testing.T) {
	if g := (Source{ID: "a"}).GroupName(); g != "a" {
		t.Fatalf("group = %q", g)
	}
	if g := (Source{ID: "a", Group: "work"}).GroupName(); g != "work" {
		t.Fatalf("group = %q", g)
	}
}
