package hidden

import (
	"errors"
	"testing"
	"time"

	"timeaxis/internal/calendar"
	"timeaxis/internal/errs"
	"timeaxis/internal/model"
)

func ms(s string) float64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return float64(t.UnixMilli())
}

func literal(a, b float64) model.HiddenSpec { return model.HiddenSpec{Start: a, End: b} }

func TestCoalesce(t *testing.T) {
	cases := []struct {
		name string
		in   []model.HiddenSpec
		want []model.Interval
	}{
		{"overlap", []model.HiddenSpec{literal(0, 10), literal(5, 15)}, []model.Interval{{Start: 0, End: 15}}},
		{"disjoint", []model.HiddenSpec{literal(0, 5), literal(10, 15)}, []model.Interval{{Start: 0, End: 5}, {Start: 10, End: 15}}},
		{"touching", []model.HiddenSpec{literal(0, 5), literal(5, 9)}, []model.Interval{{Start: 0, End: 9}}},
		{"contained", []model.HiddenSpec{literal(0, 20), literal(5, 6)}, []model.Interval{{Start: 0, End: 20}}},
		{"chain", []model.HiddenSpec{literal(10, 15), literal(0, 5), literal(4, 11)}, []model.Interval{{Start: 0, End: 15}}},
		{"unsorted", []model.HiddenSpec{literal(30, 40), literal(0, 5)}, []model.Interval{{Start: 0, End: 5}, {Start: 30, End: 40}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewSet(calendar.UTC())
			if err := s.InsertAll(c.in, Horizon{Start: 0, End: 100}); err != nil {
				t.Fatalf("InsertAll: %v", err)
			}
			got := s.Intervals()
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestDurationQueries(t *testing.T) {
	s := NewSet(calendar.UTC())
	_ = s.InsertAll([]model.HiddenSpec{literal(10, 20), literal(40, 45)}, Horizon{Start: 0, End: 100})

	if hit := s.IsHidden(10); !hit.Hidden || hit.Start != 10 || hit.End != 20 {
		t.Fatalf("IsHidden(10) = %+v", hit)
	}
	if hit := s.IsHidden(20); hit.Hidden {
		t.Fatalf("end of an interval is visible, got %+v", hit)
	}
	if d := s.DurationWithin(0, 100); d != 15 {
		t.Fatalf("DurationWithin = %v, want 15", d)
	}
	if d := s.DurationWithin(15, 100); d != 5 {
		t.Fatalf("DurationWithin partial = %v, want 5", d)
	}
	if d := s.DurationBefore(0, 100, 30); d != 10 {
		t.Fatalf("DurationBefore(30) = %v, want 10", d)
	}
	if d := s.DurationBefore(0, 100, 45); d != 15 {
		t.Fatalf("DurationBefore(45) = %v, want 15", d)
	}
	if d := s.DurationBeforeStart(0, 50); d != 15 {
		t.Fatalf("DurationBeforeStart = %v, want 15", d)
	}
	if d := s.AccumulatedDuration(0, 100, 10); d != 10 {
		t.Fatalf("AccumulatedDuration(10) = %v, want 10", d)
	}
	if d := s.AccumulatedDuration(0, 100, 9); d != 0 {
		t.Fatalf("AccumulatedDuration(9) = %v, want 0", d)
	}
	if d := s.AccumulatedDuration(0, 100, 30); d != 15 {
		t.Fatalf("AccumulatedDuration(30) = %v, want 15", d)
	}
}

func TestSnapAway(t *testing.T) {
	s := NewSet(calendar.UTC())
	_ = s.InsertAll([]model.HiddenSpec{literal(100, 200)}, Horizon{Start: 0, End: 1000})

	cases := []struct {
		t    float64
		dir  int
		soft bool
		want float64
	}{
		{50, 1, false, 50},
		{150, -1, false, 99},
		{150, 1, false, 201},
		{150, -1, true, 100 - 50 - 1},
		{120, 1, true, 200 + 20 + 1},
	}
	for _, c := range cases {
		if got := s.SnapAway(c.t, c.dir, c.soft); got != c.want {
			t.Errorf("SnapAway(%v, %d, %v) = %v, want %v", c.t, c.dir, c.soft, got, c.want)
		}
	}
}

func TestDailyMaterialization(t *testing.T) {
	s := NewSet(calendar.UTC())
	spec := model.HiddenSpec{
		Start:  ms("2024-01-01T22:00:00Z"),
		End:    ms("2024-01-02T06:00:00Z"),
		Repeat: model.RepeatDaily,
	}
	h := Horizon{Start: ms("2024-03-10T00:00:00Z"), End: ms("2024-03-12T00:00:00Z")}
	if err := s.InsertAll([]model.HiddenSpec{spec}, h); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}

	hit := s.IsHidden(ms("2024-03-11T02:00:00Z"))
	if !hit.Hidden || hit.Start != ms("2024-03-10T22:00:00Z") || hit.End != ms("2024-03-11T06:00:00Z") {
		t.Fatalf("night of Mar 10 not hidden as expected: %+v", hit)
	}
	if s.IsHidden(ms("2024-03-11T12:00:00Z")).Hidden {
		t.Fatal("midday should be visible")
	}
	// The occurrence straddling the horizon start is included.
	if !s.IsHidden(ms("2024-03-10T01:00:00Z")).Hidden {
		t.Fatal("night of Mar 9 should be hidden")
	}
}

func TestWeeklyMaterialization(t *testing.T) {
	s := NewSet(calendar.UTC())
	weekend := model.HiddenSpec{
		Start:  ms("2024-01-06T00:00:00Z"), // Saturday
		End:    ms("2024-01-08T00:00:00Z"),
		Repeat: model.RepeatWeekly,
	}
	h := Horizon{Start: ms("2024-05-15T00:00:00Z"), End: ms("2024-05-25T00:00:00Z")}
	if err := s.InsertAll([]model.HiddenSpec{weekend}, h); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	hit := s.IsHidden(ms("2024-05-19T12:00:00Z"))
	if !hit.Hidden || hit.Start != ms("2024-05-18T00:00:00Z") || hit.End != ms("2024-05-20T00:00:00Z") {
		t.Fatalf("weekend of May 18 = %+v", hit)
	}
	if s.IsHidden(ms("2024-05-21T12:00:00Z")).Hidden {
		t.Fatal("Tuesday should be visible")
	}
}

func TestDailyAcrossDaylightSaving(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	a := calendar.NewZoned(ny, time.Sunday)
	at := func(y int, m time.Month, d, h int) float64 {
		return float64(time.Date(y, m, d, h, 0, 0, 0, ny).UnixMilli())
	}
	s := NewSet(a)
	spec := model.HiddenSpec{Start: at(2024, 1, 1, 20), End: at(2024, 1, 2, 8), Repeat: model.RepeatDaily}
	if err := s.InsertAll([]model.HiddenSpec{spec}, Horizon{Start: at(2024, 3, 9, 0), End: at(2024, 3, 12, 0)}); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	// The night of the spring-forward change keeps its local end time.
	hit := s.IsHidden(at(2024, 3, 10, 7))
	if !hit.Hidden || hit.Start != at(2024, 3, 9, 20) || hit.End != at(2024, 3, 10, 8) {
		t.Fatalf("night of Mar 9 = %+v", hit)
	}
	hit = s.IsHidden(at(2024, 3, 11, 7))
	if !hit.Hidden || hit.Start != at(2024, 3, 10, 20) || hit.End != at(2024, 3, 11, 8) {
		t.Fatalf("night of Mar 10 = %+v", hit)
	}
}

func TestPixelGuardSkipsShortTemplates(t *testing.T) {
	s := NewSet(calendar.UTC())
	spec := model.HiddenSpec{Start: ms("2024-01-01T12:00:00Z"), End: ms("2024-01-01T13:00:00Z"), Repeat: model.RepeatDaily}
	// One pixel covers an hour, so a one hour template is too short.
	h := Horizon{Start: ms("2024-02-01T00:00:00Z"), End: ms("2024-03-01T00:00:00Z"), PixelTime: float64(time.Hour / time.Millisecond)}
	if err := s.InsertAll([]model.HiddenSpec{spec}, h); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no intervals, got %d", s.Len())
	}
}

func TestUnknownRepeatIsSkipped(t *testing.T) {
	s := NewSet(calendar.UTC())
	err := s.InsertAll([]model.HiddenSpec{
		{Start: 0, End: 10, Repeat: "hourly"},
		literal(20, 30),
	}, Horizon{Start: 0, End: 100})

	var target *errs.UnknownRepeatKindError
	if !errors.As(err, &target) || target.Repeat != "hourly" {
		t.Fatalf("expected UnknownRepeatKindError, got %v", err)
	}
	if got := s.Intervals(); len(got) != 1 || got[0] != (model.Interval{Start: 20, End: 30}) {
		t.Fatalf("literal spec should survive, got %v", got)
	}
}

func TestMonthlyMaterializationClampsToMonthEnd(t *testing.T) {
	s := NewSet(calendar.UTC())
	spec := model.HiddenSpec{
		Start:  ms("2024-01-31T00:00:00Z"),
		End:    ms("2024-01-31T12:00:00Z"),
		Repeat: model.RepeatMonthly,
	}
	h := Horizon{Start: ms("2024-08-01T00:00:00Z"), End: ms("2024-09-30T00:00:00Z")}
	if err := s.InsertAll([]model.HiddenSpec{spec}, h); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	for _, day := range []string{"2024-07-31", "2024-08-31", "2024-09-30"} {
		hit := s.IsHidden(ms(day + "T06:00:00Z"))
		if !hit.Hidden || hit.Start != ms(day+"T00:00:00Z") || hit.End != ms(day+"T12:00:00Z") {
			t.Errorf("%s = %+v", day, hit)
		}
	}
	if s.IsHidden(ms("2024-09-29T06:00:00Z")).Hidden {
		t.Error("Sep 29 should be visible")
	}

	// February clamps to the 29th in a leap year.
	if err := s.InsertAll([]model.HiddenSpec{spec}, Horizon{Start: ms("2024-02-01T00:00:00Z"), End: ms("2024-03-01T00:00:00Z")}); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	if !s.IsHidden(ms("2024-02-29T06:00:00Z")).Hidden {
		t.Error("Feb 29 should be hidden")
	}
}

func TestYearlyMaterializationClampsLeapDay(t *testing.T) {
	s := NewSet(calendar.UTC())
	spec := model.HiddenSpec{
		Start:  ms("2024-02-29T00:00:00Z"),
		End:    ms("2024-03-01T00:00:00Z"),
		Repeat: model.RepeatYearly,
	}
	h := Horizon{Start: ms("2025-01-01T00:00:00Z"), End: ms("2025-12-31T00:00:00Z")}
	if err := s.InsertAll([]model.HiddenSpec{spec}, h); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	hit := s.IsHidden(ms("2025-02-28T12:00:00Z"))
	if !hit.Hidden || hit.Start != ms("2025-02-28T00:00:00Z") || hit.End != ms("2025-03-01T00:00:00Z") {
		t.Fatalf("Feb 28 2025 = %+v", hit)
	}
	if s.IsHidden(ms("2025-03-01T12:00:00Z")).Hidden {
		t.Fatal("Mar 1 2025 should be visible")
	}
}
