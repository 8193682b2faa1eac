package cluster

import (
	"testing"

	"github.com/google/uuid"

	"timeaxis/internal/model"
)

func point(id string, at float64) model.Item {
	return model.Item{ID: id, Start: at}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		scale  float64
		level  int
		window float64
	}{
		{0.5, 8, 256},
		{0.01, 13, 8192},
		{0.02, 12, 4096},
		{1, -1, 0},
		{0, -1, 0},
	}
	for _, c := range cases {
		level, window := Level(c.scale)
		if level != c.level || window != c.window {
			t.Errorf("Level(%v) = %d/%v, want %d/%v", c.scale, level, window, c.level, c.window)
		}
	}
}

func TestClustersDenseNeighbours(t *testing.T) {
	e := NewEngine()
	e.SetItems([]model.Item{point("a", 0), point("b", 100), point("c", 200), point("far", 100000)}, false)

	got := e.Clusters(nil, 0.01, Options{TitleTemplate: "{count} events"})
	if len(got) != 1 {
		t.Fatalf("got %d clusters, want 1", len(got))
	}
	c := got[0]
	if c.Count() != 3 || c.Title != "3 events" {
		t.Fatalf("cluster = %+v", c)
	}
	if c.End != nil || c.Start != 100 || c.Center != 100 {
		t.Fatalf("point cluster should sit at the mean center, got start=%v end=%v", c.Start, c.End)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		t.Fatalf("cluster id %q: %v", c.ID, err)
	}
}

func TestClustersRangedExtent(t *testing.T) {
	e := NewEngine()
	e.SetItems([]model.Item{
		{ID: "r", Start: 0, End: model.Ptr(400.0)},
		point("p", 300),
	}, false)
	got := e.Clusters(nil, 0.01, Options{})
	if len(got) != 1 {
		t.Fatalf("got %d clusters", len(got))
	}
	if got[0].Start != 0 || got[0].End == nil || *got[0].End != 400 {
		t.Fatalf("ranged cluster extent = %v..%v", got[0].Start, got[0].End)
	}
}

func TestNoClustersWhenZoomedIn(t *testing.T) {
	e := NewEngine()
	e.SetItems([]model.Item{point("a", 0), point("b", 1)}, false)
	if got := e.Clusters(nil, 1, Options{}); len(got) != 0 {
		t.Fatalf("got %d clusters at scale 1", len(got))
	}
}

func TestMaxItems(t *testing.T) {
	e := NewEngine()
	e.SetItems([]model.Item{point("a", 0), point("b", 100), point("c", 200)}, false)
	if got := e.Clusters(nil, 0.01, Options{MaxItems: 3}); len(got) != 0 {
		t.Fatalf("window holding maxItems should not cluster, got %d", len(got))
	}
}

func TestClusterIdentityIsStable(t *testing.T) {
	e := NewEngine()
	e.SetItems([]model.Item{point("a", 0), point("b", 100), point("c", 200)}, false)

	first := e.Clusters(nil, 0.01, Options{})
	again := e.Clusters(first, 0.01, Options{})
	if again[0] != first[0] {
		t.Fatal("same level should return the cached cluster")
	}

	e.Invalidate()
	rebuilt := e.Clusters(first, 0.01, Options{})
	if rebuilt[0] != first[0] {
		t.Fatal("rebuilt cluster with the same members should reuse the old value")
	}

	other := e.Clusters(rebuilt, 0.02, Options{})
	if other[0] != first[0] || other[0].ID != first[0].ID {
		t.Fatal("level change with the same members should keep identity")
	}
}

func TestClustersPerGroup(t *testing.T) {
	crit, err := CriteriaByName("group")
	if err != nil {
		t.Fatal(err)
	}
	items := []model.Item{
		{ID: "a1", Start: 0, Group: "a"},
		{ID: "b1", Start: 0, Group: "b"},
		{ID: "a2", Start: 100, Group: "a"},
		{ID: "b2", Start: 100, Group: "b"},
	}
	e := NewEngine()
	e.SetItems(items, false)
	got := e.Clusters(nil, 0.01, Options{Criteria: crit})
	if len(got) != 2 {
		t.Fatalf("got %d clusters, want one per group", len(got))
	}
	for _, c := range got {
		for _, m := range c.Members {
			if m.Group != c.Group {
				t.Fatalf("cluster %s holds %s from group %s", c.Group, m.ID, m.Group)
			}
		}
	}
}

func TestApplyOnChangedLevel(t *testing.T) {
	base := []model.Item{point("a", 0), point("b", 100), point("c", 200)}
	e := NewEngine()
	e.SetItems(base, false)
	if got := e.Clusters(nil, 0.01, Options{}); got[0].Count() != 3 {
		t.Fatalf("count = %d", got[0].Count())
	}

	e.SetItems(append(base, point("d", 300)), true)
	if got := e.Clusters(nil, 0.01, Options{}); got[0].Count() != 3 {
		t.Fatalf("new items applied before the level changed: count = %d", got[0].Count())
	}
	if got := e.Clusters(nil, 0.02, Options{}); got[0].Count() != 4 {
		t.Fatalf("count after level change = %d, want 4", got[0].Count())
	}
}

func TestUnknownCriteria(t *testing.T) {
	if _, err := CriteriaByName("colour"); err == nil {
		t.Fatal("expected error")
	}
	if c, err := CriteriaByName(""); err != nil || c == nil {
		t.Fatal("empty name should mean any")
	}
}
