package variants

import (
	"slices"
	"testing"
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/graph"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func caseEvents(id string, activities ...string) []model.Event {
	out := make([]model.Event, len(activities))
	for i, a := range activities {
		out[i] = model.Event{CaseID: id, Activity: a, Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestMineTopTraces_CollapsesSelfLoops(t *testing.T) {
	var events []model.Event
	events = append(events, caseEvents("1", "A", "B", "C")...)
	events = append(events, caseEvents("2", "A", "B", "C")...)
	events = append(events, caseEvents("3", "A", "B", "C")...)
	events = append(events, caseEvents("4", "A", "B", "B", "C")...)

	vs := MineTopTraces(events, 6)
	if len(vs) != 1 {
		t.Fatalf("len(variants) = %d, want 1", len(vs))
	}
	if !slices.Equal(vs[0].Path, []string{"A", "B", "C"}) {
		t.Errorf("Path = %v, want [A B C]", vs[0].Path)
	}
	if vs[0].Count != 4 {
		t.Errorf("Count = %d, want 4", vs[0].Count)
	}
	if vs[0].Label != "A → B → C" {
		t.Errorf("Label = %q", vs[0].Label)
	}
	if vs[0].ID != "var-0-A>B>C" {
		t.Errorf("ID = %q", vs[0].ID)
	}
}

func TestMineTopTraces_RankingAndTies(t *testing.T) {
	var events []model.Event
	events = append(events, caseEvents("1", "X", "Z")...)
	events = append(events, caseEvents("2", "X", "Y")...)
	events = append(events, caseEvents("3", "A")...)
	events = append(events, caseEvents("4", "A")...)
	events = append(events, caseEvents("5", "A")...)

	vs := MineTopTraces(events, 10)
	if len(vs) != 3 {
		t.Fatalf("len(variants) = %d, want 3", len(vs))
	}
	order := []string{vs[0].Label, vs[1].Label, vs[2].Label}
	want := []string{"A", "X → Y", "X → Z"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	if got := MineTopTraces(events, 0); len(got) != 1 {
		t.Errorf("topN=0 returned %d variants, want 1", len(got))
	}
	if got := MineTopTraces(nil, 5); len(got) != 0 {
		t.Errorf("empty log returned %d variants", len(got))
	}
}

func TestFindShareHappyPath(t *testing.T) {
	var events []model.Event
	events = append(events, caseEvents("1", "A", "B")...)
	events = append(events, caseEvents("2", "A", "B")...)
	events = append(events, caseEvents("3", "A", "C")...)

	vs := MineTopTraces(events, 5)
	top, ok := Find(vs, vs[0].ID)
	if !ok {
		t.Fatal("Find did not find the top variant")
	}
	if _, ok := Find(vs, "nope"); ok {
		t.Error("Find returned an unknown id")
	}

	if s := Share(top, 3); s < 0.66 || s > 0.67 {
		t.Errorf("Share = %v, want 2/3", s)
	}
	if Share(top, 0) != 0 {
		t.Error("Share with zero cases should be 0")
	}

	g, err := graph.Build(events)
	if err != nil {
		t.Fatal(err)
	}
	edges := HappyPathEdges(g, top)
	if !edges.Has("START__A") || !edges.Has("A__B") || edges.Has("A__C") {
		t.Errorf("HappyPathEdges = %v", edges.Sorted())
	}
}
