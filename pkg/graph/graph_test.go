package graph

import (
	"testing"
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func at(mins int) time.Time {
	return base.Add(time.Duration(mins) * time.Minute)
}

func ev(caseID, activity string, mins int, resource, department string) model.Event {
	return model.Event{CaseID: caseID, Activity: activity, Timestamp: at(mins), Resource: resource, Department: department}
}

// Three cases crossing A->B in 10, 20 and 30 minutes.
func statsLog() []model.Event {
	return []model.Event{
		ev("A", "A", 0, "r1", "Fin"),
		ev("A", "B", 10, "r1", "Fin"),
		ev("B", "A", 0, "r2", "Fin"),
		ev("B", "B", 20, "r2", "Fin"),
		ev("C", "A", 0, "r1", "Legal"),
		ev("C", "B", 30, "r1", "Legal"),
	}
}

func mustBuild(t *testing.T, events []model.Event) *Graph {
	t.Helper()
	g, err := Build(events)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return g
}

func TestBuild_Empty(t *testing.T) {
	g := mustBuild(t, nil)
	if len(g.Nodes) != 1 || g.Nodes[0].ID != StartNodeID {
		t.Errorf("Nodes = %v, want only START", g.Nodes)
	}
	if len(g.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(g.Edges))
	}
}

func TestBuild_StatsEnrichment(t *testing.T) {
	g := mustBuild(t, statsLog())

	e, ok := g.Edge("A__B")
	if !ok {
		t.Fatal("edge A__B missing")
	}
	if e.Count != 3 || len(e.Traversals) != 3 {
		t.Errorf("Count = %d, traversals = %d, want 3/3", e.Count, len(e.Traversals))
	}
	if e.MeanMs != 1_200_000 || e.MedianMs != 1_200_000 || e.P90Ms != 1_800_000 {
		t.Errorf("mean/median/p90 = %v/%d/%d", e.MeanMs, e.MedianMs, e.P90Ms)
	}
	if e.MinMs != 600_000 || e.MaxMs != 1_800_000 {
		t.Errorf("min/max = %d/%d", e.MinMs, e.MaxMs)
	}
	if e.UniqueResources != 2 {
		t.Errorf("UniqueResources = %d, want 2", e.UniqueResources)
	}
	if e.UniqueDepartments != 2 {
		t.Errorf("UniqueDepartments = %d, want 2", e.UniqueDepartments)
	}
}

func TestBuild_StartEdges(t *testing.T) {
	g := mustBuild(t, statsLog())

	start, ok := g.Edge(EdgeID(StartNodeID, "A"))
	if !ok {
		t.Fatal("START__A missing")
	}
	if start.Count != 3 {
		t.Errorf("START__A count = %d, want 3", start.Count)
	}
	for _, tr := range start.Traversals {
		if tr.DurationMs != 0 {
			t.Errorf("START traversal duration = %d, want 0", tr.DurationMs)
		}
	}
}

func TestBuild_SelfLoopAndIndexes(t *testing.T) {
	events := []model.Event{
		ev("1", "A", 0, "", ""),
		ev("1", "B", 1, "", ""),
		ev("1", "B", 2, "", ""),
		ev("1", "C", 3, "", ""),
		ev("2", "A", 0, "", ""),
		ev("2", "B", 5, "", ""),
		ev("2", "C", 6, "", ""),
	}
	g := mustBuild(t, events)

	if _, ok := g.Edge("B__B"); !ok {
		t.Error("self-loop B__B should be a real edge")
	}

	if got := g.Adjacency["B"]; len(got) != 2 {
		t.Errorf("Adjacency[B] = %v, want [B C]", got)
	}
	if got := g.Reverse["C"]; len(got) != 1 || got[0] != "B" {
		t.Errorf("Reverse[C] = %v, want [B]", got)
	}

	// adjacency is exactly the edge set
	n := 0
	for src, targets := range g.Adjacency {
		for _, tgt := range targets {
			n++
			if _, ok := g.Edge(EdgeID(src, tgt)); !ok {
				t.Errorf("adjacency %s->%s has no edge", src, tgt)
			}
		}
	}
	if n != len(g.Edges) {
		t.Errorf("adjacency size = %d, edges = %d", n, len(g.Edges))
	}
}

func TestBuild_UnsortedInput(t *testing.T) {
	events := []model.Event{
		ev("1", "C", 20, "", ""),
		ev("1", "A", 0, "", ""),
		ev("1", "B", 10, "", ""),
	}
	g := mustBuild(t, events)
	e, ok := g.Edge("A__B")
	if !ok {
		t.Fatal("A__B missing after sort")
	}
	if e.Traversals[0].DurationMs != 600_000 {
		t.Errorf("duration = %d, want 600000", e.Traversals[0].DurationMs)
	}
	if _, ok := g.Edge("C__A"); ok {
		t.Error("unsorted input produced C__A")
	}
}

func TestBuild_Malformed(t *testing.T) {
	_, err := Build([]model.Event{{CaseID: "1", Timestamp: at(0)}})
	if !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("Build() error = %v, want missing field", err)
	}
}

func TestBFSLayers(t *testing.T) {
	events := []model.Event{
		ev("1", "A", 0, "", ""),
		ev("1", "B", 1, "", ""),
		ev("1", "C", 2, "", ""),
		ev("2", "A", 0, "", ""),
		ev("2", "C", 1, "", ""),
	}
	g := mustBuild(t, events)
	dist := BFSLayers(g, StartNodeID)

	want := map[string]int{StartNodeID: 0, "A": 1, "B": 2, "C": 2}
	for id, d := range want {
		if dist[id] != d {
			t.Errorf("dist[%s] = %d, want %d", id, dist[id], d)
		}
	}

	fromB := BFSLayers(g, "B")
	if _, ok := fromB["A"]; ok {
		t.Error("A should be unreached from B")
	}
	if MaxDepth(g) != 2 {
		t.Errorf("MaxDepth = %d, want 2", MaxDepth(g))
	}

	down := Downstream(g, "B")
	if !down.Has("B") || !down.Has("C") || down.Has("A") {
		t.Errorf("Downstream(B) = %v", down.Sorted())
	}
}

func TestComputeLayout(t *testing.T) {
	events := []model.Event{
		ev("1", "A", 0, "", ""),
		ev("1", "C", 1, "", ""),
		ev("2", "B", 0, "", ""),
	}
	g := mustBuild(t, events)
	pos := ComputeLayout(g, []string{StartNodeID}, DefaultSpacing)

	// layer 1 holds A and B (widest = 2); START is centred over them
	if pos["A"].X != 80 || pos["B"].X != 300 {
		t.Errorf("layer 1 x = %v/%v, want 80/300", pos["A"].X, pos["B"].X)
	}
	if pos[StartNodeID].X != 190 || pos[StartNodeID].Y != 60 {
		t.Errorf("START = %+v, want {190 60}", pos[StartNodeID])
	}
	if pos["C"].Y != 340 {
		t.Errorf("C.y = %v, want 340", pos["C"].Y)
	}
}

func TestNodeVisits(t *testing.T) {
	events := []model.Event{
		ev("1", "A", 0, "", ""),
		ev("1", "B", 1, "", ""),
		ev("1", "A", 2, "", ""),
		ev("1", "B", 3, "", ""),
		ev("2", "A", 0, "", ""),
		ev("2", "B", 9, "", ""),
	}
	g := mustBuild(t, events)

	visits := NodeVisits(g, "B", 10)
	if len(visits) != 2 {
		t.Fatalf("len(visits) = %d, want 2", len(visits))
	}
	if visits[0].CaseID != "1" || visits[0].Count != 2 || !visits[0].Latest.Equal(at(3)) {
		t.Errorf("visits[0] = %+v", visits[0])
	}
	if got := NodeVisits(g, "B", 1); len(got) != 1 {
		t.Errorf("limit ignored: %d visits", len(got))
	}

	if got := EdgeTraversals(g, "A__B", 2); len(got) != 2 {
		t.Errorf("EdgeTraversals limit = %d, want 2", len(got))
	}
	if got := EdgeTraversals(g, "X__Y", 2); got != nil {
		t.Errorf("EdgeTraversals unknown = %v, want nil", got)
	}
}
