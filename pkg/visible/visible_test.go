package visible

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/variants"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// sampleLog has loops (B->A) and skips (A->C).
func sampleLog() []model.Event {
	paths := map[string][]string{
		"C1": {"A", "B", "C", "Review", "Done"},
		"C2": {"A", "B", "C", "Review", "Done"},
		"C3": {"A", "B", "A", "B", "C", "Done"},
		"C4": {"A", "C", "Review"},
	}
	var events []model.Event
	for _, id := range []string{"C1", "C2", "C3", "C4"} {
		for i, a := range paths[id] {
			events = append(events, model.Event{CaseID: id, Activity: a, Timestamp: base.Add(time.Duration(i) * time.Minute)})
		}
	}
	return events
}

func build(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(sampleLog())
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestByStep(t *testing.T) {
	g := build(t)

	r0 := ByStep(g, 0)
	if len(r0.Edges) != 0 {
		t.Errorf("step 0 edges = %v, want none", r0.Edges.Sorted())
	}
	if !r0.Nodes.Has(graph.StartNodeID) || len(r0.Nodes) != 1 {
		t.Errorf("step 0 nodes = %v, want [START]", r0.Nodes.Sorted())
	}

	// the back edge B->A targets depth 1, so it shows with START->A
	r1 := ByStep(g, 1)
	if !r1.Edges.Has("START__A") || !r1.Edges.Has("B__A") || len(r1.Edges) != 2 {
		t.Errorf("step 1 edges = %v", r1.Edges.Sorted())
	}

	r2 := ByStep(g, 2)
	if !r2.Edges.Has("A__B") || !r2.Edges.Has("A__C") || r2.Edges.Has("C__Review") {
		t.Errorf("step 2 edges = %v", r2.Edges.Sorted())
	}

	all := ByStep(g, graph.MaxDepth(g))
	if len(all.Edges) != len(g.Edges) {
		t.Errorf("max step shows %d of %d edges", len(all.Edges), len(g.Edges))
	}
}

func TestFromExpanded_Nothing(t *testing.T) {
	g := build(t)
	r := FromExpanded(g, graph.NewIDSet())

	if len(r.Edges) != 0 {
		t.Errorf("edges = %v, want none", r.Edges.Sorted())
	}
	if !r.Nodes.Has(graph.StartNodeID) {
		t.Error("START must always be visible")
	}
	if len(r.Stubs) != 1 || r.Stubs[0].EdgeID != "START__A" {
		t.Errorf("stubs = %+v, want one stub START__A", r.Stubs)
	}
}

func TestFromExpanded_Start(t *testing.T) {
	g := build(t)
	r := FromExpanded(g, graph.NewIDSet(graph.StartNodeID))

	if !r.Edges.Has("START__A") || !r.Nodes.Has("A") {
		t.Errorf("expanding START should reveal A: %v", r.Nodes.Sorted())
	}

	// A is visible, not expanded, and has hidden continuations
	stubTargets := graph.NewIDSet()
	for _, s := range r.Stubs {
		if s.Source != "A" {
			t.Errorf("unexpected stub source %s", s.Source)
		}
		stubTargets.Add(s.Target)
	}
	if !stubTargets.Has("B") || !stubTargets.Has("C") {
		t.Errorf("stub targets = %v, want B and C", stubTargets.Sorted())
	}
}

func TestFromExpanded_Terminals(t *testing.T) {
	g := build(t)
	expanded := graph.NewIDSet(graph.StartNodeID, "A", "C", "Review", "Done")
	r := FromExpanded(g, expanded)

	if !r.Terminals.Has("Done") {
		t.Errorf("terminals = %v, want Done", r.Terminals.Sorted())
	}
	if r.Terminals.Has("Review") {
		t.Error("Review has outgoing edges and is not terminal")
	}

	// expanding a terminal changes no edges but keeps it visible
	withDone := FromExpanded(g, graph.NewIDSet("Done"))
	if !withDone.Nodes.Has("Done") || len(withDone.Edges) != 0 {
		t.Errorf("expanding Done: nodes=%v edges=%v", withDone.Nodes.Sorted(), withDone.Edges.Sorted())
	}
}

func TestForVariant(t *testing.T) {
	g := build(t)
	vs := variants.MineTopTraces(sampleLog(), 5)
	top := vs[0]

	r := ForVariant(g, top)
	want := []string{"START__A", "A__B", "B__C", "C__Review", "Review__Done"}
	for _, id := range want {
		if !r.Edges.Has(id) {
			t.Errorf("variant edges missing %s: %v", id, r.Edges.Sorted())
		}
	}
	if len(r.Edges) != len(want) {
		t.Errorf("variant edges = %v", r.Edges.Sorted())
	}
	if len(r.Stubs) != 0 {
		t.Errorf("variant lens should not produce stubs")
	}
	if !r.Terminals.Has("Done") {
		t.Error("Done should be terminal")
	}
}

func TestByStep_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("raising step never hides nodes or edges", prop.ForAll(
		func(shape [][]int, step, extra int) bool {
			var events []model.Event
			for i, acts := range shape {
				for j, a := range acts {
					events = append(events, model.Event{
						CaseID:    fmt.Sprintf("c%d", i),
						Activity:  fmt.Sprintf("a%d", a),
						Timestamp: base.Add(time.Duration(j) * time.Second),
					})
				}
			}
			g, err := graph.Build(events)
			if err != nil {
				return false
			}
			lo := ByStep(g, step)
			hi := ByStep(g, step+extra)
			return hi.Edges.ContainsAll(lo.Edges) && hi.Nodes.ContainsAll(lo.Nodes)
		},
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, 6))),
		gen.IntRange(0, 8),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}
