package decouple

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/graph"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type step struct {
	activity, dept, person string
}

func caseOf(id string, steps ...step) []model.Event {
	out := make([]model.Event, len(steps))
	for i, s := range steps {
		out[i] = model.Event{
			CaseID:     id,
			Activity:   s.activity,
			Timestamp:  base.Add(time.Duration(i) * 10 * time.Minute),
			Department: s.dept,
			Resource:   s.person,
		}
	}
	return out
}

func load(t *testing.T, logs ...[]model.Event) (*graph.Graph, []model.Case) {
	t.Helper()
	var events []model.Event
	for _, l := range logs {
		events = append(events, l...)
	}
	g, err := graph.Build(events)
	if err != nil {
		t.Fatal(err)
	}
	return g, model.GroupCases(events)
}

func finLegal(t *testing.T) (*graph.Graph, []model.Case) {
	return load(t,
		caseOf("C1", step{"A", "Fin", "p1"}, step{"B", "Fin", "p2"}, step{"C", "Fin", "p3"}),
		caseOf("C2", step{"A", "Legal", "p4"}, step{"D", "Legal", "p5"}, step{"C", "Legal", "p6"}),
	)
}

func edgeIDs(v View) []string {
	ids := make([]string, len(v.GroupEdges))
	for i, e := range v.GroupEdges {
		ids[i] = e.ID
	}
	return ids
}

func findEdge(v View, id string) (DecoupledEdge, bool) {
	for _, e := range v.GroupEdges {
		if e.ID == id {
			return e, true
		}
	}
	return DecoupledEdge{}, false
}

func TestByDepartmentDownstream(t *testing.T) {
	g, cases := finLegal(t)
	v := ByDepartmentDownstream(g, cases, AtNode("A"))

	if keys := v.GroupKeys(); !slices.Equal(keys, []string{"Fin", "Legal"}) {
		t.Errorf("GroupKeys() = %v, want [Fin Legal]", keys)
	}

	want := []string{"Fin|A__B", "Fin|B__C", "Legal|A__D", "Legal|D__C"}
	got := edgeIDs(v)
	if !slices.Equal(got, want) {
		t.Errorf("group edges = %v, want %v", got, want)
	}

	for _, id := range []string{"A__B", "A__D", "B__C", "D__C"} {
		if !v.ReplacedEdgeIDs.Has(id) {
			t.Errorf("ReplacedEdgeIDs missing %s: %v", id, v.ReplacedEdgeIDs.Sorted())
		}
	}
	if v.ReplacedEdgeIDs.Has("START__A") {
		t.Error("START__A lies before the pivot and must not be replaced")
	}

	e, _ := findEdge(v, "Fin|B__C")
	if e.Source != "B" || e.Target != "C" || e.GroupKey != "Fin" {
		t.Errorf("Fin|B__C = %+v", e)
	}
	if e.Count != 1 || e.MeanMs != float64(10*time.Minute/time.Millisecond) {
		t.Errorf("Fin|B__C count=%d mean=%v", e.Count, e.MeanMs)
	}
}

func TestCompose_Nested(t *testing.T) {
	g, cases := load(t,
		caseOf("C1", step{"A", "Fin", "x"}, step{"B", "Fin", "p1"}, step{"C", "Fin", "p9"}),
		caseOf("C2", step{"A", "Fin", "x"}, step{"B", "Fin", "p2"}, step{"C", "Fin", "p9"}),
	)
	layers := []Layer{
		{Target: AtNode("A"), Selector: attr.Field("department"), Label: "Dept", Mode: Downstream},
		{Target: AtNode("B"), Selector: attr.Field("resource"), Label: "Person", Mode: Downstream},
	}
	v := Compose(g, cases, layers)

	// A->B is before the person pivot; B->C carries both segments
	want := []string{"Dept: Fin|A__B", "Dept: Fin | Person: p1|B__C", "Dept: Fin | Person: p2|B__C"}
	if got := edgeIDs(v); !slices.Equal(got, want) {
		t.Errorf("group edges = %v, want %v", got, want)
	}
	ab, _ := findEdge(v, "Dept: Fin|A__B")
	if ab.Count != 2 {
		t.Errorf("A__B count = %d, want 2", ab.Count)
	}
}

func TestNodeLocal(t *testing.T) {
	g, cases := finLegal(t)
	v := NodeLocalBy(g, cases, AtNode("A"), attr.Field("resource"))

	want := []string{"p1|A__B", "p4|A__D"}
	if got := edgeIDs(v); !slices.Equal(got, want) {
		t.Errorf("group edges = %v, want %v", got, want)
	}
	if v.ReplacedEdgeIDs.Has("B__C") || v.ReplacedEdgeIDs.Has("D__C") {
		t.Errorf("node-local split leaked past one hop: %v", v.ReplacedEdgeIDs.Sorted())
	}
}

func TestNodeLocal_EveryVisit(t *testing.T) {
	g, cases := load(t,
		caseOf("C1", step{"A", "", "p1"}, step{"B", "", ""}, step{"A", "", "p2"}, step{"B", "", ""}),
	)
	v := NodeLocalBy(g, cases, AtNode("A"), attr.Field("resource"))

	want := []string{"p1|A__B", "p2|A__B"}
	if got := edgeIDs(v); !slices.Equal(got, want) {
		t.Errorf("group edges = %v, want %v", got, want)
	}
}

func TestEdgeTarget(t *testing.T) {
	g, cases := load(t,
		caseOf("C1", step{"A", "Fin", "p1"}, step{"B", "Fin", "p2"}, step{"C", "Fin", "p3"}),
		caseOf("C2", step{"A", "Legal", "p4"}, step{"C", "Legal", "p5"}),
	)
	v := ByResourceDownstream(g, cases, AtEdge("A__B"))

	// C2 never takes A->B; C1 splits from A->B onward by the source actor
	want := []string{"p1|A__B", "p1|B__C"}
	if got := edgeIDs(v); !slices.Equal(got, want) {
		t.Errorf("group edges = %v, want %v", got, want)
	}

	local := Compose(g, cases, []Layer{{Target: AtEdge("A__B"), Selector: attr.Field("resource"), Mode: NodeLocal}})
	if got := edgeIDs(local); !slices.Equal(got, []string{"p1|A__B"}) {
		t.Errorf("local edge split = %v", got)
	}
}

func TestUnknownTargetAndDegenerateSplit(t *testing.T) {
	g, cases := finLegal(t)

	if v := ByDepartmentDownstream(g, cases, AtNode("Nope")); !v.Empty() || len(v.ReplacedEdgeIDs) != 0 {
		t.Errorf("unknown node target produced %v", edgeIDs(v))
	}
	if v := ByDepartmentDownstream(g, cases, AtEdge("A__C")); !v.Empty() {
		t.Errorf("unknown edge target produced %v", edgeIDs(v))
	}

	// no attribute anywhere: one "Unknown" group, not an error
	v := ByPathDownstream(g, cases, AtNode("A"), "attributes.amount")
	if keys := v.GroupKeys(); !slices.Equal(keys, []string{attr.Unknown}) {
		t.Errorf("GroupKeys() = %v, want [Unknown]", keys)
	}
	if Offerable(cases, AtNode("A"), attr.Path("attributes.amount")) {
		t.Error("a single-valued split should not be offered")
	}
	if !Offerable(cases, AtNode("A"), attr.Field("department")) {
		t.Error("department at A has two values and should be offered")
	}
}

func TestDistinctValues(t *testing.T) {
	_, cases := finLegal(t)
	got := DistinctValues(cases, AtNode("C"), attr.Field("resource"))
	if !slices.Equal(got, []string{"p3", "p6"}) {
		t.Errorf("DistinctValues = %v, want [p3 p6]", got)
	}
	got = DistinctValues(cases, AtEdge("A__D"), attr.Field("department"))
	if !slices.Equal(got, []string{"Legal"}) {
		t.Errorf("DistinctValues(edge) = %v, want [Legal]", got)
	}
}

func TestCompose_DoesNotMutateGraph(t *testing.T) {
	g, cases := finLegal(t)
	before := fmt.Sprintf("%+v", g.Edges)

	_ = ByResourceDownstream(g, cases, AtNode("A"))

	if after := fmt.Sprintf("%+v", g.Edges); after != before {
		t.Error("Compose modified the base graph")
	}
	ab, _ := g.Edge("A__B")
	if ab.Count != 1 {
		t.Errorf("base A__B count = %d, want 1", ab.Count)
	}
}

func TestCompose_Deterministic(t *testing.T) {
	g, cases := finLegal(t)
	layers := []Layer{
		{Target: AtNode("A"), Selector: attr.Field("department"), Label: "Dept", Mode: Downstream},
		{Target: AtNode("C"), Selector: attr.Field("resource"), Label: "Person", Mode: NodeLocal},
	}
	a := edgeIDs(Compose(g, cases, layers))
	b := edgeIDs(Compose(g, cases, layers))
	if !slices.Equal(a, b) {
		t.Errorf("Compose is not deterministic: %v vs %v", a, b)
	}
}
