// Package decouple splits aggregate edges into parallel, attribute-keyed
// edges, so that a "100 cases" transition can be shown as "60 via clerk A,
// 40 via clerk B".
//
// A Layer names a pivot (a node, or a transition given by edge id), a
// Selector and a propagation Mode:
//
//   - Downstream: the value is fixed at the first occurrence of the pivot
//     in each case and keys every later transition of that case.
//   - NodeLocal: only the transitions leaving the pivot are split, each
//     keyed by the value at its own source event.
//
// Several layers compose: a transition's group key joins the
// "{label}: {value}" segments of every layer that applies to it, in layer
// order. Views are always recomputed from scratch from the full layer list;
// the base Graph is never modified.
package decouple

import (
	"strings"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/graph"
)

// TargetKind says whether a pivot is a node or a transition.
type TargetKind string

const (
	NodeTarget TargetKind = "node"
	EdgeTarget TargetKind = "edge"
)

// Target is the pivot of a layer.
type Target struct {
	Kind TargetKind `json:"type"`
	ID   string     `json:"id"`
}

// AtNode pivots on the first occurrence of an activity.
func AtNode(id string) Target { return Target{Kind: NodeTarget, ID: id} }

// AtEdge pivots on the first occurrence of a transition, by edge id.
func AtEdge(id string) Target { return Target{Kind: EdgeTarget, ID: id} }

// PivotNode is the node a target hangs off: the node itself, or the
// source of an edge target.
func (t Target) PivotNode() string {
	if t.Kind == EdgeTarget {
		src, _, _ := strings.Cut(t.ID, "__")
		return src
	}
	return t.ID
}

func (t Target) endpoints() (string, string) {
	src, tgt, _ := strings.Cut(t.ID, "__")
	return src, tgt
}

// exists reports whether the target is part of g.
func (t Target) exists(g *graph.Graph) bool {
	if t.Kind == EdgeTarget {
		_, ok := g.Edge(t.ID)
		return ok
	}
	return g.HasNode(t.ID)
}

// Mode is how far a layer's value propagates.
type Mode string

const (
	Downstream Mode = "downstream"
	NodeLocal  Mode = "local"
)

// Layer is one splitting dimension.
type Layer struct {
	Target   Target        `json:"target"`
	Selector attr.Selector `json:"path"`
	Label    string        `json:"label"`
	Mode     Mode          `json:"mode"`
}

// SameAs reports whether two layers split the same target by the same path.
func (l Layer) SameAs(o Layer) bool {
	return l.Target == o.Target && l.Selector.Equal(o.Selector)
}

func (l Layer) segment(value string) string {
	if l.Label == "" {
		return value
	}
	return l.Label + ": " + value
}

// DecoupledEdge is a base edge restricted to one group.
type DecoupledEdge struct {
	graph.Edge
	GroupKey string `json:"groupKey"`
}

// View is the derived result of applying a layer list.
type View struct {
	GroupEdges      []DecoupledEdge `json:"groupEdges"`
	ReplacedEdgeIDs graph.IDSet     `json:"replacedEdgeIds"`
}

// Empty reports whether the view replaces nothing.
func (v View) Empty() bool {
	return len(v.GroupEdges) == 0
}

// GroupKeys returns the distinct group keys of the view, sorted.
func (v View) GroupKeys() []string {
	keys := graph.NewIDSet()
	for _, e := range v.GroupEdges {
		keys.Add(e.GroupKey)
	}
	return keys.Sorted()
}

// Compose applies layers, in order, to every case. Layers whose target is
// not in g contribute nothing.
func Compose(g *graph.Graph, cases []model.Case, layers []Layer) View {
	active := make([]Layer, 0, len(layers))
	for _, l := range layers {
		if l.Target.exists(g) {
			active = append(active, l)
		}
	}

	acc := newAccumulator()
	if len(active) == 0 {
		return acc.finish()
	}

	pivots := make([]pivot, len(active))
	parts := make([]string, 0, len(active))

	for _, c := range cases {
		evs := c.Events
		if len(evs) < 2 {
			continue
		}

		for li, l := range active {
			pivots[li] = findPivot(evs, l)
		}

		for j := 0; j < len(evs)-1; j++ {
			parts = parts[:0]
			for li, l := range active {
				if v, ok := applies(evs, j, l, pivots[li]); ok {
					parts = append(parts, l.segment(v))
				}
			}
			if len(parts) == 0 {
				continue
			}
			acc.add(strings.Join(parts, " | "), graph.NewTraversal(c.ID, evs[j], evs[j+1]), evs[j].Activity, evs[j+1].Activity)
		}
	}

	return acc.finish()
}

// pivot is where a downstream layer takes effect within one case.
type pivot struct {
	index int // transition index, -1 when the case never reaches the target
	value string
}

func findPivot(evs []model.Event, l Layer) pivot {
	if l.Mode == NodeLocal {
		return pivot{index: -1}
	}
	for i := range evs {
		if matches(evs, i, l.Target) {
			return pivot{index: i, value: l.Selector.Select(evs[i])}
		}
	}
	return pivot{index: -1}
}

// matches reports whether event i is the target node, or transition
// i -> i+1 is the target edge.
func matches(evs []model.Event, i int, t Target) bool {
	if t.Kind == EdgeTarget {
		src, tgt := t.endpoints()
		return i+1 < len(evs) && evs[i].Activity == src && evs[i+1].Activity == tgt
	}
	return evs[i].Activity == t.ID
}

// applies returns the layer's value for transition j, if the layer covers it.
func applies(evs []model.Event, j int, l Layer, p pivot) (string, bool) {
	if l.Mode == NodeLocal {
		if matches(evs, j, l.Target) {
			return l.Selector.Select(evs[j]), true
		}
		return "", false
	}
	if p.index >= 0 && p.index <= j {
		return p.value, true
	}
	return "", false
}

type accumulator struct {
	edges    []DecoupledEdge
	index    map[string]int
	replaced graph.IDSet
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int), replaced: graph.NewIDSet()}
}

func (a *accumulator) add(groupKey string, t graph.Traversal, source, target string) {
	baseID := graph.EdgeID(source, target)
	a.replaced.Add(baseID)

	id := groupKey + "|" + baseID
	i, ok := a.index[id]
	if !ok {
		i = len(a.edges)
		a.index[id] = i
		a.edges = append(a.edges, DecoupledEdge{
			Edge:     graph.Edge{ID: id, Source: source, Target: target},
			GroupKey: groupKey,
		})
	}
	a.edges[i].Traversals = append(a.edges[i].Traversals, t)
}

func (a *accumulator) finish() View {
	for i := range a.edges {
		a.edges[i].Recompute()
	}
	return View{GroupEdges: a.edges, ReplacedEdgeIDs: a.replaced}
}

// --- single-layer helpers ---

// DownstreamBy splits everything from the first occurrence of target
// onward, keyed by the bare selected value.
func DownstreamBy(g *graph.Graph, cases []model.Case, target Target, sel attr.Selector) View {
	return Compose(g, cases, []Layer{{Target: target, Selector: sel, Mode: Downstream}})
}

// ByDepartmentDownstream splits downstream of target by department.
func ByDepartmentDownstream(g *graph.Graph, cases []model.Case, target Target) View {
	return DownstreamBy(g, cases, target, attr.Field("department"))
}

// ByResourceDownstream splits downstream of target by resource.
func ByResourceDownstream(g *graph.Graph, cases []model.Case, target Target) View {
	return DownstreamBy(g, cases, target, attr.Field("resource"))
}

// ByPathDownstream splits downstream of target by a dotted attribute path.
func ByPathDownstream(g *graph.Graph, cases []model.Case, target Target, path string) View {
	return DownstreamBy(g, cases, target, attr.Path(path))
}

// NodeLocalBy splits only the transitions leaving target.
func NodeLocalBy(g *graph.Graph, cases []model.Case, target Target, sel attr.Selector) View {
	return Compose(g, cases, []Layer{{Target: target, Selector: sel, Mode: NodeLocal}})
}

// DistinctValues lists the sorted values sel takes at every occurrence of
// target. Callers offer a split only when there are at least two.
func DistinctValues(cases []model.Case, target Target, sel attr.Selector) []string {
	seen := graph.NewIDSet()
	for _, c := range cases {
		for i := range c.Events {
			if matches(c.Events, i, target) {
				seen.Add(sel.Select(c.Events[i]))
			}
		}
	}
	return seen.Sorted()
}

// Offerable reports whether splitting target by sel yields at least two groups.
func Offerable(cases []model.Case, target Target, sel attr.Selector) bool {
	return len(DistinctValues(cases, target, sel)) >= 2
}
