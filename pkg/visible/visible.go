// Package visible computes which part of a graph is currently shown.
//
// Three policies are supported:
//   - ByStep: depth frontier, an edge is shown when its target is within
//     step BFS layers of START.
//   - FromExpanded: progressive disclosure, an edge is shown when its
//     source has been expanded. Hidden continuations of shown nodes are
//     reported as stubs.
//   - ForVariant: only START and the path of one variant.
package visible

import (
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/variants"
)

// Stub hints that a shown node has an unrevealed outgoing edge.
type Stub struct {
	EdgeID string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Result is the displayed subset of a graph.
type Result struct {
	Nodes     graph.IDSet `json:"visibleNodes"`
	Edges     graph.IDSet `json:"visibleEdges"`
	Stubs     []Stub      `json:"stubs"`
	Terminals graph.IDSet `json:"terminals"`
}

func newResult(roots ...string) Result {
	return Result{
		Nodes:     graph.NewIDSet(roots...),
		Edges:     graph.NewIDSet(),
		Terminals: graph.NewIDSet(),
	}
}

func (r *Result) addEdge(e *graph.Edge) {
	r.Edges.Add(e.ID)
	r.Nodes.Add(e.Source)
	r.Nodes.Add(e.Target)
}

// markTerminals flags shown nodes without outgoing edges in the full graph.
func (r *Result) markTerminals(g *graph.Graph) {
	for id := range r.Nodes {
		if len(g.Adjacency[id]) == 0 {
			r.Terminals.Add(id)
		}
	}
}

// ByStep shows every edge whose target lies within step layers of START.
// Raising step never hides anything.
func ByStep(g *graph.Graph, step int) Result {
	dist := graph.BFSLayers(g, graph.StartNodeID)
	r := newResult(graph.StartNodeID)

	for i := range g.Edges {
		e := &g.Edges[i]
		_, srcOK := dist[e.Source]
		dTgt, tgtOK := dist[e.Target]
		if !srcOK || !tgtOK {
			continue
		}
		if dTgt <= step {
			r.addEdge(e)
		}
	}
	r.markTerminals(g)
	return r
}

// FromExpanded shows the outgoing edges of every expanded node. Roots
// default to START. Stubs are listed in graph node order.
func FromExpanded(g *graph.Graph, expanded graph.IDSet, roots ...string) Result {
	if len(roots) == 0 {
		roots = []string{graph.StartNodeID}
	}
	r := newResult(roots...)

	for src := range expanded {
		if !g.HasNode(src) {
			continue
		}
		// a node without outgoing edges can still be expanded
		r.Nodes.Add(src)
		for _, e := range g.Outgoing(src) {
			r.addEdge(e)
		}
	}

	for _, n := range g.Nodes {
		if !r.Nodes.Has(n.ID) || expanded.Has(n.ID) {
			continue
		}
		for _, e := range g.Outgoing(n.ID) {
			if !r.Edges.Has(e.ID) {
				r.Stubs = append(r.Stubs, Stub{EdgeID: e.ID, Source: e.Source, Target: e.Target})
			}
		}
	}

	r.markTerminals(g)
	return r
}

// ForVariant shows START, the variant's path and the transitions between
// consecutive path steps. It ignores any expanded set.
func ForVariant(g *graph.Graph, v variants.Variant) Result {
	r := newResult(graph.StartNodeID)
	if len(v.Path) == 0 {
		r.markTerminals(g)
		return r
	}

	prev := graph.StartNodeID
	for _, act := range v.Path {
		r.Nodes.Add(act)
		if e, ok := g.Edge(graph.EdgeID(prev, act)); ok {
			r.addEdge(e)
		}
		prev = act
	}

	r.markTerminals(g)
	return r
}
