// Package graph builds a directly-follows graph from an event log.
//
// Nodes are activities plus the synthetic START node. Edges are observed,
// directly-consecutive activity pairs, enriched with per-case traversal
// detail and duration statistics:
//
//	START -> first activity of every case (duration 0)
//	a -> b for every consecutive pair (a, b) in a case
//
// A Graph is immutable once built; new data replaces it wholesale.
package graph

import (
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/stats"
)

// StartNodeID is the synthetic root every case starts from.
const StartNodeID = "START"

// EdgeID returns the identity of the ordered pair source -> target.
func EdgeID(source, target string) string {
	return source + "__" + target
}

// Node is an activity in the graph.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Traversal is one case's transit across an edge.
type Traversal struct {
	CaseID     string    `json:"caseId"`
	StartTS    time.Time `json:"startTs"`
	EndTS      time.Time `json:"endTs"`
	DurationMs int64     `json:"durationMs"`
	Resource   string    `json:"resource,omitempty"`
	Department string    `json:"department,omitempty"`
}

// Edge aggregates every traversal of an ordered activity pair.
// Count, the duration statistics and the unique counts are derived from
// Traversals by Recompute and must not be set by hand.
type Edge struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Count      int         `json:"count"`
	Traversals []Traversal `json:"traversals"`

	MeanMs   float64 `json:"meanMs"`
	MedianMs int64   `json:"medianMs"`
	P90Ms    int64   `json:"p90Ms"`
	MinMs    int64   `json:"minMs"`
	MaxMs    int64   `json:"maxMs"`

	UniqueResources   int `json:"uniqueResources"`
	UniqueDepartments int `json:"uniqueDepartments"`
}

// Recompute refreshes every derived field from Traversals.
func (e *Edge) Recompute() {
	e.Count = len(e.Traversals)

	durations := make([]int64, len(e.Traversals))
	resources := make(map[string]struct{})
	departments := make(map[string]struct{})
	for i, t := range e.Traversals {
		durations[i] = t.DurationMs
		if t.Resource != "" {
			resources[t.Resource] = struct{}{}
		}
		if t.Department != "" {
			departments[t.Department] = struct{}{}
		}
	}

	s := stats.Summarize(durations)
	e.MeanMs = s.Mean
	e.MedianMs = s.Median
	e.P90Ms = s.P90
	e.MinMs = s.Min
	e.MaxMs = s.Max
	e.UniqueResources = len(resources)
	e.UniqueDepartments = len(departments)
}

// Stats returns the duration summary of the edge.
func (e *Edge) Stats() stats.Summary {
	return stats.Summary{Mean: e.MeanMs, Median: e.MedianMs, P90: e.P90Ms, Min: e.MinMs, Max: e.MaxMs}
}

// Graph is the aggregated directly-follows graph.
// Adjacency and Reverse are duplicate-free indexes derived from Edges.
type Graph struct {
	Nodes     []Node              `json:"nodes"`
	Edges     []Edge              `json:"edges"`
	Adjacency map[string][]string `json:"adjacency"`
	Reverse   map[string][]string `json:"reverse"`

	nodeIndex map[string]int
	edgeIndex map[string]int
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	i, ok := g.edgeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.Edges[i], true
}

// Outgoing returns the edges leaving node, in adjacency order.
func (g *Graph) Outgoing(node string) []*Edge {
	targets := g.Adjacency[node]
	out := make([]*Edge, 0, len(targets))
	for _, t := range targets {
		if e, ok := g.Edge(EdgeID(node, t)); ok {
			out = append(out, e)
		}
	}
	return out
}

// Build converts an event log into a Graph.
// Events are validated first; a malformed event fails the whole build.
// Empty input yields a graph holding only START.
func Build(events []model.Event) (*Graph, error) {
	if err := model.Validate(events); err != nil {
		return nil, err
	}
	return FromCases(model.GroupCases(events)), nil
}

// FromCases builds a Graph from already grouped and sorted cases.
func FromCases(cases []model.Case) *Graph {
	b := newBuilder()

	for _, c := range cases {
		if len(c.Events) == 0 {
			continue
		}

		first := c.Events[0]
		b.addEdge(StartNodeID, first.Activity, Traversal{
			CaseID:  c.ID,
			StartTS: first.Timestamp,
			EndTS:   first.Timestamp,
		})

		for i := 0; i < len(c.Events)-1; i++ {
			b.addEdge(c.Events[i].Activity, c.Events[i+1].Activity, NewTraversal(c.ID, c.Events[i], c.Events[i+1]))
		}
	}

	return b.finish()
}

// NewTraversal records one case's step from event a to event b.
// The actor and department come from the source event.
func NewTraversal(caseID string, a, b model.Event) Traversal {
	return Traversal{
		CaseID:     caseID,
		StartTS:    a.Timestamp,
		EndTS:      b.Timestamp,
		DurationMs: b.Timestamp.Sub(a.Timestamp).Milliseconds(),
		Resource:   a.Resource,
		Department: a.Department,
	}
}

type builder struct {
	g *Graph
}

func newBuilder() *builder {
	b := &builder{g: &Graph{
		Adjacency: make(map[string][]string),
		Reverse:   make(map[string][]string),
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}}
	b.addNode(StartNodeID)
	return b
}

func (b *builder) addNode(id string) {
	if _, ok := b.g.nodeIndex[id]; ok {
		return
	}
	b.g.nodeIndex[id] = len(b.g.Nodes)
	b.g.Nodes = append(b.g.Nodes, Node{ID: id, Label: id})
}

func (b *builder) addEdge(source, target string, t Traversal) {
	b.addNode(source)
	b.addNode(target)

	id := EdgeID(source, target)
	i, ok := b.g.edgeIndex[id]
	if !ok {
		i = len(b.g.Edges)
		b.g.edgeIndex[id] = i
		b.g.Edges = append(b.g.Edges, Edge{ID: id, Source: source, Target: target})
		b.g.Adjacency[source] = append(b.g.Adjacency[source], target)
		b.g.Reverse[target] = append(b.g.Reverse[target], source)
	}
	b.g.Edges[i].Traversals = append(b.g.Edges[i].Traversals, t)
}

func (b *builder) finish() *Graph {
	for i := range b.g.Edges {
		b.g.Edges[i].Recompute()
	}
	return b.g
}
