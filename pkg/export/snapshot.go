// Package export serialises an exploration session for collaborators that
// render or analyse it elsewhere: a JSON snapshot, Graphviz DOT text and a
// Parquet star schema.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/session"
	"github.com/logflow/procflow/pkg/variants"
	"github.com/logflow/procflow/pkg/visible"
)

// SnapshotOptions tune what a snapshot carries.
type SnapshotOptions struct {
	// OmitTraversals drops per-case traversal detail from every edge.
	OmitTraversals bool
	Spacing        graph.Spacing
}

// Snapshot is everything a renderer needs to draw the current state.
type Snapshot struct {
	SessionID   string                 `json:"sessionId"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Summary     session.Summary        `json:"summary"`
	Nodes       []graph.Node           `json:"nodes"`
	Edges       []graph.Edge           `json:"edges"`
	Visible     visible.Result         `json:"visible"`
	Decoupled   *decouple.View         `json:"decoupled,omitempty"`
	Layers      []decouple.Layer       `json:"layers,omitempty"`
	Layout      map[string]graph.Point `json:"layout"`
	Variants    []variants.Variant     `json:"variants"`
}

// NewSnapshot captures s.
func NewSnapshot(s *session.Session, opts SnapshotOptions) Snapshot {
	spacing := opts.Spacing
	if spacing.X <= 0 || spacing.Y <= 0 {
		spacing = graph.DefaultSpacing
	}

	snap := Snapshot{
		SessionID:   s.ID,
		GeneratedAt: time.Now().UTC(),
		Summary:     s.Summary(),
		Nodes:       s.Graph.Nodes,
		Edges:       s.Graph.Edges,
		Visible:     s.Visible(),
		Layers:      s.Layers,
		Layout:      graph.ComputeLayout(s.Graph, []string{graph.StartNodeID}, spacing),
		Variants:    s.Variants,
	}
	if s.View != nil {
		v := *s.View
		snap.Decoupled = &v
	}
	if opts.OmitTraversals {
		snap.Edges = stripTraversals(snap.Edges)
		if snap.Decoupled != nil {
			groups := make([]decouple.DecoupledEdge, len(snap.Decoupled.GroupEdges))
			for i, ge := range snap.Decoupled.GroupEdges {
				ge.Traversals = nil
				groups[i] = ge
			}
			snap.Decoupled.GroupEdges = groups
		}
	}
	return snap
}

func stripTraversals(edges []graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(edges))
	for i, e := range edges {
		e.Traversals = nil
		out[i] = e
	}
	return out
}

// WriteJSON writes snap as indented JSON.
func WriteJSON(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
