package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/visible"
)

// DOTOptions configures DOT output.
type DOTOptions struct {
	// Labels maps an activity id to its display label. Nil shows ids.
	Labels func(id string) string
	// Layout pins nodes to precomputed positions (points, y grows down).
	Layout map[string]graph.Point
	// All draws the whole graph instead of the visible part.
	All bool
}

// ToDOT converts the shown part of g to Graphviz DOT. Base edges replaced
// by view are left out and the view's group edges are drawn instead,
// labelled with their group key and count. Stubs are drawn as dashed edges
// to a small placeholder.
func ToDOT(g *graph.Graph, vis visible.Result, view *decouple.View, opts DOTOptions) string {
	label := opts.Labels
	if label == nil {
		label = func(id string) string { return id }
	}
	nodes := vis.Nodes
	edges := vis.Edges
	if opts.All {
		nodes, edges = graph.NewIDSet(), graph.NewIDSet()
		for _, n := range g.Nodes {
			nodes.Add(n.ID)
		}
		for _, e := range g.Edges {
			edges.Add(e.ID)
		}
	}
	replaced := graph.NewIDSet()
	if view != nil {
		replaced = view.ReplacedEdgeIDs
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("\n")

	for _, id := range nodes.Sorted() {
		attrs := []string{fmt.Sprintf("label=%q", label(id))}
		if id == graph.StartNodeID {
			attrs = append(attrs, "shape=circle", "fillcolor=black", "fontcolor=white")
		} else if !opts.All && vis.Terminals.Has(id) {
			attrs = append(attrs, "peripheries=2")
		}
		if p, ok := opts.Layout[id]; ok {
			// DOT points grow upwards.
			attrs = append(attrs, fmt.Sprintf("pos=\"%g,%g!\"", p.X, -p.Y))
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		if !edges.Has(e.ID) || replaced.Has(e.ID) {
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.Source, e.Target, fmt.Sprintf("%d", e.Count))
	}

	if view != nil {
		groups := append([]decouple.DecoupledEdge(nil), view.GroupEdges...)
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
		for _, ge := range groups {
			if !nodes.Has(ge.Source) || !nodes.Has(ge.Target) {
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q [label=%q, color=\"#FF0000\"];\n",
				ge.Source, ge.Target, fmt.Sprintf("%s (%d)", ge.GroupKey, ge.Count))
		}
	}

	if !opts.All && len(vis.Stubs) > 0 {
		buf.WriteString("\n")
		for _, s := range vis.Stubs {
			stub := "stub:" + s.EdgeID
			fmt.Fprintf(&buf, "  %q [label=\"…\", shape=plaintext];\n", stub)
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed, color=grey];\n", s.Source, stub)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders DOT text to SVG with the embedded Graphviz engine.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
