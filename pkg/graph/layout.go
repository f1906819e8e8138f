package graph

import "sort"

// Point is a node position in layout space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Spacing is the distance between columns (X) and BFS layers (Y).
type Spacing struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DefaultSpacing matches the rendering collaborator's node size.
var DefaultSpacing = Spacing{X: 220, Y: 140}

const (
	originX = 80
	originY = 60
)

// ComputeLayout places each reachable node on the row of its BFS layer.
// Rows are sorted by id and centred on the widest row. Nodes unreachable
// from roots get no position.
func ComputeLayout(g *Graph, roots []string, spacing Spacing) map[string]Point {
	dist := BFSLayers(g, roots...)

	layers := make(map[int][]string)
	maxWidth := 1
	for _, n := range g.Nodes {
		d, ok := dist[n.ID]
		if !ok {
			continue
		}
		layers[d] = append(layers[d], n.ID)
		maxWidth = max(maxWidth, len(layers[d]))
	}

	pos := make(map[string]Point, len(dist))
	for d, ids := range layers {
		sort.Strings(ids)
		offsetX := float64(maxWidth-len(ids)) * spacing.X / 2
		y := float64(d)*spacing.Y + originY
		for i, id := range ids {
			pos[id] = Point{X: offsetX + float64(i)*spacing.X + originX, Y: y}
		}
	}
	return pos
}
