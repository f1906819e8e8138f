package graph

import (
	"encoding/json"
	"sort"
)

// IDSet is a set of node or edge ids.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// ContainsAll reports whether every id of other is in s.
func (s IDSet) ContainsAll(other IDSet) bool {
	for id := range other {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// BFSLayers runs a multi-source breadth-first search over Adjacency and
// returns the distance of every reached node. Roots are at distance 0;
// unreached nodes are absent from the map.
func BFSLayers(g *Graph, roots ...string) map[string]int {
	dist := make(map[string]int)
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if _, seen := dist[r]; seen {
			continue
		}
		dist[r] = 0
		queue = append(queue, r)
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.Adjacency[u] {
			if _, seen := dist[v]; !seen {
				dist[v] = dist[u] + 1
				queue = append(queue, v)
			}
		}
	}
	return dist
}

// Downstream returns node and every node reachable from it via outgoing edges.
func Downstream(g *Graph, node string) IDSet {
	dist := BFSLayers(g, node)
	out := make(IDSet, len(dist))
	for id := range dist {
		out.Add(id)
	}
	return out
}

// MaxDepth is the largest BFS distance from START.
func MaxDepth(g *Graph) int {
	depth := 0
	for _, d := range BFSLayers(g, StartNodeID) {
		depth = max(depth, d)
	}
	return depth
}
