package graph

import (
	"sort"
	"time"
)

// NodeVisit counts how often one case entered a node.
type NodeVisit struct {
	CaseID string    `json:"caseId"`
	Count  int       `json:"count"`
	Latest time.Time `json:"latest"`
}

// NodeVisits lists the cases that entered node, most visits first.
// Ties are ordered by case id. A limit <= 0 returns every case.
func NodeVisits(g *Graph, node string, limit int) []NodeVisit {
	index := make(map[string]int)
	var visits []NodeVisit

	for _, src := range g.Reverse[node] {
		e, ok := g.Edge(EdgeID(src, node))
		if !ok {
			continue
		}
		for _, t := range e.Traversals {
			i, seen := index[t.CaseID]
			if !seen {
				i = len(visits)
				index[t.CaseID] = i
				visits = append(visits, NodeVisit{CaseID: t.CaseID})
			}
			visits[i].Count++
			if t.EndTS.After(visits[i].Latest) {
				visits[i].Latest = t.EndTS
			}
		}
	}

	sort.Slice(visits, func(i, j int) bool {
		if visits[i].Count != visits[j].Count {
			return visits[i].Count > visits[j].Count
		}
		return visits[i].CaseID < visits[j].CaseID
	})

	if limit > 0 && len(visits) > limit {
		visits = visits[:limit]
	}
	return visits
}

// EdgeTraversals returns up to limit traversals of an edge in build order.
func EdgeTraversals(g *Graph, edgeID string, limit int) []Traversal {
	e, ok := g.Edge(edgeID)
	if !ok {
		return nil
	}
	if limit <= 0 || limit >= len(e.Traversals) {
		return e.Traversals
	}
	return e.Traversals[:limit]
}
