// Package variants mines the most frequent end-to-end activity paths.
package variants

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/graph"
)

// DefaultTopN is how many variants a session mines by default.
const DefaultTopN = 6

const maxKeyInID = 80

// Variant is a distinct activity path and the number of cases following it.
type Variant struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Path  []string `json:"path"`
	Count int      `json:"count"`
}

// CollapseRepeats drops immediately repeated activities, so A,B,B,C
// becomes A,B,C. Self-loops therefore never create distinct variants.
func CollapseRepeats(activities []string) []string {
	out := make([]string, 0, len(activities))
	for i, a := range activities {
		if i > 0 && a == activities[i-1] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// MineTopTraces groups events into cases and returns the topN most frequent
// collapsed paths. Ties are broken by lexicographic path order. topN is
// raised to 1 when smaller.
func MineTopTraces(events []model.Event, topN int) []Variant {
	return Mine(model.GroupCases(events), topN)
}

// Mine is MineTopTraces over already grouped cases.
func Mine(cases []model.Case, topN int) []Variant {
	type entry struct {
		path  []string
		count int
	}
	counts := make(map[string]*entry)

	for _, c := range cases {
		if len(c.Events) == 0 {
			continue
		}
		path := CollapseRepeats(c.Activities())
		key := strings.Join(path, ">")
		if e, ok := counts[key]; ok {
			e.count++
			continue
		}
		counts[key] = &entry{path: path, count: 1}
	}

	ranked := make([]*entry, 0, len(counts))
	for _, e := range counts {
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return slices.Compare(ranked[i].path, ranked[j].path) < 0
	})

	topN = max(topN, 1)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	out := make([]Variant, len(ranked))
	for i, e := range ranked {
		key := strings.Join(e.path, ">")
		if len(key) > maxKeyInID {
			key = key[:maxKeyInID]
		}
		out[i] = Variant{
			ID:    fmt.Sprintf("var-%d-%s", i, key),
			Label: strings.Join(e.path, " → "),
			Path:  e.path,
			Count: e.count,
		}
	}
	return out
}

// Find returns the variant with the given id.
func Find(vs []Variant, id string) (Variant, bool) {
	for _, v := range vs {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Share is the fraction of cases following v, in [0, 1].
func Share(v Variant, totalCases int) float64 {
	if totalCases <= 0 {
		return 0
	}
	return float64(v.Count) / float64(totalCases)
}

// HappyPathEdges returns the edge ids along v, starting from START.
// Transitions missing from g are skipped.
func HappyPathEdges(g *graph.Graph, v Variant) graph.IDSet {
	out := graph.NewIDSet()
	prev := graph.StartNodeID
	for _, act := range v.Path {
		id := graph.EdgeID(prev, act)
		if _, ok := g.Edge(id); ok {
			out.Add(id)
		}
		prev = act
	}
	return out
}
