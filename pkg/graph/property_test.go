package graph

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/logflow/procflow/internal/model"
)

// logFromShape turns generated activity indexes into an event log:
// shape[i] is the activity sequence of case i.
func logFromShape(shape [][]int) []model.Event {
	var events []model.Event
	for i, acts := range shape {
		for j, a := range acts {
			events = append(events, model.Event{
				CaseID:    fmt.Sprintf("case-%d", i),
				Activity:  fmt.Sprintf("act-%d", a),
				Timestamp: at(j),
				Resource:  fmt.Sprintf("r%d", (i+j)%3),
			})
		}
	}
	return events
}

func TestGraphInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	shapes := gen.SliceOf(gen.SliceOf(gen.IntRange(0, 5)))

	properties.Property("edge count equals traversal count", prop.ForAll(
		func(shape [][]int) bool {
			g, err := Build(logFromShape(shape))
			if err != nil {
				return false
			}
			for _, e := range g.Edges {
				if e.Count != len(e.Traversals) {
					return false
				}
			}
			return true
		},
		shapes,
	))

	properties.Property("START out-count equals non-empty cases", prop.ForAll(
		func(shape [][]int) bool {
			g, err := Build(logFromShape(shape))
			if err != nil {
				return false
			}
			nonEmpty := 0
			for _, acts := range shape {
				if len(acts) > 0 {
					nonEmpty++
				}
			}
			sum := 0
			for _, e := range g.Outgoing(StartNodeID) {
				sum += e.Count
			}
			return sum == nonEmpty
		},
		shapes,
	))

	properties.Property("adjacency and reverse mirror the edges", prop.ForAll(
		func(shape [][]int) bool {
			g, err := Build(logFromShape(shape))
			if err != nil {
				return false
			}
			out, in := 0, 0
			for src, targets := range g.Adjacency {
				seen := NewIDSet()
				for _, tgt := range targets {
					if seen.Has(tgt) {
						return false
					}
					seen.Add(tgt)
					if _, ok := g.Edge(EdgeID(src, tgt)); !ok {
						return false
					}
					out++
				}
			}
			for _, sources := range g.Reverse {
				in += len(sources)
			}
			return out == len(g.Edges) && in == len(g.Edges)
		},
		shapes,
	))

	properties.TestingRun(t)
}
