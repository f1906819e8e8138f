package decouple

import (
	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/graph"
)

// Stack is an ordered list of layers. Every operation returns a new Stack
// and leaves the receiver untouched.
type Stack []Layer

// Add appends l unless a layer with the same target and path is present.
func (s Stack) Add(l Layer) Stack {
	for _, existing := range s {
		if existing.SameAs(l) {
			return s
		}
	}
	out := make(Stack, len(s), len(s)+1)
	copy(out, s)
	return append(out, l)
}

// Undo removes the layers splitting by sel that were opened at node. A
// node-local layer matches when it pivots on node itself; a downstream
// layer matches when its pivot lies downstream of node.
func (s Stack) Undo(g *graph.Graph, node string, sel attr.Selector) Stack {
	down := graph.Downstream(g, node)
	return s.without(func(l Layer) bool {
		if !l.Selector.Equal(sel) {
			return false
		}
		if l.Mode == NodeLocal {
			return l.Target.PivotNode() == node
		}
		return down.Has(l.Target.PivotNode())
	})
}

// ResetDownstream removes every layer whose pivot is reachable from node,
// node included.
func (s Stack) ResetDownstream(g *graph.Graph, node string) Stack {
	down := graph.Downstream(g, node)
	return s.without(func(l Layer) bool {
		return down.Has(l.Target.PivotNode())
	})
}

// ResetAll drops every layer.
func (s Stack) ResetAll() Stack { return nil }

// View composes the stack over cases. An empty stack has no view.
func (s Stack) View(g *graph.Graph, cases []model.Case) *View {
	if len(s) == 0 {
		return nil
	}
	v := Compose(g, cases, s)
	return &v
}

func (s Stack) without(drop func(Layer) bool) Stack {
	var out Stack
	for _, l := range s {
		if !drop(l) {
			out = append(out, l)
		}
	}
	return out
}
