// Package session holds the state of one exploration of an event log: the
// graph, its events, the decouple layers and the navigation state.
//
// A Session is a value. Every transition returns a new *Session and leaves
// the receiver untouched, so callers swap the graph, the layer list and the
// derived view together or not at all.
package session

import (
	"github.com/google/uuid"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/errors"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/variants"
	"github.com/logflow/procflow/pkg/visible"
)

// Navigation selects which visibility policy Visible applies.
type Navigation string

const (
	NavigateExpanded Navigation = "expanded"
	NavigateStep     Navigation = "step"
)

// Options tune a new session.
type Options struct {
	// TopVariants is how many variants are mined. Zero means the default.
	TopVariants int
	// Step is the initial depth frontier.
	Step int
	// Navigation is the initial policy. Empty means NavigateExpanded.
	Navigation Navigation
}

// Session is one loaded log and everything derived from it.
type Session struct {
	ID       string
	Graph    *graph.Graph
	Events   []model.Event
	Cases    []model.Case
	Variants []variants.Variant

	Layers decouple.Stack
	// View is nil when no layer is active.
	View *decouple.View

	Navigation    Navigation
	Expanded      graph.IDSet
	Step          int
	ActiveVariant string

	topN int
}

// New builds the graph and mines variants for events.
func New(events []model.Event, opts Options) (*Session, error) {
	g, err := graph.Build(events)
	if err != nil {
		return nil, err
	}

	topN := opts.TopVariants
	if topN <= 0 {
		topN = variants.DefaultTopN
	}
	nav := opts.Navigation
	if nav == "" {
		nav = NavigateExpanded
	}

	cases := model.GroupCases(events)
	return &Session{
		ID:         uuid.NewString(),
		Graph:      g,
		Events:     events,
		Cases:      cases,
		Variants:   variants.Mine(cases, topN),
		Navigation: nav,
		Expanded:   graph.NewIDSet(),
		Step:       clampStep(opts.Step, graph.MaxDepth(g)),
		topN:       topN,
	}, nil
}

// Reload replaces the log wholesale. Layers and navigation are reset since
// they may reference activities that no longer exist.
func (s *Session) Reload(events []model.Event) (*Session, error) {
	next, err := New(events, Options{TopVariants: s.topN, Navigation: s.Navigation})
	if err != nil {
		return nil, err
	}
	next.ID = s.ID
	return next, nil
}

func (s *Session) clone() *Session {
	c := *s
	c.Expanded = s.Expanded.Clone()
	return &c
}

// --- navigation ---

// ExpandNode reveals the outgoing edges of node.
func (s *Session) ExpandNode(node string) (*Session, error) {
	if !s.Graph.HasNode(node) {
		return nil, errors.New(errors.CodeUnknownNode, "node is not part of the graph").
			WithContext("node", node)
	}
	c := s.clone()
	c.Expanded.Add(node)
	c.Navigation = NavigateExpanded
	return c, nil
}

// CollapseNode hides the outgoing edges of node again.
func (s *Session) CollapseNode(node string) *Session {
	c := s.clone()
	delete(c.Expanded, node)
	return c
}

// ResetExpanded collapses everything.
func (s *Session) ResetExpanded() *Session {
	c := s.clone()
	c.Expanded = graph.NewIDSet()
	return c
}

// SetStep moves the depth frontier, clamped to [0, MaxDepth].
func (s *Session) SetStep(step int) *Session {
	c := s.clone()
	c.Step = clampStep(step, graph.MaxDepth(s.Graph))
	c.Navigation = NavigateStep
	return c
}

// NextStep advances the depth frontier by one layer.
func (s *Session) NextStep() *Session {
	return s.SetStep(s.Step + 1)
}

func clampStep(step, maxDepth int) int {
	return min(max(step, 0), maxDepth)
}

// SelectVariant narrows the view to one mined variant.
func (s *Session) SelectVariant(id string) (*Session, error) {
	if _, ok := variants.Find(s.Variants, id); !ok {
		return nil, errors.New(errors.CodeUnknownVariant, "variant is not among the mined variants").
			WithContext("variant", id)
	}
	c := s.clone()
	c.ActiveVariant = id
	return c, nil
}

// ClearVariant leaves the variant lens.
func (s *Session) ClearVariant() *Session {
	c := s.clone()
	c.ActiveVariant = ""
	return c
}

// Visible applies the variant lens if one is active, else the current
// navigation policy.
func (s *Session) Visible() visible.Result {
	if v, ok := variants.Find(s.Variants, s.ActiveVariant); ok {
		return visible.ForVariant(s.Graph, v)
	}
	if s.Navigation == NavigateStep {
		return visible.ByStep(s.Graph, s.Step)
	}
	return visible.FromExpanded(s.Graph, s.Expanded)
}

// --- decoupling ---

// Decouple adds a layer and recomputes the view. Adding a layer that is
// already active changes nothing.
func (s *Session) Decouple(l decouple.Layer) *Session {
	return s.withLayers(s.Layers.Add(l))
}

// UndoDecouple removes the layers splitting by sel opened at or below node.
func (s *Session) UndoDecouple(node string, sel attr.Selector) *Session {
	return s.withLayers(s.Layers.Undo(s.Graph, node, sel))
}

// ResetDownstream removes every layer pivoting at or below node.
func (s *Session) ResetDownstream(node string) *Session {
	return s.withLayers(s.Layers.ResetDownstream(s.Graph, node))
}

// ResetAll removes every layer.
func (s *Session) ResetAll() *Session {
	return s.withLayers(s.Layers.ResetAll())
}

func (s *Session) withLayers(layers decouple.Stack) *Session {
	c := s.clone()
	c.Layers = layers
	c.View = layers.View(s.Graph, s.Cases)
	return c
}

// Summary is a headline count of the loaded log.
type Summary struct {
	Cases    int `json:"cases"`
	Events   int `json:"events"`
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
	MaxDepth int `json:"maxDepth"`
	Variants int `json:"variants"`
}

// Summary counts what was loaded.
func (s *Session) Summary() Summary {
	return Summary{
		Cases:    len(s.Cases),
		Events:   len(s.Events),
		Nodes:    len(s.Graph.Nodes),
		Edges:    len(s.Graph.Edges),
		MaxDepth: graph.MaxDepth(s.Graph),
		Variants: len(s.Variants),
	}
}
