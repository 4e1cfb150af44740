package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

type portKey struct {
	node string
	port string
}

// Graph is an immutable, indexed snapshot of one workflow.
type Graph struct {
	workflow model.Workflow
	nodes    map[string]*model.Node
	defs     map[string]*registry.Definition
	out      map[portKey][]model.Connection
	in       map[string][]model.Connection
	problems []error
}

// Option configures New.
type Option func(*options)

type options struct {
	eval *expr.Evaluator
}

// WithEvaluator checks node expressions and templates against ev instead of
// the default evaluator.
func WithEvaluator(ev *expr.Evaluator) Option {
	return func(o *options) { o.eval = ev }
}

// New snapshots wf and resolves its nodes against reg. Resolution problems,
// including expressions and templates that do not parse or call functions
// outside the allow-list, are kept and reported by Validate.
func New(wf model.Workflow, reg *registry.Registry, opts ...Option) *Graph {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.eval == nil {
		o.eval = expr.New()
	}

	g := &Graph{
		workflow: wf.Clone(),
		nodes:    make(map[string]*model.Node),
		defs:     make(map[string]*registry.Definition),
		out:      make(map[portKey][]model.Connection),
		in:       make(map[string][]model.Connection),
	}

	for i := range g.workflow.Nodes {
		n := &g.workflow.Nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			g.problems = append(g.problems, fmt.Errorf("node %q: %w", n.ID, model.ErrDuplicateNode))
			continue
		}
		g.nodes[n.ID] = n
		def, err := reg.Lookup(n.Type)
		if err != nil {
			g.problems = append(g.problems, fmt.Errorf("node %q: %w", n.ID, err))
			continue
		}
		g.defs[n.ID] = def
		g.problems = append(g.problems, checkConfig(o.eval, n, def)...)
	}

	for _, c := range g.workflow.Connections {
		if err := g.checkConnection(c); err != nil {
			g.problems = append(g.problems, fmt.Errorf("connection %q: %w", c.ID, err))
			continue
		}
		key := portKey{node: c.From.Node, port: c.From.Output}
		g.out[key] = append(g.out[key], c)
		g.in[c.To.Node] = append(g.in[c.To.Node], c)
	}
	return g
}

func (g *Graph) checkConnection(c model.Connection) error {
	if _, ok := g.nodes[c.From.Node]; !ok {
		return fmt.Errorf("%w: source %q", model.ErrNodeNotFound, c.From.Node)
	}
	if _, ok := g.nodes[c.To.Node]; !ok {
		return fmt.Errorf("%w: destination %q", model.ErrNodeNotFound, c.To.Node)
	}
	// Unresolved types are already reported for the node itself.
	if def, ok := g.defs[c.From.Node]; ok && !def.HasOutput(c.From.Output) {
		return fmt.Errorf("%w: %q on node %q", model.ErrUnknownOutputPort, c.From.Output, c.From.Node)
	}
	if def, ok := g.defs[c.To.Node]; ok && !def.HasInput(c.To.Input) {
		return fmt.Errorf("%w: %q on node %q", model.ErrUnknownInputPort, c.To.Input, c.To.Node)
	}
	return nil
}

// checkConfig parses the expression and template settings of one node.
// Empty expressions are left to the behavior.
func checkConfig(ev *expr.Evaluator, n *model.Node, def *registry.Definition) []error {
	cfg := def.EffectiveConfig(n.Config)
	var errs []error
	check := func(key, src string, template bool) {
		if _, err := ev.Check(src, template); err != nil {
			errs = append(errs, fmt.Errorf("node %q config %q: %w: %w", n.ID, key, model.ErrInvalidExpression, err))
		}
	}
	for _, key := range def.Expressions {
		if src, ok := cfg[key].(string); ok && strings.TrimSpace(src) != "" {
			check(key, src, false)
		}
	}
	for _, key := range def.Templates {
		if src, ok := cfg[key].(string); ok && expr.IsTemplate(src) {
			check(key, src, true)
		}
	}
	return errs
}

// Validate reports every definition problem found by New.
func (g *Graph) Validate() error {
	if len(g.problems) == 0 {
		return nil
	}
	return &model.DefinitionError{WorkflowID: g.workflow.ID, Problems: append([]error(nil), g.problems...)}
}

// Workflow returns the snapshot the graph was built from.
func (g *Graph) Workflow() model.Workflow {
	return g.workflow.Clone()
}

// ID is the workflow id.
func (g *Graph) ID() string { return g.workflow.ID }

// Variables returns a copy of the variables that seed a run.
func (g *Graph) Variables() map[string]any {
	return model.CloneMap(g.workflow.Variables)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (model.Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	out := *n
	out.Config = model.CloneMap(n.Config)
	return out, true
}

// Definition returns the resolved type definition of a node.
func (g *Graph) Definition(nodeID string) (*registry.Definition, bool) {
	def, ok := g.defs[nodeID]
	return def, ok
}

// FindTrigger returns the entry node of a run. When several trigger-category
// nodes exist, the one with the lexicographically smallest id wins.
func (g *Graph) FindTrigger() (model.Node, error) {
	var ids []string
	for id, def := range g.defs {
		if def.Category == registry.CategoryTrigger {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return model.Node{}, fmt.Errorf("workflow %q: %w", g.workflow.ID, model.ErrNoTrigger)
	}
	sort.Strings(ids)
	n, _ := g.Node(ids[0])
	return n, nil
}

// Successors returns the connections leaving the given output port in
// definition order.
func (g *Graph) Successors(nodeID, output string) []model.Connection {
	return append([]model.Connection(nil), g.out[portKey{node: nodeID, port: output}]...)
}

// Inbound returns every connection arriving at nodeID in definition order.
func (g *Graph) Inbound(nodeID string) []model.Connection {
	return append([]model.Connection(nil), g.in[nodeID]...)
}

// ConnectedInputs returns the declared input ports of nodeID that have at
// least one inbound connection, in declaration order.
func (g *Graph) ConnectedInputs(nodeID string) []string {
	def, ok := g.defs[nodeID]
	if !ok {
		return nil
	}
	connected := make(map[string]bool)
	for _, c := range g.in[nodeID] {
		connected[c.To.Input] = true
	}
	var ports []string
	for _, p := range def.Inputs {
		if connected[p] {
			ports = append(ports, p)
		}
	}
	return ports
}
