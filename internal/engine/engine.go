package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Loop and merge port names the walker interprets.
const (
	PortIteration = "iteration"
	PortComplete  = "complete"
	PortError     = "error"

	// WaitForAllKey is the merge configuration switch for join semantics.
	WaitForAllKey = "waitForAll"
)

// DefaultMaxSteps bounds the number of node invocations of one run so a cyclic
// graph cannot recurse forever.
const DefaultMaxSteps = 100_000

var (
	// ErrStepLimit is reported when a run exceeds its invocation budget.
	ErrStepLimit = errors.New("step limit exceeded")

	errHalted = errors.New("run halted")
)

// Engine executes runs. It is stateless between runs and safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	caps     capability.Set
	eval     *expr.Evaluator
	observer Observer
	now      func() time.Time
	maxSteps int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapabilities injects the external services node behaviors may call.
func WithCapabilities(caps capability.Set) Option {
	return func(e *Engine) { e.caps = caps }
}

// WithObserver reports node starts and completions to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithEvaluator replaces the expression evaluator handed to behaviors.
func WithEvaluator(ev *expr.Evaluator) Option {
	return func(e *Engine) { e.eval = ev }
}

// WithClock overrides the time source used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// New creates an engine resolving node types through reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		eval:     expr.New(),
		observer: NopObserver{},
		now:      time.Now,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves node types with.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Evaluator returns the expression evaluator handed to behaviors.
func (e *Engine) Evaluator() *expr.Evaluator { return e.eval }

// walk carries the per-run state of one Execute call.
type walk struct {
	run   *Run
	graph *graph.Graph
	steps int
}

// Execute walks g from its trigger node and returns the final state of run.
// It blocks until the walk has finished or the run was stopped.
func (e *Engine) Execute(ctx context.Context, run *Run, g *graph.Graph) model.RunState {
	ctx = ctxlog.With(ctx, "run_id", run.ID(), "workflow_id", run.WorkflowID())
	logger := ctxlog.FromContext(ctx)
	logger.Info("Run started.")

	err := e.execute(ctx, &walk{run: run, graph: g})
	switch {
	case errors.Is(err, errHalted) || (err == nil && run.halted(ctx)):
		run.finish(model.RunStopped, "", e.now())
		logger.Info("Run stopped.")
	case err != nil:
		run.finish(model.RunFailed, err.Error(), e.now())
		logger.Error("Run failed.", "error", err)
	default:
		run.finish(model.RunCompleted, "", e.now())
		logger.Info("Run completed.")
	}
	return run.Snapshot()
}

func (e *Engine) execute(ctx context.Context, w *walk) error {
	if err := w.graph.Validate(); err != nil {
		return err
	}
	trigger, err := w.graph.FindTrigger()
	if err != nil {
		return err
	}
	return e.dispatch(ctx, w, trigger.ID, "")
}

// dispatch invokes one node reached through input and then follows the
// resulting output port depth-first.
func (e *Engine) dispatch(ctx context.Context, w *walk, nodeID, input string) error {
	if w.run.halted(ctx) {
		return errHalted
	}
	w.steps++
	if e.maxSteps > 0 && w.steps > e.maxSteps {
		return fmt.Errorf("%w: more than %d node invocations", ErrStepLimit, e.maxSteps)
	}

	node, _ := w.graph.Node(nodeID)
	def, _ := w.graph.Definition(nodeID)

	if def.Flow == registry.FlowMerge && waitsForAll(def, node) {
		if !w.run.arrive(nodeID, input, w.graph.ConnectedInputs(nodeID)) {
			w.run.appendLog(model.LogEntry{
				NodeID: nodeID, NodeName: def.Name, NodeType: def.Type,
				Phase: model.PhaseWaiting, Timestamp: e.now(), Input: input,
			})
			return nil
		}
	}

	result, err := e.invoke(ctx, w, node, def, input)
	if err != nil {
		return err
	}

	if def.Flow == registry.FlowLoop {
		return e.loop(ctx, w, nodeID, result.LoopCount)
	}

	port, err := selectPort(def, result)
	if err != nil {
		return &model.NodeExecutionError{NodeID: nodeID, NodeType: def.Type, Err: err}
	}
	return e.follow(ctx, w, nodeID, port)
}

// loop runs the iteration subtree count times, strictly sequentially, and the
// complete subtree once afterwards. Iterations share the run's scope.
func (e *Engine) loop(ctx context.Context, w *walk, nodeID string, count int) error {
	for i := 0; i < count; i++ {
		if w.run.halted(ctx) {
			return errHalted
		}
		w.run.vars.Set(model.LoopIndexVar, i)
		if err := e.follow(ctx, w, nodeID, PortIteration); err != nil {
			return err
		}
	}
	return e.follow(ctx, w, nodeID, PortComplete)
}

func (e *Engine) follow(ctx context.Context, w *walk, nodeID, port string) error {
	if port == "" {
		return nil
	}
	for _, c := range w.graph.Successors(nodeID, port) {
		if err := e.dispatch(ctx, w, c.To.Node, c.To.Input); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) invoke(ctx context.Context, w *walk, node model.Node, def *registry.Definition, input string) (model.NodeResult, error) {
	ctx = ctxlog.With(ctx, "node_id", node.ID, "node_type", node.Type)
	logger := ctxlog.FromContext(ctx)

	nc := &registry.Context{
		RunID:      w.run.ID(),
		WorkflowID: w.run.WorkflowID(),
		Node:       node,
		Input:      input,
		Config:     def.EffectiveConfig(node.Config),
		Vars:       w.run.vars,
		Trigger:    model.CloneMap(w.run.trigger),
		Results:    w.run.Result,
		Caps:       e.caps,
		Expr:       e.eval,
	}

	w.run.appendLog(model.LogEntry{
		NodeID: node.ID, NodeName: def.Name, NodeType: def.Type,
		Phase: model.PhaseStart, Timestamp: e.now(), Input: input,
	})
	e.observer.NodeStarted(ctx, w.run, node)
	logger.Debug("Node started.", "input", input)

	began := time.Now()
	result, err := execute(ctx, def.Behavior, nc)
	elapsed := time.Since(began)

	if err != nil {
		nerr := &model.NodeExecutionError{NodeID: node.ID, NodeType: def.Type, Err: err}
		w.run.appendLog(model.LogEntry{
			NodeID: node.ID, NodeName: def.Name, NodeType: def.Type,
			Phase: model.PhaseError, Timestamp: e.now(), Input: input, Error: nerr.Error(),
		})
		e.observer.NodeFinished(ctx, w.run, node, model.NodeResult{Error: err.Error()}, nerr, elapsed)
		logger.Debug("Node failed.", "error", err)
		return model.NodeResult{}, nerr
	}

	w.run.record(node.ID, result)
	logged := result
	logged.Data = model.CloneValue(result.Data)
	w.run.appendLog(model.LogEntry{
		NodeID: node.ID, NodeName: def.Name, NodeType: def.Type,
		Phase: model.PhaseComplete, Timestamp: e.now(), Input: input, Result: &logged,
	})
	e.observer.NodeFinished(ctx, w.run, node, result, nil, elapsed)
	logger.Debug("Node completed.", "success", result.Success, "output", result.Output)
	return result, nil
}

// execute calls the behavior, converting a panic into an error.
func execute(ctx context.Context, b registry.Behavior, nc *registry.Context) (res model.NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Debug("Node behavior panicked.", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Execute(ctx, nc)
}

// selectPort resolves the output port a result fires. An explicit port must be
// declared. Without one, a failed result uses the declared error port and a
// node with a single output uses that output.
func selectPort(def *registry.Definition, res model.NodeResult) (string, error) {
	if res.Output != "" {
		if !def.HasOutput(res.Output) {
			return "", fmt.Errorf("%w: behavior selected %q", model.ErrUnknownOutputPort, res.Output)
		}
		return res.Output, nil
	}
	if !res.Success && def.HasOutput(PortError) {
		return PortError, nil
	}
	switch len(def.Outputs) {
	case 0:
		return "", nil
	case 1:
		return def.Outputs[0], nil
	default:
		return "", fmt.Errorf("behavior selected no output port among %v", def.Outputs)
	}
}

func waitsForAll(def *registry.Definition, node model.Node) bool {
	v, ok := def.EffectiveConfig(node.Config)[WaitForAllKey]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}
