package tracker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/events"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// DefaultHistory is the number of finished runs kept for log retrieval.
const DefaultHistory = 100

// Source resolves workflows by id. *workflowstore.Store satisfies it.
type Source interface {
	Get(id string) (model.Workflow, error)
}

// entry is a run that has not finished yet. It leaves the active set on
// Stop but stays here until its walker returns.
type entry struct {
	run    *engine.Run
	active bool
	// announced marks a run whose stopped event was emitted by Stop.
	announced bool
	done      chan struct{}
}

// Tracker starts, stops and remembers runs. It is safe for concurrent use.
type Tracker struct {
	source     Source
	registry   *registry.Registry
	engine     *engine.Engine
	emitter    events.Emitter
	now        func() time.Time
	newID      func() string
	historyCap int
	metrics    *metrics

	engineOpts    []engine.Option
	meterProvider metric.MeterProvider

	mu       sync.RWMutex
	live     map[string]*entry
	finished map[string]model.RunState
	order    []string

	wg sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEmitter publishes execution and node events to e.
func WithEmitter(e events.Emitter) Option {
	return func(t *Tracker) { t.emitter = e }
}

// WithEngineOptions passes options to the engine the tracker builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(t *Tracker) { t.engineOpts = append(t.engineOpts, opts...) }
}

// WithHistory sets how many finished runs are remembered. Zero keeps none.
func WithHistory(n int) Option {
	return func(t *Tracker) { t.historyCap = n }
}

// WithMeterProvider records metrics through mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(t *Tracker) { t.meterProvider = mp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator overrides the run id generator.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// New creates a tracker executing workflows from source with node types from reg.
func New(source Source, reg *registry.Registry, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		source:     source,
		registry:   reg,
		emitter:    events.Nop{},
		now:        time.Now,
		newID:      uuid.NewString,
		historyCap: DefaultHistory,
		live:       make(map[string]*entry),
		finished:   make(map[string]model.RunState),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.meterProvider == nil {
		t.meterProvider = otel.GetMeterProvider()
	}
	m, err := newMetrics(t.meterProvider)
	if err != nil {
		return nil, err
	}
	t.metrics = m

	engineOpts := append([]engine.Option{engine.WithClock(t.now)}, t.engineOpts...)
	engineOpts = append(engineOpts, engine.WithObserver(t))
	t.engine = engine.New(reg, engineOpts...)
	return t, nil
}

// Start launches a run of the workflow and returns its id without waiting for
// it. Disabled workflows and workflows with definition errors are rejected
// before a run exists. A missing trigger is reported by the run itself, which
// ends failed.
func (t *Tracker) Start(ctx context.Context, workflowID string, trigger map[string]any) (string, error) {
	wf, err := t.source.Get(workflowID)
	if err != nil {
		return "", err
	}
	if !wf.Enabled {
		return "", fmt.Errorf("workflow %q: %w", workflowID, model.ErrWorkflowDisabled)
	}
	g := graph.New(wf, t.registry, graph.WithEvaluator(t.engine.Evaluator()))
	if err := g.Validate(); err != nil {
		return "", err
	}

	id := t.newID()
	run := engine.NewRun(id, wf.ID, wf.Variables, trigger, t.now())
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run.SetCancel(cancel)
	e := &entry{run: run, active: true, done: make(chan struct{})}

	t.mu.Lock()
	t.live[id] = e
	t.mu.Unlock()

	t.metrics.runStarted(ctx, wf.ID)
	snap := run.Snapshot()
	t.emitter.Emit(ctx, events.Event{Type: events.ExecutionStarted, Run: &snap})
	ctxlog.FromContext(ctx).Debug("Run registered.", "run_id", id, "workflow_id", wf.ID)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		state := t.engine.Execute(runCtx, run, g)
		t.complete(runCtx, e, state)
	}()
	return id, nil
}

// complete moves a finished run into the history and announces it.
func (t *Tracker) complete(ctx context.Context, e *entry, state model.RunState) {
	defer close(e.done)
	t.mu.Lock()
	delete(t.live, state.ID)
	t.remember(state)
	announced := e.announced
	t.mu.Unlock()

	t.metrics.runFinished(ctx, state.WorkflowID, state.Status)
	if state.Status == model.RunStopped && announced {
		return
	}
	typ := events.ExecutionCompleted
	switch state.Status {
	case model.RunFailed:
		typ = events.ExecutionFailed
	case model.RunStopped:
		typ = events.ExecutionStopped
	}
	snap := e.run.Snapshot()
	t.emitter.Emit(ctx, events.Event{Type: typ, Run: &snap})
}

// remember appends state to the history, evicting the oldest runs beyond the
// cap. Callers hold t.mu.
func (t *Tracker) remember(state model.RunState) {
	if t.historyCap <= 0 {
		return
	}
	t.finished[state.ID] = state
	t.order = append(t.order, state.ID)
	for len(t.order) > t.historyCap {
		delete(t.finished, t.order[0])
		t.order = t.order[1:]
	}
}

// Stop halts an active run: it leaves the active set at once, no further
// node is dispatched and the stopped event is emitted before Stop returns. A
// node already executing is cancelled through its context and finishes on its
// own.
func (t *Tracker) Stop(ctx context.Context, runID string) error {
	t.mu.Lock()
	e, ok := t.live[runID]
	if !ok || !e.active {
		t.mu.Unlock()
		return fmt.Errorf("run %q: %w", runID, model.ErrRunNotFound)
	}
	e.active = false
	stopped := e.run.Stop(t.now())
	e.announced = stopped
	t.mu.Unlock()

	if !stopped {
		return nil
	}
	ctxlog.FromContext(ctx).Info("Run stop requested.", "run_id", runID)
	snap := e.run.Snapshot()
	t.emitter.Emit(ctx, events.Event{Type: events.ExecutionStopped, Run: &snap})
	return nil
}

// IsRunning reports whether runID is in the active set.
func (t *Tracker) IsRunning(runID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[runID]
	return ok && e.active
}

// ListActive returns the ids of active runs, sorted.
func (t *Tracker) ListActive() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.live))
	for id, e := range t.live {
		if e.active {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// State returns a snapshot of a live or remembered run.
func (t *Tracker) State(runID string) (model.RunState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.live[runID]; ok {
		return e.run.Snapshot(), nil
	}
	if state, ok := t.finished[runID]; ok {
		return state, nil
	}
	return model.RunState{}, fmt.Errorf("run %q: %w", runID, model.ErrRunNotFound)
}

// Log returns the ordered execution log of a run.
func (t *Tracker) Log(runID string) ([]model.LogEntry, error) {
	state, err := t.State(runID)
	if err != nil {
		return nil, err
	}
	return state.Log, nil
}

// Wait blocks until the run has finished and returns its final state.
func (t *Tracker) Wait(ctx context.Context, runID string) (model.RunState, error) {
	t.mu.RLock()
	e, ok := t.live[runID]
	t.mu.RUnlock()
	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return model.RunState{}, ctx.Err()
		}
		if t.historyCap <= 0 {
			return e.run.Snapshot(), nil
		}
	}
	return t.State(runID)
}

// Shutdown stops every active run and waits for all run goroutines to return
// or for ctx to expire.
func (t *Tracker) Shutdown(ctx context.Context) error {
	for _, id := range t.ListActive() {
		_ = t.Stop(ctx, id)
	}
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to finish: %w", ctx.Err())
	}
}

// NodeStarted implements engine.Observer.
func (t *Tracker) NodeStarted(ctx context.Context, run *engine.Run, node model.Node) {
	t.emitter.Emit(ctx, events.Event{Type: events.NodeStarted, RunID: run.ID(), NodeID: node.ID})
}

// NodeFinished implements engine.Observer.
func (t *Tracker) NodeFinished(ctx context.Context, run *engine.Run, node model.Node, result model.NodeResult, err error, elapsed time.Duration) {
	t.metrics.nodeFinished(ctx, node.Type, err == nil && result.Success, elapsed)
	res := result
	res.Data = model.CloneValue(result.Data)
	t.emitter.Emit(ctx, events.Event{Type: events.NodeCompleted, RunID: run.ID(), NodeID: node.ID, Result: &res})
}
