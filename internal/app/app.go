package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/events"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/hclimport"
	"github.com/vk/flowgrid/internal/kvstore"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/tracker"
	"github.com/vk/flowgrid/internal/workflowstore"
)

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	logger   *slog.Logger
	registry *registry.Registry
	bus      *events.Bus
	store    *workflowstore.Store
	tracker  *tracker.Tracker
	closers  []func(context.Context) error
}

type options struct {
	backend kvstore.Backend
	modules []registry.Module
	caps    *capability.Set
	output  io.Writer
	tracker []tracker.Option
}

// Option customises New.
type Option func(*options)

// WithBackend replaces the store selected by the configuration.
func WithBackend(b kvstore.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithModules replaces the built-in node type modules.
func WithModules(mods ...registry.Module) Option {
	return func(o *options) { o.modules = mods }
}

// WithCapabilities replaces the capabilities built from the configuration.
func WithCapabilities(caps capability.Set) Option {
	return func(o *options) { o.caps = &caps }
}

// WithOutput sets where logs and printed notifications go. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithTrackerOptions passes extra options to the run tracker.
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(o *options) { o.tracker = append(o.tracker, opts...) }
}

// New builds an App from cfg and loads the persisted workflows.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{output: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		logger:   newLogger(cfg.Log.Level, cfg.Log.Format, o.output),
		registry: registry.New(),
		bus:      events.NewBus(),
	}
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("Logger configured successfully.")

	modules := o.modules
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(a.registry)
	}
	a.logger.Debug("All node modules registered.", "count", len(modules), "types", a.registry.Types())

	backend := o.backend
	if backend == nil {
		b, err := a.openBackend(ctx, cfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to open store: %w", err), a.Close(ctx))
		}
		backend = b
	}

	var caps capability.Set
	if o.caps != nil {
		caps = *o.caps
	} else {
		c, err := a.defaultCapabilities(ctx, cfg, o.output)
		if err != nil {
			return nil, errors.Join(err, a.Close(ctx))
		}
		caps = c
	}

	a.store = workflowstore.New(backend, a.registry, workflowstore.WithEmitter(a.bus))
	if err := a.store.Load(ctx); err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}

	trackerOpts := append([]tracker.Option{
		tracker.WithEmitter(a.bus),
		tracker.WithHistory(cfg.Tracker.History),
		tracker.WithEngineOptions(engine.WithCapabilities(caps)),
	}, o.tracker...)
	t, err := tracker.New(a.store, a.registry, trackerOpts...)
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	a.tracker = t
	a.logger.Debug("Application initialised.", "workflows", len(a.store.List()))
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close stops active runs and releases the store and capabilities.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracker != nil {
		errs = append(errs, a.tracker.Shutdown(ctx))
	}
	for _, fn := range slices.Backward(a.closers) {
		errs = append(errs, fn(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Context returns ctx carrying the application's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Registry returns the node type registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Store returns the workflow store.
func (a *App) Store() *workflowstore.Store { return a.store }

// Tracker returns the run tracker.
func (a *App) Tracker() *tracker.Tracker { return a.tracker }

// Subscribe registers h for every lifecycle event.
func (a *App) Subscribe(h events.Handler) (unsubscribe func()) {
	return a.bus.Subscribe(h)
}

// CreateWorkflow creates an empty, enabled workflow.
func (a *App) CreateWorkflow(ctx context.Context, name string) (model.Workflow, error) {
	return a.store.Create(a.Context(ctx), name)
}

// AddNode adds a node of nodeType to a workflow.
func (a *App) AddNode(ctx context.Context, workflowID, nodeType string, pos model.Position, opts ...workflowstore.NodeOption) (model.Node, error) {
	return a.store.AddNode(a.Context(ctx), workflowID, nodeType, pos, opts...)
}

// Connect links fromPort of node from to toPort of node to.
func (a *App) Connect(ctx context.Context, workflowID, from, fromPort, to, toPort string) (model.Connection, error) {
	return a.store.Connect(a.Context(ctx), workflowID, from, fromPort, to, toPort)
}

// DeleteNode removes a node and every connection touching it.
func (a *App) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	return a.store.DeleteNode(a.Context(ctx), workflowID, nodeID)
}

// Validate reports every definition problem of a workflow.
func (a *App) Validate(workflowID string) error {
	wf, err := a.store.Get(workflowID)
	if err != nil {
		return err
	}
	return graph.New(wf, a.registry).Validate()
}

// Run starts a run of the workflow and returns its id.
func (a *App) Run(ctx context.Context, workflowID string, trigger map[string]any) (string, error) {
	return a.tracker.Start(a.Context(ctx), workflowID, trigger)
}

// Stop halts a run before its next node.
func (a *App) Stop(ctx context.Context, runID string) error {
	return a.tracker.Stop(a.Context(ctx), runID)
}

// RunLog returns the ordered execution log of a run.
func (a *App) RunLog(runID string) ([]model.LogEntry, error) {
	return a.tracker.Log(runID)
}

// RunState returns a snapshot of a run.
func (a *App) RunState(runID string) (model.RunState, error) {
	return a.tracker.State(runID)
}

// Wait blocks until a run has finished.
func (a *App) Wait(ctx context.Context, runID string) (model.RunState, error) {
	return a.tracker.Wait(ctx, runID)
}

// Import reads the HCL workflow files under path and stores them. Workflows
// are validated before anything is stored.
func (a *App) Import(ctx context.Context, path string) ([]model.Workflow, error) {
	ctx = a.Context(ctx)
	wfs, err := hclimport.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, wf := range wfs {
		if err := graph.New(wf, a.registry).Validate(); err != nil {
			return nil, err
		}
	}
	out := make([]model.Workflow, 0, len(wfs))
	for _, wf := range wfs {
		stored, err := a.store.Import(ctx, wf)
		if err != nil {
			return out, err
		}
		out = append(out, stored)
	}
	a.logger.Info("Workflows imported.", "path", path, "count", len(out))
	return out, nil
}
