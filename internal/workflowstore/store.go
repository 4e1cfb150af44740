// Package workflowstore owns the canonical copy of every workflow definition.
//
// All reads return deep copies; all mutations go through a copy-on-write
// helper that serializes edits per workflow id, stamps updatedAt and persists
// the whole collection through a kvstore.Backend before the change becomes
// visible. Different workflows can be edited concurrently.
package workflowstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/events"
	"github.com/vk/flowgrid/internal/kvstore"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Store is the workflow repository.
type Store struct {
	backend  kvstore.Backend
	registry *registry.Registry
	emitter  events.Emitter
	now      func() time.Time
	newID    func() string

	mu        sync.RWMutex
	workflows map[string]model.Workflow

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	saveMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithEmitter publishes workflow-created events to e.
func WithEmitter(e events.Emitter) Option {
	return func(s *Store) { s.emitter = e }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the generator for workflow, node and connection ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates an empty store. Call Load to read the persisted collection.
func New(backend kvstore.Backend, reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		registry:  reg,
		emitter:   events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		workflows: make(map[string]model.Workflow),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory collection with the persisted one. An empty
// backend yields zero workflows.
func (s *Store) Load(ctx context.Context) error {
	wfs, err := s.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}
	loaded := make(map[string]model.Workflow, len(wfs))
	for _, wf := range wfs {
		loaded[wf.ID] = wf.Clone()
	}
	s.saveMu.Lock()
	s.mu.Lock()
	s.workflows = loaded
	s.mu.Unlock()
	s.saveMu.Unlock()
	ctxlog.FromContext(ctx).Debug("Workflows loaded.", "count", len(loaded))
	return nil
}

// Save persists the current collection.
func (s *Store) Save(ctx context.Context) error {
	return s.persist(ctx)
}

// Get returns a copy of the workflow with the given id.
func (s *Store) Get(id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, fmt.Errorf("%w: %q", model.ErrWorkflowNotFound, id)
	}
	return wf.Clone(), nil
}

// List returns copies of all workflows ordered by creation time, then id.
func (s *Store) List() []model.Workflow {
	s.mu.RLock()
	out := make([]model.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Clone())
	}
	s.mu.RUnlock()
	kvstore.SortWorkflows(out)
	return out
}

// Create allocates, stores and persists a new empty, enabled workflow.
func (s *Store) Create(ctx context.Context, name string) (model.Workflow, error) {
	now := s.now()
	return s.insert(ctx, model.Workflow{
		ID:          s.newID(),
		Name:        name,
		Nodes:       []model.Node{},
		Connections: []model.Connection{},
		Variables:   map[string]any{},
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Import stores a complete workflow definition. A missing id or timestamp is
// filled in; an existing workflow with the same id is replaced.
func (s *Store) Import(ctx context.Context, wf model.Workflow) (model.Workflow, error) {
	wf = wf.Clone()
	if wf.ID == "" {
		wf.ID = s.newID()
	}
	now := s.now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	for i := range wf.Connections {
		if wf.Connections[i].ID == "" {
			wf.Connections[i].ID = s.newID()
		}
	}
	return s.insert(ctx, wf)
}

func (s *Store) insert(ctx context.Context, wf model.Workflow) (model.Workflow, error) {
	lock := s.lockFor(wf.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.commit(ctx, wf.ID, &wf); err != nil {
		return model.Workflow{}, err
	}

	ctxlog.FromContext(ctx).Info("Workflow created.", "workflow_id", wf.ID, "name", wf.Name)
	snapshot := wf.Clone()
	s.emitter.Emit(ctx, events.Event{Type: events.WorkflowCreated, At: s.now(), Workflow: &snapshot})
	return wf.Clone(), nil
}

// Delete removes a workflow.
func (s *Store) Delete(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrWorkflowNotFound, id)
	}

	if err := s.commit(ctx, id, nil); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Workflow deleted.", "workflow_id", id)
	return nil
}

// mutate applies fn to a private copy of the workflow while holding the
// workflow's lock. The copy replaces the canonical version only if fn succeeds
// and the collection including it was persisted.
func (s *Store) mutate(ctx context.Context, id string, fn func(wf *model.Workflow) error) (model.Workflow, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	prev, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok {
		return model.Workflow{}, fmt.Errorf("%w: %q", model.ErrWorkflowNotFound, id)
	}

	next := prev.Clone()
	if err := fn(&next); err != nil {
		return model.Workflow{}, err
	}
	next.UpdatedAt = s.now()

	if err := s.commit(ctx, id, &next); err != nil {
		return model.Workflow{}, err
	}
	return next.Clone(), nil
}

// commit persists the collection with id replaced by next, or removed when
// next is nil, and publishes the change only once the backend accepted it.
// Every write to the canonical map happens under saveMu, so a concurrent
// commit never persists another workflow's unaccepted change.
func (s *Store) commit(ctx context.Context, id string, next *model.Workflow) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	staged := make([]model.Workflow, 0, len(s.workflows)+1)
	for wfID, wf := range s.workflows {
		if wfID != id {
			staged = append(staged, wf.Clone())
		}
	}
	s.mu.RUnlock()
	if next != nil {
		staged = append(staged, next.Clone())
	}

	if err := s.save(ctx, staged); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next != nil {
		s.workflows[id] = *next
	} else {
		delete(s.workflows, id)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.save(ctx, s.List())
}

// save writes wfs in list order. Callers hold saveMu.
func (s *Store) save(ctx context.Context, wfs []model.Workflow) error {
	kvstore.SortWorkflows(wfs)
	if err := s.backend.SaveAll(ctx, wfs); err != nil {
		return fmt.Errorf("failed to persist workflows: %w", err)
	}
	return nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}
