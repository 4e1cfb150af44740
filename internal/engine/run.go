package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/model"
)

// Run is the mutable state of one execution. The engine walker is its only
// writer; observers and trackers read it through Snapshot from any goroutine.
type Run struct {
	id         string
	workflowID string
	trigger    map[string]any
	vars       *model.Scope
	done       chan struct{}

	mu        sync.Mutex
	status    model.RunStatus
	startedAt time.Time
	endedAt   time.Time
	errMsg    string
	results   map[string]model.NodeResult
	log       []model.LogEntry
	arrivals  map[string]map[string]bool
	cancel    context.CancelFunc
	finished  bool
}

// NewRun allocates the state of a run in status running. The variable scope
// is seeded with a copy of vars.
func NewRun(id, workflowID string, vars, trigger map[string]any, startedAt time.Time) *Run {
	return &Run{
		id:         id,
		workflowID: workflowID,
		trigger:    model.CloneMap(trigger),
		vars:       model.NewScope(vars),
		done:       make(chan struct{}),
		status:     model.RunRunning,
		startedAt:  startedAt,
		results:    make(map[string]model.NodeResult),
		arrivals:   make(map[string]map[string]bool),
	}
}

// ID is the run identifier.
func (r *Run) ID() string { return r.id }

// WorkflowID is the id of the executed workflow.
func (r *Run) WorkflowID() string { return r.workflowID }

// Vars is the run's shared variable scope.
func (r *Run) Vars() *model.Scope { return r.vars }

// Done is closed when the walker has returned.
func (r *Run) Done() <-chan struct{} { return r.done }

// Status returns the current status.
func (r *Run) Status() model.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetCancel registers the function Stop calls to cancel in-flight behaviors.
func (r *Run) SetCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
}

// Stop marks the run stopped and cancels its context. No further node is
// dispatched afterwards; a behavior already executing finishes unless it
// honours cancellation. It reports false if the run had already ended.
func (r *Run) Stop(at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.status = model.RunStopped
	r.endedAt = at
	if r.cancel != nil {
		r.cancel()
	}
	return true
}

func (r *Run) halted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == model.RunStopped
}

// finish records the final status unless the run was stopped, and releases
// Done exactly once.
func (r *Run) finish(status model.RunStatus, errMsg string, at time.Time) {
	r.mu.Lock()
	if r.status != model.RunStopped {
		r.status = status
		r.errMsg = errMsg
		r.endedAt = at
	}
	already := r.finished
	r.finished = true
	r.mu.Unlock()
	if !already {
		close(r.done)
	}
}

func (r *Run) appendLog(e model.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, e)
}

func (r *Run) record(nodeID string, res model.NodeResult) {
	res.Data = model.CloneValue(res.Data)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[nodeID] = res
}

// Result returns the last result recorded for nodeID.
func (r *Run) Result(nodeID string) (model.NodeResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[nodeID]
	if ok {
		res.Data = model.CloneValue(res.Data)
	}
	return res, ok
}

// arrive records that nodeID was reached through input and reports whether
// every port in required has now been reached. A complete set is reset so the
// node can fire again on the next round of arrivals.
func (r *Run) arrive(nodeID, input string, required []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := r.arrivals[nodeID]
	if seen == nil {
		seen = make(map[string]bool)
		r.arrivals[nodeID] = seen
	}
	seen[input] = true
	for _, p := range required {
		if !seen[p] {
			return false
		}
	}
	delete(r.arrivals, nodeID)
	return true
}

// Snapshot returns a deep copy of the run's state.
func (r *Run) Snapshot() model.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make(map[string]model.NodeResult, len(r.results))
	for id, res := range r.results {
		res.Data = model.CloneValue(res.Data)
		results[id] = res
	}
	log := make([]model.LogEntry, len(r.log))
	for i, e := range r.log {
		if e.Result != nil {
			res := *e.Result
			res.Data = model.CloneValue(res.Data)
			e.Result = &res
		}
		log[i] = e
	}
	return model.RunState{
		ID:         r.id,
		WorkflowID: r.workflowID,
		Status:     r.status,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
		Error:      r.errMsg,
		Trigger:    model.CloneMap(r.trigger),
		Variables:  r.vars.Snapshot(),
		Results:    results,
		Log:        log,
	}
}
