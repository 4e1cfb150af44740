package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/vk/flowgrid/internal/events"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/testutil"
	"github.com/vk/flowgrid/modules/data"
	"github.com/vk/flowgrid/modules/trigger"
)

type mapSource map[string]model.Workflow

func (s mapSource) Get(id string) (model.Workflow, error) {
	wf, ok := s[id]
	if !ok {
		return model.Workflow{}, fmt.Errorf("workflow %q: %w", id, model.ErrWorkflowNotFound)
	}
	return wf.Clone(), nil
}

type recorder struct {
	mu    sync.Mutex
	types []events.Type
}

func (r *recorder) handle(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.Type)
}

func (r *recorder) seen() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Type(nil), r.types...)
}

type fixture struct {
	ctx     context.Context
	rec     *testutil.RecordingModule
	source  mapSource
	tracker *Tracker
	events  *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx, _ := testutil.NewTestContext(t)
	rec := testutil.NewRecordingModule()
	reg := registry.New()
	for _, m := range []registry.Module{&trigger.Module{}, &data.Module{}, rec} {
		m.Register(reg)
	}
	bus := events.NewBus()
	evs := &recorder{}
	bus.Subscribe(evs.handle)

	src := mapSource{}
	opts = append([]Option{WithEmitter(bus), WithMeterProvider(noop.NewMeterProvider())}, opts...)
	tr, err := New(src, reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rec.Unblock()
		_ = tr.Shutdown(ctx)
	})
	return &fixture{ctx: ctx, rec: rec, source: src, tracker: tr, events: evs}
}

func chain(id string, second model.Node) model.Workflow {
	return model.Workflow{
		ID:      id,
		Enabled: true,
		Nodes:   []model.Node{{ID: "T", Type: "trigger-manual"}, second},
		Connections: []model.Connection{{
			ID:   "c1",
			From: model.Source{Node: "T", Output: "next"},
			To:   model.Target{Node: second.ID, Input: "in"},
		}},
	}
}

func TestStart_RunsToCompletion(t *testing.T) {
	f := newFixture(t)
	f.source["wf"] = chain("wf", model.Node{ID: "A", Type: testutil.TypeRecord})

	id, err := f.tracker.Start(f.ctx, "wf", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	state, err := f.tracker.Wait(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, state.Status)
	assert.Equal(t, map[string]any{"k": "v"}, state.Trigger)
	assert.False(t, f.tracker.IsRunning(id))

	log, err := f.tracker.Log(id)
	require.NoError(t, err)
	assert.Len(t, log, 4)

	assert.Equal(t, []events.Type{
		events.ExecutionStarted,
		events.NodeStarted, events.NodeCompleted,
		events.NodeStarted, events.NodeCompleted,
		events.ExecutionCompleted,
	}, f.events.seen())
}

func TestStart_Rejections(t *testing.T) {
	f := newFixture(t)
	disabled := chain("off", model.Node{ID: "A", Type: testutil.TypeRecord})
	disabled.Enabled = false
	f.source["off"] = disabled
	f.source["broken"] = chain("broken", model.Node{ID: "A", Type: "no-such-type"})
	unsafe := chain("unsafe", model.Node{ID: "X", Type: "data-transform", Config: map[string]any{"expression": `file("/etc/passwd")`}})
	unsafe.Connections[0].To.Input = "trigger"
	f.source["unsafe"] = unsafe

	_, err := f.tracker.Start(f.ctx, "missing", nil)
	assert.ErrorIs(t, err, model.ErrWorkflowNotFound)

	_, err = f.tracker.Start(f.ctx, "off", nil)
	assert.ErrorIs(t, err, model.ErrWorkflowDisabled)

	_, err = f.tracker.Start(f.ctx, "broken", nil)
	assert.ErrorIs(t, err, model.ErrUnknownNodeType)
	var defErr *model.DefinitionError
	assert.ErrorAs(t, err, &defErr)

	_, err = f.tracker.Start(f.ctx, "unsafe", nil)
	assert.ErrorIs(t, err, model.ErrInvalidExpression)

	assert.Empty(t, f.tracker.ListActive())
	assert.Empty(t, f.events.seen())
}

func TestStart_NoTriggerEndsFailed(t *testing.T) {
	f := newFixture(t)
	f.source["wf"] = model.Workflow{ID: "wf", Enabled: true, Nodes: []model.Node{{ID: "A", Type: testutil.TypeRecord}}}

	id, err := f.tracker.Start(f.ctx, "wf", nil)
	require.NoError(t, err)

	state, err := f.tracker.Wait(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, state.Status)
	assert.Contains(t, state.Error, model.ErrNoTrigger.Error())
	assert.Contains(t, f.events.seen(), events.ExecutionFailed)
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	f.source["wf"] = chain("wf", model.Node{ID: "B", Type: testutil.TypeBlock})

	id, err := f.tracker.Start(f.ctx, "wf", nil)
	require.NoError(t, err)
	<-f.rec.Started

	assert.True(t, f.tracker.IsRunning(id))
	assert.Equal(t, []string{id}, f.tracker.ListActive())

	require.NoError(t, f.tracker.Stop(f.ctx, id))
	assert.False(t, f.tracker.IsRunning(id), "stopped runs leave the active set at once")
	assert.Empty(t, f.tracker.ListActive())
	assert.ErrorIs(t, f.tracker.Stop(f.ctx, id), model.ErrRunNotFound)

	state, err := f.tracker.Wait(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, state.Status)
	assert.Contains(t, f.events.seen(), events.ExecutionStopped)
}

func TestStop_AnnouncesWhileNodeIgnoresCancellation(t *testing.T) {
	f := newFixture(t)
	f.source["wf"] = chain("wf", model.Node{ID: "S", Type: testutil.TypeStubborn})

	id, err := f.tracker.Start(f.ctx, "wf", nil)
	require.NoError(t, err)
	<-f.rec.Started

	require.NoError(t, f.tracker.Stop(f.ctx, id))

	assert.Equal(t, []events.Type{
		events.ExecutionStarted,
		events.NodeStarted, events.NodeCompleted,
		events.NodeStarted,
		events.ExecutionStopped,
	}, f.events.seen(), "the stop is announced while the node is still executing")
	state, err := f.tracker.State(id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, state.Status)

	f.rec.Unblock()
	state, err = f.tracker.Wait(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, state.Status)

	stops := 0
	for _, typ := range f.events.seen() {
		if typ == events.ExecutionStopped {
			stops++
		}
	}
	assert.Equal(t, 1, stops, "a stopped run is announced once")
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(t, WithHistory(2))
	f.source["wf"] = chain("wf", model.Node{ID: "A", Type: testutil.TypeRecord})

	var ids []string
	for range 3 {
		id, err := f.tracker.Start(f.ctx, "wf", nil)
		require.NoError(t, err)
		_, err = f.tracker.Wait(f.ctx, id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := f.tracker.State(ids[0])
	assert.ErrorIs(t, err, model.ErrRunNotFound)
	for _, id := range ids[1:] {
		_, err := f.tracker.State(id)
		assert.NoError(t, err)
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	f := newFixture(t)
	wf := chain("wf", model.Node{ID: "S", Type: "data-set", Config: map[string]any{"name": "mark", "value": "${who}"}})
	wf.Connections[0].To.Input = "trigger"
	wf.Variables = map[string]any{"who": "nobody"}
	f.source["wf"] = wf

	const n = 20
	ids := make([]string, n)
	for i := range n {
		id, err := f.tracker.Start(f.ctx, "wf", nil)
		require.NoError(t, err)
		ids[i] = id
	}

	seen := map[string]bool{}
	for _, id := range ids {
		state, err := f.tracker.Wait(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RunCompleted, state.Status)
		assert.Equal(t, "nobody", state.Variables["mark"])
		assert.False(t, seen[id], "run ids are unique")
		seen[id] = true
	}
	assert.Equal(t, map[string]any{"who": "nobody"}, f.source["wf"].Variables, "workflow variables are never written")
}

func TestShutdownStopsActiveRuns(t *testing.T) {
	f := newFixture(t)
	f.source["wf"] = chain("wf", model.Node{ID: "B", Type: testutil.TypeBlock})

	id, err := f.tracker.Start(f.ctx, "wf", nil)
	require.NoError(t, err)
	<-f.rec.Started

	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.tracker.Shutdown(ctx))

	state, err := f.tracker.State(id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, state.Status)
}

func TestWait_UnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.Wait(f.ctx, "nope")
	assert.ErrorIs(t, err, model.ErrRunNotFound)
}
