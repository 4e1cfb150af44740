package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/graph"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/testutil"
	"github.com/vk/flowgrid/modules/api"
	"github.com/vk/flowgrid/modules/data"
	"github.com/vk/flowgrid/modules/logic"
	"github.com/vk/flowgrid/modules/notification"
	"github.com/vk/flowgrid/modules/trigger"
)

type harness struct {
	rec   *testutil.RecordingModule
	reg   *registry.Registry
	fakes *testutil.Fakes
}

func newHarness() *harness {
	h := &harness{rec: testutil.NewRecordingModule(), reg: registry.New(), fakes: testutil.NewFakes()}
	for _, m := range []registry.Module{
		&trigger.Module{}, &logic.Module{}, &data.Module{}, &api.Module{}, &notification.Module{}, h.rec,
	} {
		m.Register(h.reg)
	}
	return h
}

func (h *harness) run(t *testing.T, wf model.Workflow, opts ...engine.Option) model.RunState {
	t.Helper()
	ctx, _ := testutil.NewTestContext(t)
	opts = append([]engine.Option{engine.WithCapabilities(h.fakes.Set())}, opts...)
	e := engine.New(h.reg, opts...)
	run := engine.NewRun("run-1", wf.ID, wf.Variables, map[string]any{"source": "test"}, time.Now())
	return e.Execute(ctx, run, graph.New(wf, h.reg))
}

func node(id, typ string, cfg map[string]any) model.Node {
	return model.Node{ID: id, Type: typ, Config: cfg}
}

func edge(from, out, to, in string) model.Connection {
	return model.Connection{ID: from + "." + out + "->" + to + "." + in, From: model.Source{Node: from, Output: out}, To: model.Target{Node: to, Input: in}}
}

func workflow(nodes []model.Node, conns []model.Connection, vars map[string]any) model.Workflow {
	return model.Workflow{ID: "wf", Name: "test", Enabled: true, Nodes: nodes, Connections: conns, Variables: vars}
}

func TestExecute_ConditionBranch(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("C", "logic-condition", map[string]any{"variable": "x", "operator": "==", "value": "1"}),
			node("A", testutil.TypeRecord, nil),
			node("B", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "C", "trigger"),
			edge("C", "true", "A", "in"),
			edge("C", "false", "B", "in"),
		},
		map[string]any{"x": 1},
	)

	state := h.run(t, wf)

	assert.Equal(t, model.RunCompleted, state.Status)
	testutil.AssertLogSteps(t, state,
		"T:start", "T:complete", "C:start", "C:complete", "A:start", "A:complete")
	assert.Equal(t, []string{"A"}, h.rec.Calls())
	assert.Equal(t, map[string]any{"source": "test"}, state.Results["T"].Data)
}

func TestExecute_IsDeterministic(t *testing.T) {
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("A", testutil.TypeRecord, nil),
			node("B", testutil.TypeRecord, nil),
			node("C", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "A", "in"),
			edge("A", "next", "C", "in"),
			edge("T", "next", "B", "in"),
		},
		nil,
	)

	var first []string
	for i := range 5 {
		h := newHarness()
		state := h.run(t, wf)
		require.Equal(t, model.RunCompleted, state.Status)
		if i == 0 {
			first = testutil.LogSteps(state)
			assert.Equal(t, []string{"A", "C", "B"}, h.rec.Calls(), "depth-first in connection order")
			continue
		}
		assert.Equal(t, first, testutil.LogSteps(state))
	}
}

func TestExecute_LoopAccumulatesAcrossIterations(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("L", "logic-loop", map[string]any{"count": 3}),
			node("S", "data-set", map[string]any{"name": "seen", "value": "${concat(seen, [_loopIndex])}"}),
			node("D", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "L", "trigger"),
			edge("L", "iteration", "S", "trigger"),
			edge("L", "complete", "D", "in"),
		},
		map[string]any{"seen": []any{}},
	)

	state := h.run(t, wf)

	require.Equal(t, model.RunCompleted, state.Status, state.Error)
	assert.Equal(t, []any{0, 1, 2}, state.Variables["seen"])
	assert.Equal(t, 2, state.Variables[model.LoopIndexVar])
	testutil.AssertLogSteps(t, state,
		"T:start", "T:complete", "L:start", "L:complete",
		"S:start", "S:complete", "S:start", "S:complete", "S:start", "S:complete",
		"D:start", "D:complete")
}

func TestExecute_LoopWithZeroCountRunsCompleteOnly(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("L", "logic-loop", map[string]any{"count": 0}),
			node("I", testutil.TypeRecord, nil),
			node("D", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "L", "trigger"),
			edge("L", "iteration", "I", "in"),
			edge("L", "complete", "D", "in"),
		},
		nil,
	)

	state := h.run(t, wf)

	assert.Equal(t, model.RunCompleted, state.Status)
	assert.Equal(t, []string{"D"}, h.rec.Calls())
}

func TestExecute_ErrorPortRouting(t *testing.T) {
	cases := []struct {
		name string
		http *testutil.FakeHTTP
	}{
		{"transport error", &testutil.FakeHTTP{Err: errors.New("connection refused")}},
		{"non-2xx status", &testutil.FakeHTTP{Response: &capability.HTTPResponse{Status: 500}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.fakes.HTTP = tc.http
			wf := workflow(
				[]model.Node{
					node("T", "trigger-manual", nil),
					node("API", "action-api", map[string]any{"url": "http://example.invalid"}),
					node("OK", testutil.TypeRecord, nil),
					node("N", "action-notification", map[string]any{"message": "call failed"}),
				},
				[]model.Connection{
					edge("T", "next", "API", "trigger"),
					edge("API", "success", "OK", "in"),
					edge("API", "error", "N", "trigger"),
				},
				nil,
			)

			state := h.run(t, wf)

			assert.Equal(t, model.RunCompleted, state.Status)
			assert.Empty(t, h.rec.Calls())
			assert.False(t, state.Results["API"].Success)
			assert.NotEmpty(t, state.Results["API"].Error)
			require.Len(t, h.fakes.Notifier.Notifications(), 1)
			assert.Equal(t, "call failed", h.fakes.Notifier.Notifications()[0].Message)
		})
	}
}

func TestExecute_FailedResultWithoutPortUsesErrorPort(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("A", testutil.TypeRecord, map[string]any{"output": "", "success": false}),
			node("E", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "A", "in"),
			edge("A", "error", "E", "in"),
		},
		nil,
	)

	state := h.run(t, wf)

	assert.Equal(t, model.RunCompleted, state.Status)
	assert.Equal(t, []string{"A", "E"}, h.rec.Calls())
}

func TestExecute_UnconnectedErrorPortIsTerminal(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("A", testutil.TypeRecord, map[string]any{"output": "error", "success": false}),
		},
		[]model.Connection{edge("T", "next", "A", "in")},
		nil,
	)

	state := h.run(t, wf)

	assert.Equal(t, model.RunCompleted, state.Status)
	assert.Empty(t, state.Error)
}

func TestExecute_BehaviorFailureAbortsRun(t *testing.T) {
	for _, typ := range []string{testutil.TypeFail, testutil.TypePanic} {
		t.Run(typ, func(t *testing.T) {
			h := newHarness()
			wf := workflow(
				[]model.Node{
					node("T", "trigger-manual", nil),
					node("F", typ, nil),
					node("After", testutil.TypeRecord, nil),
				},
				[]model.Connection{
					edge("T", "next", "F", "in"),
					edge("F", "next", "After", "in"),
				},
				nil,
			)

			state := h.run(t, wf)

			assert.Equal(t, model.RunFailed, state.Status)
			assert.Contains(t, state.Error, `node "F"`)
			assert.Equal(t, []string{"F"}, h.rec.Calls())
			testutil.AssertLogSteps(t, state, "T:start", "T:complete", "F:start", "F:error")
			assert.False(t, state.EndedAt.IsZero())
		})
	}
}

func TestExecute_UndeclaredPortFailsRun(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("A", testutil.TypeRecord, map[string]any{"output": "bogus"}),
		},
		[]model.Connection{edge("T", "next", "A", "in")},
		nil,
	)

	state := h.run(t, wf)

	assert.Equal(t, model.RunFailed, state.Status)
	assert.Contains(t, state.Error, model.ErrUnknownOutputPort.Error())
}

func TestExecute_MergeWaitForAll(t *testing.T) {
	build := func(waitForAll bool) model.Workflow {
		return workflow(
			[]model.Node{
				node("T", "trigger-manual", nil),
				node("R1", testutil.TypeRecord, nil),
				node("R2", testutil.TypeRecord, nil),
				node("M", "logic-merge", map[string]any{"waitForAll": waitForAll}),
				node("Out", testutil.TypeRecord, nil),
			},
			[]model.Connection{
				edge("T", "next", "R1", "in"),
				edge("T", "next", "R2", "in"),
				edge("R1", "next", "M", "input1"),
				edge("R2", "next", "M", "input2"),
				edge("M", "next", "Out", "in"),
			},
			nil,
		)
	}

	t.Run("waits", func(t *testing.T) {
		h := newHarness()
		state := h.run(t, build(true))
		require.Equal(t, model.RunCompleted, state.Status)
		testutil.AssertLogSteps(t, state,
			"T:start", "T:complete",
			"R1:start", "R1:complete", "M:waiting",
			"R2:start", "R2:complete", "M:start", "M:complete",
			"Out:start", "Out:complete")
	})

	t.Run("fires per arrival", func(t *testing.T) {
		h := newHarness()
		state := h.run(t, build(false))
		require.Equal(t, model.RunCompleted, state.Status)
		assert.Equal(t, []string{"R1", "Out", "R2", "Out"}, h.rec.Calls())
	})
}

func TestExecute_DefinitionErrors(t *testing.T) {
	h := newHarness()

	t.Run("no trigger", func(t *testing.T) {
		state := h.run(t, workflow([]model.Node{node("A", testutil.TypeRecord, nil)}, nil, nil))
		assert.Equal(t, model.RunFailed, state.Status)
		assert.Contains(t, state.Error, model.ErrNoTrigger.Error())
		assert.Empty(t, state.Log)
	})

	t.Run("unknown type", func(t *testing.T) {
		state := h.run(t, workflow([]model.Node{
			node("T", "trigger-manual", nil),
			node("X", "does-not-exist", nil),
		}, nil, nil))
		assert.Equal(t, model.RunFailed, state.Status)
		assert.Contains(t, state.Error, model.ErrUnknownNodeType.Error())
		assert.Empty(t, state.Log)
	})
}

func TestExecute_StepLimitBoundsCycles(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("A", testutil.TypeRecord, nil),
			node("B", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "A", "in"),
			edge("A", "next", "B", "in"),
			edge("B", "next", "A", "in"),
		},
		nil,
	)

	state := h.run(t, wf, engine.WithMaxSteps(10))

	assert.Equal(t, model.RunFailed, state.Status)
	assert.Contains(t, state.Error, engine.ErrStepLimit.Error())
	assert.Len(t, h.rec.Calls(), 9)
}

func TestExecute_StopHaltsRun(t *testing.T) {
	h := newHarness()
	wf := workflow(
		[]model.Node{
			node("T", "trigger-manual", nil),
			node("Block", testutil.TypeBlock, nil),
			node("After", testutil.TypeRecord, nil),
		},
		[]model.Connection{
			edge("T", "next", "Block", "in"),
			edge("Block", "next", "After", "in"),
		},
		nil,
	)

	ctx, _ := testutil.NewTestContext(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e := engine.New(h.reg)
	run := engine.NewRun("run-stop", wf.ID, nil, nil, time.Now())
	run.SetCancel(cancel)

	var state model.RunState
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		state = e.Execute(ctx, run, graph.New(wf, h.reg))
	}()

	select {
	case <-h.rec.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking node never started")
	}
	require.True(t, run.Stop(time.Now()))
	wg.Wait()

	assert.Equal(t, model.RunStopped, state.Status)
	assert.Equal(t, []string{"Block"}, h.rec.Calls())
	assert.False(t, run.Stop(time.Now()), "stopping twice is a no-op")
	<-run.Done()
}

type countingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (o *countingObserver) NodeStarted(_ context.Context, _ *engine.Run, n model.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, n.ID)
}

func (o *countingObserver) NodeFinished(_ context.Context, _ *engine.Run, n model.Node, _ model.NodeResult, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, n.ID)
}

func TestExecute_NotifiesObserver(t *testing.T) {
	h := newHarness()
	obs := &countingObserver{}
	wf := workflow(
		[]model.Node{node("T", "trigger-manual", nil), node("A", testutil.TypeRecord, nil)},
		[]model.Connection{edge("T", "next", "A", "in")},
		nil,
	)

	h.run(t, wf, engine.WithObserver(obs))

	assert.Equal(t, []string{"T", "A"}, obs.started)
	assert.Equal(t, []string{"T", "A"}, obs.finished)
}
