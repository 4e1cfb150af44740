// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowClone_IsDeep(t *testing.T) {
	wf := Workflow{
		ID:   "wf",
		Name: "demo",
		Nodes: []Node{{
			ID:     "a",
			Type:   "action-api",
			Config: map[string]any{"headers": map[string]any{"X": "1"}, "list": []any{1, 2}},
		}},
		Connections: []Connection{{ID: "c1", From: Source{Node: "a", Output: "success"}, To: Target{Node: "b", Input: "trigger"}}},
		Variables:   map[string]any{"x": 1},
	}

	clone := wf.Clone()
	clone.Nodes[0].Config["headers"].(map[string]any)["X"] = "2"
	clone.Nodes[0].Config["list"].([]any)[0] = 99
	clone.Connections[0].To.Node = "z"
	clone.Variables["x"] = 2

	assert.Equal(t, "1", wf.Nodes[0].Config["headers"].(map[string]any)["X"])
	assert.Equal(t, 1, wf.Nodes[0].Config["list"].([]any)[0])
	assert.Equal(t, "b", wf.Connections[0].To.Node)
	assert.Equal(t, 1, wf.Variables["x"])
}

func TestMergeConfig(t *testing.T) {
	defaults := map[string]any{"method": "GET", "url": ""}
	merged := MergeConfig(defaults, map[string]any{"url": "http://x"})

	assert.Equal(t, map[string]any{"method": "GET", "url": "http://x"}, merged)
	assert.Equal(t, "", defaults["url"], "defaults must not be modified")
}

func TestConnectionTouches(t *testing.T) {
	c := Connection{From: Source{Node: "a"}, To: Target{Node: "b"}}
	assert.True(t, c.Touches("a"))
	assert.True(t, c.Touches("b"))
	assert.False(t, c.Touches("c"))
}

func TestScope_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"list": []any{"a"}}
	s := NewScope(seed)
	s.Set("list", []any{"b"})
	s.Set("new", true)

	assert.Equal(t, []any{"a"}, seed["list"])
	_, ok := seed["new"]
	assert.False(t, ok)

	v, ok := s.Get("list")
	require.True(t, ok)
	assert.Equal(t, []any{"b"}, v)

	s.Delete("new")
	_, ok = s.Get("new")
	assert.False(t, ok)
}

func TestScope_ConcurrentAccess(t *testing.T) {
	s := NewScope(nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(fmt.Sprintf("k%d", i), i)
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(), 50)
}

func TestDefinitionError_Unwraps(t *testing.T) {
	err := &DefinitionError{
		WorkflowID: "wf",
		Problems: []error{
			fmt.Errorf("node %q: %w", "x", ErrUnknownNodeType),
			fmt.Errorf("connection %q: %w", "c", ErrUnknownOutputPort),
		},
	}
	assert.True(t, errors.Is(err, ErrUnknownNodeType))
	assert.True(t, errors.Is(err, ErrUnknownOutputPort))
	assert.False(t, errors.Is(err, ErrNoTrigger))
	assert.Contains(t, err.Error(), `workflow "wf"`)
}

func TestRunState_ExecutedAndDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rs := RunState{
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Second),
		Log: []LogEntry{
			{NodeID: "t", Phase: PhaseStart},
			{NodeID: "t", Phase: PhaseComplete},
			{NodeID: "a", Phase: PhaseStart},
			{NodeID: "a", Phase: PhaseComplete},
		},
	}
	assert.Equal(t, []string{"t", "a"}, rs.Executed())
	assert.Equal(t, 2*time.Second, rs.Duration())
	assert.True(t, RunStopped.Terminal())
	assert.False(t, RunRunning.Terminal())
}
