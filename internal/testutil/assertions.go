package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/flowgrid/internal/model"
)

// LogSteps renders a run log as "node:phase" strings, dropping timestamps so
// logs of different runs can be compared.
func LogSteps(state model.RunState) []string {
	steps := make([]string, len(state.Log))
	for i, e := range state.Log {
		steps[i] = e.NodeID + ":" + string(e.Phase)
	}
	return steps
}

// AssertLogSteps checks the exact "node:phase" sequence of a run log.
func AssertLogSteps(t *testing.T, state model.RunState, want ...string) {
	t.Helper()
	assert.Equal(t, want, LogSteps(state), "execution log order")
}
