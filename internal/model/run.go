// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the artefacts of a single execution: the result reported
// by one node invocation, the ordered execution log, and the run snapshot that
// callers keep for audit once the run has left the tracker.

package model

import "time"

// NodeResult is what a node behavior reports for one invocation. Output names
// the port whose connections fire next.
type NodeResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// LoopCount is only meaningful for loop-flow nodes: the number of times the
	// "iteration" port fires before "complete".
	LoopCount int `json:"loopCount,omitempty"`
}

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// Terminal reports whether no further transitions can happen.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunStopped
}

// Phase tags a log entry.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
	// PhaseWaiting marks an arrival at a merge node that still waits for its
	// other inputs.
	PhaseWaiting Phase = "waiting"
)

// LogEntry is one line of a run's execution log.
type LogEntry struct {
	NodeID    string      `json:"nodeId"`
	NodeName  string      `json:"nodeName"`
	NodeType  string      `json:"nodeType"`
	Phase     Phase       `json:"phase"`
	Timestamp time.Time   `json:"timestamp"`
	Input     string      `json:"input,omitempty"`
	Result    *NodeResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// RunState is a point-in-time snapshot of one execution.
type RunState struct {
	ID         string                `json:"id"`
	WorkflowID string                `json:"workflowId"`
	Status     RunStatus             `json:"status"`
	StartedAt  time.Time             `json:"startedAt"`
	EndedAt    time.Time             `json:"endedAt,omitempty"`
	Error      string                `json:"error,omitempty"`
	Trigger    map[string]any        `json:"trigger,omitempty"`
	Variables  map[string]any        `json:"variables"`
	Results    map[string]NodeResult `json:"results"`
	Log        []LogEntry            `json:"log"`
}

// Duration is the wall time of the run, or of the run so far if it has not ended.
func (r RunState) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Executed returns the ids of nodes that logged a start phase, in log order.
func (r RunState) Executed() []string {
	var ids []string
	for _, e := range r.Log {
		if e.Phase == PhaseStart {
			ids = append(ids, e.NodeID)
		}
	}
	return ids
}
