// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the error taxonomy. Lookup failures are sentinels meant
// for errors.Is; definition problems are collected into a DefinitionError so a
// workflow author sees every broken node and edge at once; behavior failures
// are wrapped in NodeExecutionError so the run log can name the culprit.

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrNodeNotFound       = errors.New("node not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrRunNotFound        = errors.New("run not found")
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrUnknownOutputPort  = errors.New("unknown output port")
	ErrUnknownInputPort   = errors.New("unknown input port")
	ErrNoTrigger          = errors.New("no trigger node found")
	ErrWorkflowDisabled   = errors.New("workflow is disabled")
	ErrDuplicateNode      = errors.New("duplicate node id")
	ErrInvalidExpression  = errors.New("invalid expression")
)

// DefinitionError aggregates every configuration problem found in a workflow.
// It unwraps to each individual problem, so errors.Is(err, ErrUnknownNodeType)
// works on the aggregate.
type DefinitionError struct {
	WorkflowID string
	Problems   []error
}

func (e *DefinitionError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("workflow %q has invalid definition:\n- %s", e.WorkflowID, strings.Join(msgs, "\n- "))
}

func (e *DefinitionError) Unwrap() []error {
	return e.Problems
}

// NodeExecutionError reports that a node behavior failed unexpectedly. It
// aborts the whole run.
type NodeExecutionError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}
