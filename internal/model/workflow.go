// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "time"

// Position is the 2-D canvas location of a node. Presentation only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a configured instance of a registered node type.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// Source identifies the output port an edge leaves from.
type Source struct {
	Node   string `json:"node"`
	Output string `json:"output"`
}

// Target identifies the input port an edge arrives at.
type Target struct {
	Node  string `json:"node"`
	Input string `json:"input"`
}

// Connection is a directed, labeled edge between two node ports.
type Connection struct {
	ID   string `json:"id"`
	From Source `json:"from"`
	To   Target `json:"to"`
}

// Touches reports whether the connection references nodeID on either side.
func (c Connection) Touches(nodeID string) bool {
	return c.From.Node == nodeID || c.To.Node == nodeID
}

// Workflow is the durable definition of a node graph.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Nodes       []Node         `json:"nodes"`
	Connections []Connection   `json:"connections"`
	Variables   map[string]any `json:"variables"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the workflow. Mutations of the copy, including
// of nested configuration values, never reach the original.
func (w Workflow) Clone() Workflow {
	out := w
	out.Variables = CloneMap(w.Variables)
	out.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		n.Config = CloneMap(n.Config)
		out.Nodes[i] = n
	}
	out.Connections = append([]Connection(nil), w.Connections...)
	if out.Connections == nil {
		out.Connections = []Connection{}
	}
	return out
}
