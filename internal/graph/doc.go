// Package graph provides the read-only structural view of one workflow that
// the execution engine walks.
//
// # Why Graph Package Exists
//
// The workflow store owns the canonical, mutable definition. A run must never
// observe edits made while it executes, so the engine works on a Graph: a
// deep-copied snapshot of the workflow, indexed for the queries the walker
// needs, with every node already resolved against the registry.
//
//	┌──────────────────┐   Clone()   ┌──────────────────────────┐
//	│  workflowstore   │ ──────────▶ │          Graph           │
//	│ (canonical copy) │             │  nodes by id             │
//	└──────────────────┘             │  edges by (node, port)   │
//	                                 │  definitions by node id  │
//	                                 └────────────┬─────────────┘
//	                                              │ Successors / FindTrigger
//	                                              ▼
//	                                        engine walker
//
// # Queries
//
//   - FindTrigger: the entry node of a run.
//   - Successors: the connections leaving one output port, in definition order.
//     The walker visits them in exactly this order.
//   - ConnectedInputs: the input ports of a node that have at least one
//     inbound connection, used by merge nodes that wait for all inputs.
//
// # Validation
//
// Validate collects every definition problem (unknown node types, connections
// to missing nodes or undeclared ports) into one *model.DefinitionError so a
// workflow author sees all of them at once. A workflow that fails validation
// is never started.
//
// A Graph is immutable after New and safe for concurrent use.
package graph
