// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the plain data types shared by every layer of flowgrid:
// workflow definitions (Workflow, Node, Connection), the per-invocation
// NodeResult, and the run-time artefacts (RunState, LogEntry, Scope).
//
// # Core Concepts
//
//   - Workflow: the durable definition owned by the workflow store. It is an
//     ordered list of Nodes, a list of Connections and the variables used to seed
//     every run.
//
//   - Node: one configured instance of a registered node type. The position is
//     kept only so that editors can round-trip it; the engine never reads it.
//
//   - Connection: a directed edge from a node's named output port to another
//     node's named input port.
//
//   - NodeResult: what a node behavior reports back. The selected output port
//     decides which connections fire next.
//
//   - RunState: an immutable snapshot of one execution, including its ordered log.
//
// Types in this package carry JSON tags matching the on-disk collection format,
// so the key-value backends can encode them without intermediate structs.
package model
