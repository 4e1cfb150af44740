// Package kvstore persists the whole workflow collection as a single JSON
// document under one key of a key-value backend:
//
//	{ "workflows": { "<id>": { "name": ..., "nodes": [...], ... } } }
//
// The backends (memory, file, postgres) only move opaque bytes; encoding and
// decoding live in Collection so every backend stores the same shape.
package kvstore
