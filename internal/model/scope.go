// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "sync"

// LoopIndexVar is the variable the engine sets before every loop iteration.
const LoopIndexVar = "_loopIndex"

// ResultVar is the variable data-transform stores its value under.
const ResultVar = "_result"

// Scope is the mutable variable store shared by every node of one run. Nodes
// of the same run see each other's writes immediately; loop iterations rely on
// it. The mutex only makes snapshots taken by observers safe while the run
// goroutine writes.
type Scope struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewScope creates a scope seeded with a deep copy of seed.
func NewScope(seed map[string]any) *Scope {
	return &Scope{vars: CloneMap(seed)}
}

// Get returns the value stored under name.
func (s *Scope) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (s *Scope) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Delete removes name from the scope.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Snapshot returns a deep copy of all variables.
func (s *Scope) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMap(s.vars)
}
