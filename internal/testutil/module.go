package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Scripted node types registered by RecordingModule.
const (
	// TypeRecord appends its node id to the recorder. Config "output" picks
	// the port (default "next"), config "success" false reports a failure.
	TypeRecord = "test-record"
	// TypeFail returns an error.
	TypeFail = "test-fail"
	// TypePanic panics.
	TypePanic = "test-panic"
	// TypeBlock signals Started and waits for Release or cancellation.
	TypeBlock = "test-block"
	// TypeStubborn signals Started and waits for Release only; it ignores
	// cancellation.
	TypeStubborn = "test-stubborn"
)

// ErrScripted is the error TypeFail returns.
var ErrScripted = errors.New("scripted failure")

// SimpleModule registers a fixed list of definitions.
type SimpleModule struct {
	Definitions []*registry.Definition
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	for _, def := range m.Definitions {
		r.Register(def)
	}
}

// RecordingModule registers node types with scripted behavior and records
// which nodes ran.
type RecordingModule struct {
	Started chan string
	Release chan struct{}

	mu      sync.Mutex
	calls   []string
	release sync.Once
}

// NewRecordingModule creates a module whose blocking node type reports on a
// buffered Started channel.
func NewRecordingModule() *RecordingModule {
	return &RecordingModule{
		Started: make(chan string, 16),
		Release: make(chan struct{}),
	}
}

// Unblock closes Release. It is safe to call more than once.
func (m *RecordingModule) Unblock() {
	m.release.Do(func() { close(m.Release) })
}

// Calls returns the node ids invoked so far, in order.
func (m *RecordingModule) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *RecordingModule) record(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, id)
}

// Register implements the registry.Module interface.
func (m *RecordingModule) Register(r *registry.Registry) {
	ports := []string{"in"}
	r.Register(&registry.Definition{
		Type:     TypeRecord,
		Name:     "Record",
		Category: registry.CategoryAction,
		Inputs:   ports,
		Outputs:  []string{"next", "alt", "error"},
		Defaults: map[string]any{"output": "next", "success": true},
		Behavior: registry.BehaviorFunc(func(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
			m.record(nc.Node.ID)
			ok := nc.Bool("success")
			res := model.NodeResult{Success: ok, Output: nc.String("output"), Data: nc.Node.ID}
			if !ok {
				res.Error = "scripted business failure"
			}
			return res, nil
		}),
	})
	r.Register(&registry.Definition{
		Type:     TypeFail,
		Name:     "Fail",
		Category: registry.CategoryAction,
		Inputs:   ports,
		Outputs:  []string{"next"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
			m.record(nc.Node.ID)
			return model.NodeResult{}, ErrScripted
		}),
	})
	r.Register(&registry.Definition{
		Type:     TypePanic,
		Name:     "Panic",
		Category: registry.CategoryAction,
		Inputs:   ports,
		Outputs:  []string{"next"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
			m.record(nc.Node.ID)
			panic("scripted panic")
		}),
	})
	r.Register(&registry.Definition{
		Type:     TypeBlock,
		Name:     "Block",
		Category: registry.CategoryAction,
		Inputs:   ports,
		Outputs:  []string{"next"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
			m.record(nc.Node.ID)
			m.Started <- nc.Node.ID
			select {
			case <-m.Release:
			case <-ctx.Done():
			}
			return model.NodeResult{Success: true, Output: "next"}, nil
		}),
	})
	r.Register(&registry.Definition{
		Type:     TypeStubborn,
		Name:     "Stubborn",
		Category: registry.CategoryAction,
		Inputs:   ports,
		Outputs:  []string{"next"},
		Behavior: registry.BehaviorFunc(func(_ context.Context, nc *registry.Context) (model.NodeResult, error) {
			m.record(nc.Node.ID)
			m.Started <- nc.Node.ID
			<-m.Release
			return model.NodeResult{Success: true, Output: "next"}, nil
		}),
	})
}
