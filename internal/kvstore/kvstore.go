package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vk/flowgrid/internal/model"
)

// DefaultKey is the key the workflow document is stored under.
const DefaultKey = "flowgrid_workflows"

// KV is a minimal byte-oriented key-value store.
type KV interface {
	// Get returns the value under key. A missing key is reported with ok false
	// and no error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Backend is the durable whole-collection capability the workflow store
// persists through.
type Backend interface {
	LoadAll(ctx context.Context) ([]model.Workflow, error)
	SaveAll(ctx context.Context, workflows []model.Workflow) error
}

// document is the on-disk shape.
type document struct {
	Workflows map[string]model.Workflow `json:"workflows"`
}

// Collection implements Backend on top of a KV.
type Collection struct {
	kv  KV
	key string
}

// NewCollection returns a Backend storing the document under key, or under
// DefaultKey when key is empty.
func NewCollection(kv KV, key string) *Collection {
	if key == "" {
		key = DefaultKey
	}
	return &Collection{kv: kv, key: key}
}

// LoadAll reads every workflow, ordered by creation time and then id. An empty
// or missing document yields zero workflows.
func (c *Collection) LoadAll(ctx context.Context) ([]model.Workflow, error) {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", c.key, err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return []model.Workflow{}, nil
	}
	return Decode(raw)
}

// SaveAll replaces the stored document with workflows.
func (c *Collection) SaveAll(ctx context.Context, workflows []model.Workflow) error {
	raw, err := Encode(workflows)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, c.key, raw); err != nil {
		return fmt.Errorf("failed to write key %q: %w", c.key, err)
	}
	return nil
}

// Encode serializes workflows into the document shape.
func Encode(workflows []model.Workflow) ([]byte, error) {
	doc := document{Workflows: make(map[string]model.Workflow, len(workflows))}
	for _, wf := range workflows {
		doc.Workflows[wf.ID] = wf
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflows: %w", err)
	}
	return raw, nil
}

// Decode parses a document. Whole numbers inside configurations and variables
// decode as int, other numbers as float64.
func Decode(raw []byte) ([]model.Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode workflows: %w", err)
	}

	out := make([]model.Workflow, 0, len(doc.Workflows))
	for id, wf := range doc.Workflows {
		if wf.ID == "" {
			wf.ID = id
		}
		wf.Variables = normalizeMap(wf.Variables)
		if wf.Nodes == nil {
			wf.Nodes = []model.Node{}
		}
		for i := range wf.Nodes {
			wf.Nodes[i].Config = normalizeMap(wf.Nodes[i].Config)
		}
		if wf.Connections == nil {
			wf.Connections = []model.Connection{}
		}
		out = append(out, wf)
	}
	SortWorkflows(out)
	return out, nil
}

// SortWorkflows orders workflows by creation time, then id.
func SortWorkflows(wfs []model.Workflow) {
	sort.SliceStable(wfs, func(i, j int) bool {
		if !wfs[i].CreatedAt.Equal(wfs[j].CreatedAt) {
			return wfs[i].CreatedAt.Before(wfs[j].CreatedAt)
		}
		return wfs[i].ID < wfs[j].ID
	})
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	for k, v := range m {
		m[k] = normalize(v)
	}
	return m
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return normalizeMap(t)
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	default:
		return v
	}
}
