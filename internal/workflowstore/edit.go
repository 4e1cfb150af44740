package workflowstore

import (
	"context"
	"fmt"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
)

// NodeOption customizes a node created by AddNode.
type NodeOption func(*model.Node)

// WithNodeID uses id instead of a generated identifier.
func WithNodeID(id string) NodeOption {
	return func(n *model.Node) { n.ID = id }
}

// WithConfig overlays cfg on the type's default configuration.
func WithConfig(cfg map[string]any) NodeOption {
	return func(n *model.Node) {
		for k, v := range cfg {
			n.Config[k] = model.CloneValue(v)
		}
	}
}

// AddNode appends a node of nodeType to the workflow. The node starts with a
// private copy of the type's default configuration.
func (s *Store) AddNode(ctx context.Context, workflowID, nodeType string, pos model.Position, opts ...NodeOption) (model.Node, error) {
	def, err := s.registry.Lookup(nodeType)
	if err != nil {
		return model.Node{}, err
	}

	node := model.Node{
		ID:       s.newID(),
		Type:     nodeType,
		Position: pos,
		Config:   def.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&node)
	}

	_, err = s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		if _, exists := wf.Node(node.ID); exists {
			return fmt.Errorf("%w: %q", model.ErrDuplicateNode, node.ID)
		}
		wf.Nodes = append(wf.Nodes, node)
		return nil
	})
	if err != nil {
		return model.Node{}, err
	}
	ctxlog.FromContext(ctx).Debug("Node added.", "workflow_id", workflowID, "node_id", node.ID, "node_type", nodeType)
	return model.Node{ID: node.ID, Type: node.Type, Position: node.Position, Config: model.CloneMap(node.Config)}, nil
}

// UpdateNodeConfig merges cfg into the node's configuration.
func (s *Store) UpdateNodeConfig(ctx context.Context, workflowID, nodeID string, cfg map[string]any) (model.Node, error) {
	var updated model.Node
	_, err := s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		n, ok := wf.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: %q", model.ErrNodeNotFound, nodeID)
		}
		n.Config = model.MergeConfig(n.Config, cfg)
		updated = *n
		updated.Config = model.CloneMap(n.Config)
		return nil
	})
	return updated, err
}

// MoveNode changes a node's canvas position.
func (s *Store) MoveNode(ctx context.Context, workflowID, nodeID string, pos model.Position) error {
	_, err := s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		n, ok := wf.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: %q", model.ErrNodeNotFound, nodeID)
		}
		n.Position = pos
		return nil
	})
	return err
}

// Connect adds an edge from an output port to an input port. Both nodes must
// exist and their types must declare the named ports.
func (s *Store) Connect(ctx context.Context, workflowID, fromNode, fromPort, toNode, toPort string) (model.Connection, error) {
	conn := model.Connection{
		ID:   s.newID(),
		From: model.Source{Node: fromNode, Output: fromPort},
		To:   model.Target{Node: toNode, Input: toPort},
	}
	_, err := s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		src, ok := wf.Node(fromNode)
		if !ok {
			return fmt.Errorf("%w: source %q", model.ErrNodeNotFound, fromNode)
		}
		dst, ok := wf.Node(toNode)
		if !ok {
			return fmt.Errorf("%w: destination %q", model.ErrNodeNotFound, toNode)
		}
		srcDef, err := s.registry.Lookup(src.Type)
		if err != nil {
			return err
		}
		if !srcDef.HasOutput(fromPort) {
			return fmt.Errorf("%w: %q on node %q (%s)", model.ErrUnknownOutputPort, fromPort, fromNode, src.Type)
		}
		dstDef, err := s.registry.Lookup(dst.Type)
		if err != nil {
			return err
		}
		if !dstDef.HasInput(toPort) {
			return fmt.Errorf("%w: %q on node %q (%s)", model.ErrUnknownInputPort, toPort, toNode, dst.Type)
		}
		wf.Connections = append(wf.Connections, conn)
		return nil
	})
	if err != nil {
		return model.Connection{}, err
	}
	return conn, nil
}

// Disconnect removes a single connection.
func (s *Store) Disconnect(ctx context.Context, workflowID, connectionID string) error {
	_, err := s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		for i, c := range wf.Connections {
			if c.ID == connectionID {
				wf.Connections = append(wf.Connections[:i], wf.Connections[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %q", model.ErrConnectionNotFound, connectionID)
	})
	return err
}

// DeleteNode removes a node and every connection touching it on either side.
func (s *Store) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	removed := 0
	_, err := s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		idx := -1
		for i := range wf.Nodes {
			if wf.Nodes[i].ID == nodeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %q", model.ErrNodeNotFound, nodeID)
		}
		wf.Nodes = append(wf.Nodes[:idx], wf.Nodes[idx+1:]...)

		kept := make([]model.Connection, 0, len(wf.Connections))
		for _, c := range wf.Connections {
			if c.Touches(nodeID) {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		wf.Connections = kept
		return nil
	})
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Node deleted.", "workflow_id", workflowID, "node_id", nodeID, "connections_removed", removed)
	return nil
}

// Rename changes the workflow's display name.
func (s *Store) Rename(ctx context.Context, workflowID, name string) (model.Workflow, error) {
	return s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		wf.Name = name
		return nil
	})
}

// SetEnabled toggles whether the workflow may run.
func (s *Store) SetEnabled(ctx context.Context, workflowID string, enabled bool) (model.Workflow, error) {
	return s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		wf.Enabled = enabled
		return nil
	})
}

// SetVariables replaces the variables that seed every run.
func (s *Store) SetVariables(ctx context.Context, workflowID string, vars map[string]any) (model.Workflow, error) {
	return s.mutate(ctx, workflowID, func(wf *model.Workflow) error {
		wf.Variables = model.CloneMap(vars)
		return nil
	})
}
