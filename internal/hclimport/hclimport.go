// Package hclimport reads workflow definitions written in HCL:
//
//	workflow "demo" {
//	  id        = "demo"            # optional, generated when omitted
//	  enabled   = true              # optional, defaults to true
//	  variables = { x = 1 }
//
//	  node "T" {
//	    type = "trigger-manual"
//	  }
//	  node "A" {
//	    type     = "action-notification"
//	    position = [200, 0]
//	    config   = { message = "x is $${x}" }
//	  }
//
//	  connect {
//	    from = "T.next"
//	    to   = "A.trigger"
//	  }
//	}
//
// Attribute values are literals. Run-time templates inside config strings
// must be escaped as $${...} so HCL leaves them for the engine.
package hclimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/fsutil"
	"github.com/vk/flowgrid/internal/model"
)

// Extension is the file extension of workflow files.
const Extension = ".hcl"

type fileRoot struct {
	Workflows []*workflowBlock `hcl:"workflow,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type workflowBlock struct {
	Name        string          `hcl:"name,label"`
	ID          *string         `hcl:"id,optional"`
	Enabled     *bool           `hcl:"enabled,optional"`
	Variables   hcl.Expression  `hcl:"variables,optional"`
	Nodes       []*nodeBlock    `hcl:"node,block"`
	Connections []*connectBlock `hcl:"connect,block"`
}

type nodeBlock struct {
	ID       string         `hcl:"id,label"`
	Type     string         `hcl:"type"`
	Position []float64      `hcl:"position,optional"`
	Config   hcl.Expression `hcl:"config,optional"`
}

type connectBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Load reads every workflow from path, a file or a directory searched
// recursively.
func Load(ctx context.Context, path string) ([]model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.ResolvePath(path, Extension)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered workflow files.", "path", path, "count", len(files))

	parser := hclparse.NewParser()
	var out []model.Workflow
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		wfs, err := decode(f.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, err)
		}
		out = append(out, wfs...)
	}
	logger.Debug("Workflow files loaded.", "workflows", len(out))
	return out, nil
}

// Parse decodes the workflows in src. filename is only used in diagnostics.
func Parse(src []byte, filename string) ([]model.Workflow, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL %s: %w", filename, diags)
	}
	return decode(f.Body)
}

func decode(body hcl.Body) ([]model.Workflow, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, diags
	}
	out := make([]model.Workflow, 0, len(root.Workflows))
	for _, b := range root.Workflows {
		wf, err := translate(b)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", b.Name, err)
		}
		out = append(out, wf)
	}
	return out, nil
}

func translate(b *workflowBlock) (model.Workflow, error) {
	wf := model.Workflow{
		Name:        b.Name,
		Enabled:     true,
		Nodes:       []model.Node{},
		Connections: []model.Connection{},
	}
	if b.ID != nil {
		wf.ID = *b.ID
	}
	if b.Enabled != nil {
		wf.Enabled = *b.Enabled
	}
	vars, err := literalMap(b.Variables)
	if err != nil {
		return model.Workflow{}, fmt.Errorf("variables: %w", err)
	}
	wf.Variables = vars

	for _, n := range b.Nodes {
		cfg, err := literalMap(n.Config)
		if err != nil {
			return model.Workflow{}, fmt.Errorf("node %q config: %w", n.ID, err)
		}
		node := model.Node{ID: n.ID, Type: n.Type, Config: cfg}
		switch len(n.Position) {
		case 0:
		case 2:
			node.Position = model.Position{X: n.Position[0], Y: n.Position[1]}
		default:
			return model.Workflow{}, fmt.Errorf("node %q: position must be [x, y]", n.ID)
		}
		wf.Nodes = append(wf.Nodes, node)
	}

	for i, c := range b.Connections {
		fromNode, fromPort, err := splitEndpoint(c.From)
		if err != nil {
			return model.Workflow{}, fmt.Errorf("connect #%d from: %w", i+1, err)
		}
		toNode, toPort, err := splitEndpoint(c.To)
		if err != nil {
			return model.Workflow{}, fmt.Errorf("connect #%d to: %w", i+1, err)
		}
		wf.Connections = append(wf.Connections, model.Connection{
			From: model.Source{Node: fromNode, Output: fromPort},
			To:   model.Target{Node: toNode, Input: toPort},
		})
	}
	return wf, nil
}

// splitEndpoint splits "node.port" at its last dot.
func splitEndpoint(s string) (node, port string, err error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%q is not of the form node.port", s)
	}
	return s[:i], s[i+1:], nil
}

// literalMap evaluates an object expression without variables or functions.
// A missing attribute yields an empty map.
func literalMap(e hcl.Expression) (map[string]any, error) {
	if e == nil {
		return map[string]any{}, nil
	}
	v, diags := e.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if v.IsNull() {
		return map[string]any{}, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	raw, err := expr.FromCty(v)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", raw)
	}
	return m, nil
}
