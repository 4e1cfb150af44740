package hclimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/testutil"
)

const demo = `
workflow "demo" {
  id        = "demo"
  variables = { x = 1, tags = ["a", "b"] }

  node "T" {
    type = "trigger-manual"
  }
  node "C" {
    type     = "logic-condition"
    position = [100, 50.5]
    config   = { variable = "x", operator = "==", value = "1" }
  }
  node "A" {
    type   = "action-notification"
    config = { message = "x is $${x}" }
  }

  connect {
    from = "T.next"
    to   = "C.trigger"
  }
  connect {
    from = "C.true"
    to   = "A.trigger"
  }
}

workflow "off" {
  enabled = false
}
`

func TestParse(t *testing.T) {
	wfs, err := Parse([]byte(demo), "demo.hcl")
	require.NoError(t, err)
	require.Len(t, wfs, 2)

	want := model.Workflow{
		ID:        "demo",
		Name:      "demo",
		Enabled:   true,
		Variables: map[string]any{"x": 1, "tags": []any{"a", "b"}},
		Nodes: []model.Node{
			{ID: "T", Type: "trigger-manual", Config: map[string]any{}},
			{ID: "C", Type: "logic-condition", Position: model.Position{X: 100, Y: 50.5},
				Config: map[string]any{"variable": "x", "operator": "==", "value": "1"}},
			{ID: "A", Type: "action-notification", Config: map[string]any{"message": "x is ${x}"}},
		},
		Connections: []model.Connection{
			{From: model.Source{Node: "T", Output: "next"}, To: model.Target{Node: "C", Input: "trigger"}},
			{From: model.Source{Node: "C", Output: "true"}, To: model.Target{Node: "A", Input: "trigger"}},
		},
	}
	if diff := cmp.Diff(want, wfs[0]); diff != "" {
		t.Errorf("workflow mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "off", wfs[1].Name)
	assert.False(t, wfs[1].Enabled)
	assert.Empty(t, wfs[1].ID)
	assert.Empty(t, wfs[1].Nodes)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"syntax":        `workflow "x" {`,
		"missing type":  `workflow "x" { node "a" {} }`,
		"bad endpoint":  "workflow \"x\" {\n connect {\n from = \"a\"\n to = \"b.in\"\n }\n}",
		"bad position":  "workflow \"x\" {\n node \"a\" {\n type = \"t\"\n position = [1]\n }\n}",
		"vars not map":  `workflow "x" { variables = [1, 2] }`,
		"uses variable": `workflow "x" { variables = { a = b } }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`workflow "first" {}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "more"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more", "b.hcl"), []byte(`workflow "second" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte(`# not hcl`), 0o644))

	wfs, err := Load(ctx, dir)
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, "first", wfs[0].Name)
	assert.Equal(t, "second", wfs[1].Name)
}

func TestLoad_MissingPath(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}
