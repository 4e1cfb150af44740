package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/registry"
)

func TestTriggers(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	triggers := r.ByCategory(registry.CategoryTrigger)
	require.Len(t, triggers, 3)

	sched, err := r.Lookup("trigger-schedule")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", sched.Defaults["cron"])

	res, err := sched.Behavior.Execute(context.Background(), &registry.Context{Trigger: map[string]any{"who": "me"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "next", res.Output)
	assert.Equal(t, map[string]any{"who": "me"}, res.Data)
}
