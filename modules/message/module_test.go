package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/expr"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/testutil"
)

func newContext(msg string, caps capability.Set) *registry.Context {
	return &registry.Context{
		Config: map[string]any{"message": msg},
		Vars:   model.NewScope(map[string]any{"name": "Ada"}),
		Caps:   caps,
		Expr:   expr.New(),
	}
}

func TestSendMessage_RendersAndDelivers(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	fakes := testutil.NewFakes()

	res, err := onSendMessage(ctx, newContext("hello ${name}", fakes.Set()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "success", res.Output)
	assert.Equal(t, []string{"hello Ada"}, fakes.Messenger.Messages())
}

func TestSendMessage_FailureRoutesToErrorPort(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	fakes := testutil.NewFakes()
	fakes.Messenger.Err = errors.New("chat offline")

	res, err := onSendMessage(ctx, newContext("hi", fakes.Set()))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "error", res.Output)
	assert.Equal(t, "chat offline", res.Error)
}

func TestSendMessage_WithoutCapabilityStillSucceeds(t *testing.T) {
	ctx, logs := testutil.NewTestContext(t)

	res, err := onSendMessage(ctx, newContext("quiet", capability.Set{}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "success", res.Output)
	assert.Equal(t, map[string]any{"message": "quiet", "delivered": false}, res.Data)
	assert.Contains(t, logs.String(), "No chat capability configured")
}

func TestModule_RegistersPorts(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	def, err := r.Lookup("action-message")
	require.NoError(t, err)
	assert.True(t, def.HasInput("trigger"))
	assert.True(t, def.HasOutput("success"))
	assert.True(t, def.HasOutput("error"))
}

func TestSocketIOMessenger_CancelledContext(t *testing.T) {
	m, err := NewSocketIOMessenger(Config{URL: "http://127.0.0.1:1/socket.io/", ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.SendMessage(ctx, "hello")
	require.Error(t, err)
}

func TestNewSocketIOMessenger_Defaults(t *testing.T) {
	_, err := NewSocketIOMessenger(Config{})
	assert.Error(t, err)

	m, err := NewSocketIOMessenger(Config{URL: "http://localhost:3000/socket.io/"})
	require.NoError(t, err)
	assert.Equal(t, "/", m.cfg.Namespace)
	assert.Equal(t, DefaultEvent, m.cfg.Event)
	assert.Positive(t, m.cfg.ConnectTimeout)
	assert.NoError(t, m.Close())
}
