package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "first:"+string(ev.Type)) })
	bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "second:"+string(ev.Type)) })

	bus.Emit(context.Background(), Event{Type: ExecutionStarted})

	assert.Equal(t, []string{"first:execution-started", "second:execution-started"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	count := 0
	unsubscribe := bus.Subscribe(func(context.Context, Event) { count++ })

	bus.Emit(context.Background(), Event{Type: WorkflowCreated})
	unsubscribe()
	bus.Emit(context.Background(), Event{Type: WorkflowCreated})

	assert.Equal(t, 1, count)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	var delivered Event
	bus.Subscribe(func(context.Context, Event) { panic("boom") })
	bus.Subscribe(func(_ context.Context, ev Event) { delivered = ev })

	require.NotPanics(t, func() {
		bus.Emit(context.Background(), Event{Type: ExecutionFailed})
	})
	assert.Equal(t, ExecutionFailed, delivered.Type)
	assert.False(t, delivered.At.IsZero(), "timestamp is filled in")
}
