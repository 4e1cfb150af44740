package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vk/flowgrid/internal/kvstore"
	"github.com/vk/flowgrid/internal/model"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("flowgrid"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	store := New(pool)

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte("one")))
		require.NoError(t, store.Set(ctx, "k", []byte("two")))
		v, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "two", string(v))
	})

	t.Run("workflow collection round trip", func(t *testing.T) {
		backend := kvstore.NewCollection(store, "")
		empty, err := backend.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		wfs := []model.Workflow{{
			ID:          uuid.NewString(),
			Name:        "pg",
			Nodes:       []model.Node{{ID: "t", Type: "trigger-manual", Config: map[string]any{}}},
			Connections: []model.Connection{},
			Variables:   map[string]any{"x": 1},
			Enabled:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}}
		require.NoError(t, backend.SaveAll(ctx, wfs))

		loaded, err := backend.LoadAll(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(wfs, loaded); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}
