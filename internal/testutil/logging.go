package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// LogsEnv enables dumping captured logs at the end of every test.
const LogsEnv = "FLOWGRID_TEST_LOGS"

// NewTestContext returns a context carrying a debug logger that writes into
// the returned buffer. With FLOWGRID_TEST_LOGS=true the buffer is printed when
// the test finishes.
func NewTestContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv(LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}
