package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parlor-server/internal/config"
	"parlor-server/internal/core"
	"parlor-server/internal/log"
	"parlor-server/internal/store/sqlite"
)

// newTestServer boots the full HTTP stack on an ephemeral port with an
// in-memory store and the rate limiter disabled.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.WriteTimeout = time.Second
	cfg.DebugLogPerMinute = 0
	return newTestServerWithConfig(t, cfg)
}

// newTestServerWithConfig is newTestServer with caller-chosen config.
// Cleanup closes the listener first so handlers have drained before
// the registry and store go away.
func newTestServerWithConfig(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	logger := log.Nop()
	registry := core.NewRegistry(logger)

	srv := NewServer(registry, st, cfg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		registry.Shutdown()
		if err := st.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	return ts
}

// wsURL rewrites a test server's base URL into its WebSocket form.
func wsURL(ts *httptest.Server, path string) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + path
}
