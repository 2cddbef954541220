package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/remotedom/internal/infrastructure/config"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/logging"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Script.PoolSize = 1
	cfg.Surface.FlushDelay = time.Hour
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Close(ctx)
	})
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServerSeedsAndServesSurfaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status.json"),
		[]byte(`{"uri":"ui://status","nodes":[{"element":"p","children":[{"text":"ready"}]}]}`), 0o644))

	cfg := testConfig()
	cfg.Seed.Dir = dir
	srv := newTestServer(t, cfg)

	assert.Equal(t, 1, srv.Seeded().Loaded)
	assert.Equal(t, 2, srv.Seeded().Nodes)

	w := do(t, srv, http.MethodGet, "/surfaces/html?uri=ui://status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>ready</p>", w.Body.String())

	w = do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServerMissingSeedDir(t *testing.T) {
	cfg := testConfig()
	cfg.Seed.Dir = filepath.Join(t.TempDir(), "absent")
	srv := newTestServer(t, cfg)

	assert.Zero(t, srv.Seeded().Loaded)
	assert.Zero(t, srv.Registry().Len())
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	do(t, srv, http.MethodPost, "/surfaces/script?uri=ui://m", `document.root.appendChild(document.createTextNode("x"))`)

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "remotedom_http_requests_total")
	assert.Contains(t, body, "remotedom_surfaces_active 1")
	assert.Contains(t, body, "remotedom_script_executions_total")
}

func TestServerForwardsToWebhook(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig()
	cfg.Webhook.URL = hook.URL
	srv, err := NewServer(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	w := do(t, srv, http.MethodPost, "/surfaces/script?uri=ui://hooked",
		`document.root.appendChild(document.createTextNode("hi")); remote.call("focus")`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `"mutate"`)
	assert.Contains(t, bodies[0], `ui://hooked`)
	assert.Contains(t, bodies[1], `"focus"`)
}

func TestServerUnreachableRedisIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	srv := newTestServer(t, cfg)

	w := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, srv.redis)
}

func TestServerInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Level = "loud"
	_, err := NewServer(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Seed.Dir = t.TempDir()
	cfg.Seed.Pattern = "[unclosed"
	_, err = NewServer(cfg, WithLogger(logging.NewNop()))
	assert.Error(t, err)
}
