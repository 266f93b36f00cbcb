package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/testutils"
	"github.com/conneroisu/livepad/internal/watcher"
)

const testOrigin = "http://localhost:8080"

var testBundle = bundle.Bundle{
	Markup: "<h1>Hi</h1>",
	Style:  "h1{color:red}",
	Script: "console.log('hi')",
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Preview.RefreshDelay = 0
	cfg.Editor.DefaultContent = config.ContentConfig{
		HTML:       testBundle.Markup,
		CSS:        testBundle.Style,
		JavaScript: testBundle.Script,
	}
	return cfg
}

// newTestServer returns a mounted server that has rendered its initial bundle.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *monitoring.Metrics) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	metrics := monitoring.NewMetrics()
	s, err := New(Options{Config: cfg, Metrics: metrics})
	require.NoError(t, err)
	require.NoError(t, s.Mount())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, metrics
}

// do sends a request through the full middleware chain. Non-GET requests
// carry the editor's origin.
func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if method != http.MethodGet {
		req.Header.Set("Origin", testOrigin)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestMountRendersInitialBundle(t *testing.T) {
	s, _ := newTestServer(t, nil)

	doc, rev := s.frame.Current()
	assert.Equal(t, uint64(1), rev)
	assert.Contains(t, doc, "<h1>Hi</h1>")
	assert.Contains(t, doc, "h1{color:red}")

	state := s.Pipeline().State()
	assert.Equal(t, preview.StatusIdle, state.Status)
	assert.Equal(t, uint64(1), state.Renders)
}

func TestNewLoadsWorkspace(t *testing.T) {
	dir := testutils.CreateTempWorkspace(t, bundle.Bundle{Markup: "<p>from disk</p>"})
	cfg := testConfig()
	cfg.Workspace.Dir = dir

	ws, err := watcher.NewWorkspace(cfg.Workspace.Files())
	require.NoError(t, err)

	s, err := New(Options{Config: cfg, Workspace: ws})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.Equal(t, "<p>from disk</p>", s.Pipeline().Latest().Markup)
	assert.Contains(t, s.health.Names(), "workspace")
}

func TestStartServesAndShutsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.Open = true

	opened := make(chan string, 1)
	s, err := New(Options{Config: cfg, OpenBrowser: func(url string) error {
		opened <- url
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var url string
	select {
	case url = <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("browser was not opened")
	}
	assert.Equal(t, "http://"+s.Addr(), url)

	resp, err := http.Get(url + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, s.frame.Mounted())
}

func TestShutdownIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t, nil)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))

	rec := do(t, s, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
