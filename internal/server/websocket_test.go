package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/preview"
)

func dialEditor(t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Event) bool) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if match(ev) {
			return ev
		}
	}
}

func TestHubCheckOrigin(t *testing.T) {
	hub := NewHub([]string{"http://localhost:8080"}, nil, nil)

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{name: "editor origin", origin: "http://localhost:8080", expected: true},
		{name: "other port", origin: "http://localhost:3000", expected: false},
		{name: "external domain", origin: "http://evil.com", expected: false},
		{name: "empty origin", origin: "", expected: false},
		{name: "malformed origin", origin: "not-a-url", expected: false},
		{name: "javascript protocol", origin: "javascript://localhost:8080", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, hub.checkOrigin(req))
		})
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, resp, err := dialEditor(t, ts, "http://evil.com")
	require.Error(t, err)
	if conn != nil {
		conn.CloseNow()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, s.hub.Clients())
}

func TestWebSocketReceivesPipelineEvents(t *testing.T) {
	s, metrics := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := dialEditor(t, ts, testOrigin)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WSClients))

	require.NoError(t, s.Pipeline().Update(bundle.FragmentMarkup, "<p>live</p>"))

	loading := readUntil(t, conn, func(ev Event) bool { return ev.Type == EventState })
	require.NotNil(t, loading.State)
	assert.Equal(t, preview.StatusLoading, loading.State.Status)

	reload := readUntil(t, conn, func(ev Event) bool { return ev.Type == EventReload })
	assert.Equal(t, uint64(2), reload.Revision)
	assert.False(t, reload.Timestamp.IsZero())

	idle := readUntil(t, conn, func(ev Event) bool { return ev.Type == EventState })
	assert.Equal(t, preview.StatusIdle, idle.State.Status)

	s.Diagnostics().Report(diagnostics.Diagnostic{
		Kind:    diagnostics.KindConsole,
		Level:   "log",
		Message: "hello",
	})
	diag := readUntil(t, conn, func(ev Event) bool { return ev.Type == EventDiagnostic })
	require.NotNil(t, diag.Diagnostic)
	assert.Equal(t, "hello", diag.Diagnostic.Message)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := dialEditor(t, ts, testOrigin)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.hub.Close()
	assert.Zero(t, s.hub.Clients())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	assert.Error(t, err)

	// A closed hub turns new editors away.
	late, _, err := dialEditor(t, ts, testOrigin)
	if err == nil {
		_, _, err = late.Read(ctx)
		late.CloseNow()
	}
	assert.Error(t, err)
	assert.Zero(t, s.hub.Clients())
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	assert.NotPanics(t, func() {
		hub.Broadcast(Event{Type: EventReload, Revision: 1})
	})
}
