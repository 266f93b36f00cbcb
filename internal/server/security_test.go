package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/config"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityMiddleware(DefaultSecurityConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "frame-src 'self'")
	assert.Contains(t, csp, "frame-ancestors 'self'")
	assert.Contains(t, csp, "object-src 'none'")
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestBuildCSPHeaderSkipsEmptyDirectives(t *testing.T) {
	header := buildCSPHeader(&CSPConfig{
		DefaultSrc: []string{"'self'"},
		ScriptSrc:  []string{"'self'", "'unsafe-inline'"},
	})
	assert.Equal(t, "default-src 'self'; script-src 'self' 'unsafe-inline'", header)
}

func TestSecurityConfigFromAppConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 3000
	cfg.Server.AllowedOrigins = []string{"https://pad.example.com"}

	sc := SecurityConfigFromAppConfig(cfg, nil)
	assert.Equal(t, []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://0.0.0.0:3000",
		"https://pad.example.com",
	}, sc.AllowedOrigins)
}

func TestOriginCheck(t *testing.T) {
	allowed := []string{"http://localhost:8080"}

	tests := []struct {
		name    string
		method  string
		origin  string
		referer string
		status  int
	}{
		{name: "get without origin", method: http.MethodGet, status: http.StatusOK},
		{name: "get from anywhere", method: http.MethodGet, origin: "http://evil.com", status: http.StatusOK},
		{name: "post from editor", method: http.MethodPost, origin: "http://localhost:8080", status: http.StatusOK},
		{name: "post from other site", method: http.MethodPost, origin: "http://evil.com", status: http.StatusForbidden},
		{name: "post from other port", method: http.MethodPost, origin: "http://localhost:9999", status: http.StatusForbidden},
		{name: "post with editor referer", method: http.MethodPost, referer: "http://localhost:8080/docs", status: http.StatusOK},
		{name: "post with foreign referer", method: http.MethodPost, referer: "http://evil.com/page", status: http.StatusForbidden},
		{name: "post from cli client", method: http.MethodPost, status: http.StatusOK},
		{name: "delete from other site", method: http.MethodDelete, origin: "null", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := DefaultSecurityConfig()
			sc.AllowedOrigins = allowed
			handler := SecurityMiddleware(sc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/refresh", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServerRejectsCrossOriginWrites(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/bundle", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, testBundle, s.Pipeline().Latest())
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "10.0.0.7", getClientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", getClientIP(req))
}
