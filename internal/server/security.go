package server

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CSP                 *CSPConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
	AllowedOrigins      []string
	Logger              logging.Logger
}

// CSPConfig holds Content Security Policy configuration for the editor
// pages. The preview frame replaces it with its own sandbox policy.
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FrameSrc       []string
	ObjectSrc      []string
	FrameAncestors []string
	BaseURI        []string
	FormAction     []string
}

// DefaultSecurityConfig returns the configuration used for the editor. The
// editor embeds the preview frame from its own origin, so framing is limited
// to 'self' rather than denied.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'", "'unsafe-inline'"},
			StyleSrc:       []string{"'self'", "'unsafe-inline'"},
			ImgSrc:         []string{"'self'", "data:", "blob:"},
			ConnectSrc:     []string{"'self'", "ws:", "wss:"},
			FrameSrc:       []string{"'self'"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'self'"},
			BaseURI:        []string{"'self'"},
			FormAction:     []string{"'self'"},
		},
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
	}
}

// SecurityConfigFromAppConfig creates security config from application config
func SecurityConfigFromAppConfig(cfg *config.Config, logger logging.Logger) *SecurityConfig {
	sc := DefaultSecurityConfig()
	sc.Logger = logger

	port := cfg.Server.Port
	sc.AllowedOrigins = append([]string{
		fmt.Sprintf("http://localhost:%d", port),
		fmt.Sprintf("http://127.0.0.1:%d", port),
		fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, fmt.Sprint(port))),
	}, cfg.Server.AllowedOrigins...)

	return sc
}

// SecurityMiddleware creates a security middleware with the given configuration
func SecurityMiddleware(secConfig *SecurityConfig) func(http.Handler) http.Handler {
	if secConfig == nil {
		secConfig = DefaultSecurityConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, secConfig)

			// State-changing requests must come from the editor itself.
			if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
				if !isValidOrigin(r, secConfig.AllowedOrigins) {
					if secConfig.Logger != nil {
						secConfig.Logger.Warn(r.Context(),
							errors.NewValidationError("INVALID_ORIGIN", "invalid origin in request"),
							"Security: Invalid origin",
							"origin", r.Header.Get("Origin"),
							"referer", r.Header.Get("Referer"),
							"ip", getClientIP(r))
					}
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// applySecurityHeaders applies all configured security headers
func applySecurityHeaders(w http.ResponseWriter, config *SecurityConfig) {
	h := w.Header()
	if config.CSP != nil {
		h.Set("Content-Security-Policy", buildCSPHeader(config.CSP))
	}
	if config.XFrameOptions != "" {
		h.Set("X-Frame-Options", config.XFrameOptions)
	}
	if config.XContentTypeNoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if config.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", config.ReferrerPolicy)
	}
	h.Set("Cross-Origin-Resource-Policy", "same-origin")
}

// buildCSPHeader constructs the Content-Security-Policy header value
func buildCSPHeader(csp *CSPConfig) string {
	var directives []string

	addDirective := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	addDirective("default-src", csp.DefaultSrc)
	addDirective("script-src", csp.ScriptSrc)
	addDirective("style-src", csp.StyleSrc)
	addDirective("img-src", csp.ImgSrc)
	addDirective("connect-src", csp.ConnectSrc)
	addDirective("frame-src", csp.FrameSrc)
	addDirective("object-src", csp.ObjectSrc)
	addDirective("frame-ancestors", csp.FrameAncestors)
	addDirective("base-uri", csp.BaseURI)
	addDirective("form-action", csp.FormAction)

	return strings.Join(directives, "; ")
}

// isValidOrigin validates the request origin against allowed origins. A
// request without Origin falls back to Referer; one with neither is a
// non-browser client and is allowed.
func isValidOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		referer := r.Header.Get("Referer")
		if referer == "" {
			return true
		}
		u, err := url.Parse(referer)
		if err != nil {
			return false
		}
		origin = u.Scheme + "://" + u.Host
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// getClientIP extracts the client IP address from the request. Forwarding
// headers are ignored: the server is meant to be reached directly.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
