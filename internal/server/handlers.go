package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/livepad/internal/assembler"
	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/docs"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/surface"
	"github.com/conneroisu/livepad/internal/version"
)

// Command actions accepted by POST /api/actions.
const (
	ActionNewFile        = "new-file"
	ActionSaveFile       = "save-file"
	ActionExportFile     = "export-file"
	ActionRefresh        = "refresh"
	actionTemplatePrefix = "load-template-"
)

// routes registers every endpoint. Patterns double as metric route labels.
func (s *Server) routes(security *SecurityConfig) http.Handler {
	mux := http.NewServeMux()
	rateLimited := RateLimitMiddleware(s.limiter)

	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.metrics.Middleware(pattern, h))
	}
	api := func(pattern string, h http.HandlerFunc) {
		handle(pattern, rateLimited(h))
	}

	handle("GET /{$}", http.HandlerFunc(s.handleIndex))
	handle("GET /docs", http.HandlerFunc(s.handleDocs))
	handle("GET /preview/frame", s.frame)
	handle("GET /ws", s.hub)
	handle("GET /health", s.health.HTTPHandler())
	handle("GET /metrics", s.metricsHandler())

	api("GET /api/bundle", s.handleGetBundle)
	api("PUT /api/bundle", s.handlePutBundle)
	api("PATCH /api/bundle/{fragment}", s.handlePatchFragment)
	api("POST /api/refresh", s.handleRefresh)
	api("GET /api/state", s.handleState)
	api("GET /api/export", s.handleExport)
	api("GET /api/diagnostics", s.handleListDiagnostics)
	api("POST /api/diagnostics", s.handleReportDiagnostic)
	api("DELETE /api/diagnostics", s.handleClearDiagnostics)
	api("POST /api/actions", s.handleAction)
	api("GET /api/templates", s.handleTemplates)

	return SecurityMiddleware(security)(mux)
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return http.NotFoundHandler()
	}
	return s.metrics.Handler()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	templ.Handler(EditorPage(EditorOptions{
		FontSize:  s.config.Editor.FontSize,
		WordWrap:  s.config.Editor.WordWrap,
		Templates: s.templates.List(),
		Version:   version.Short(),
	})).ServeHTTP(w, r)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	guide, err := docs.HTML()
	if err != nil {
		s.writeError(w, r, errors.NewInternalError(errors.ErrCodeInternalError, "failed to render documentation", err))
		return
	}
	templ.Handler(DocsPage(guide)).ServeHTTP(w, r)
}

func (s *Server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.Latest())
}

func (s *Server) handlePutBundle(w http.ResponseWriter, r *http.Request) {
	var b bundle.Bundle
	if !s.decode(w, r, &b) {
		return
	}
	if err := s.pipeline.NotifyChanged(b); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.pipeline.State())
}

type fragmentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePatchFragment(w http.ResponseWriter, r *http.Request) {
	f, err := bundle.ParseFragment(r.PathValue("fragment"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req fragmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.pipeline.Update(f, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.pipeline.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.RequestImmediate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.pipeline.State())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.State())
}

// handleExport serves the latest bundle as a download, or inline for
// opening in a new window.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	inline := r.URL.Query().Get("disposition") == "inline"
	b := s.pipeline.Latest()

	switch format {
	case "html":
		doc, err := s.pipeline.ExportStandaloneDocument(b)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "text/html; charset=utf-8")
		if inline {
			h.Set("Content-Security-Policy", "sandbox "+surface.SandboxPolicy)
			h.Set("Content-Disposition", "inline")
		} else {
			h.Set("Content-Disposition", `attachment; filename="`+assembler.ExportFilename+`"`)
		}
		_, _ = w.Write([]byte(doc))

	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+bundle.PlainTextFilename+`"`)
		_, _ = w.Write([]byte(s.pipeline.ExportPlainText(b)))

	default:
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeUnknownFormat, "unknown export format: "+format))
	}
}

type diagnosticsResponse struct {
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	HasErrors   bool                     `json:"has_errors"`
}

func (s *Server) handleListDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, diagnosticsResponse{
		Diagnostics: s.diagnostics.List(),
		HasErrors:   s.diagnostics.HasErrors(),
	})
}

// handleReportDiagnostic accepts a bridge message relayed by the editor page.
func (s *Server) handleReportDiagnostic(w http.ResponseWriter, r *http.Request) {
	var msg map[string]interface{}
	if !s.decode(w, r, &msg) {
		return
	}
	d, err := diagnostics.FromMessage(msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if d.Revision == 0 {
		_, d.Revision = s.frame.Current()
	}
	s.diagnostics.Report(d)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClearDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.diagnostics.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type actionRequest struct {
	Action string `json:"action"`
}

type actionResponse struct {
	Action string              `json:"action"`
	Bundle *bundle.Bundle      `json:"bundle,omitempty"`
	State  preview.RenderState `json:"state"`
}

// handleAction runs a named menu command. Save and export answer with the
// download itself.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !s.decode(w, r, &req) {
		return
	}

	var next *bundle.Bundle
	switch {
	case req.Action == ActionNewFile:
		next = &bundle.Bundle{}

	case req.Action == ActionSaveFile:
		q := r.URL.Query()
		q.Set("format", "text")
		r.URL.RawQuery = q.Encode()
		s.handleExport(w, r)
		return

	case req.Action == ActionExportFile:
		q := r.URL.Query()
		q.Set("format", "html")
		r.URL.RawQuery = q.Encode()
		s.handleExport(w, r)
		return

	case req.Action == ActionRefresh:
		if err := s.pipeline.RequestImmediate(); err != nil {
			s.writeError(w, r, err)
			return
		}

	case strings.HasPrefix(req.Action, actionTemplatePrefix):
		b, err := s.templates.Get(strings.TrimPrefix(req.Action, actionTemplatePrefix))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next = &b

	default:
		s.writeError(w, r, errors.ErrUnknownAction(req.Action))
		return
	}

	if next != nil {
		if err := s.pipeline.NotifyChanged(*next); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.logger.Info(r.Context(), "Action executed", "action", req.Action)
	s.writeJSON(w, http.StatusOK, actionResponse{
		Action: req.Action,
		Bundle: next,
		State:  s.pipeline.State(),
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.templates.List())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode response")
	}
}

type errorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: errors.Message(err), Timestamp: time.Now()}

	resp.Code = errors.Code(err)
	switch {
	case resp.Code == errors.ErrCodePipelineClosed, errors.IsHostUnavailable(err):
		status = http.StatusServiceUnavailable
	case errors.IsValidationError(err):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.errHandler.Handle(r.Context(), err)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", "path", r.URL.Path, "error", err.Error())
	}
	s.writeJSON(w, status, resp)
}
