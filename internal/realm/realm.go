// Package realm is a headless preview surface. Every swap parses the document
// and runs its inline scripts in a brand-new goja runtime with a small
// browser-like environment (window, document, console, timers). Nothing is
// shared between swaps or with the host process, so user script can only
// ever observe the document it was delivered with.
//
// Timers run on a virtual clock after the inline scripts finish, up to a
// fixed horizon. There is no CPU quota: a cancelled context interrupts the
// runtime, nothing else does.
package realm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
)

const (
	// DefaultTimerHorizon is how much virtual time timers are simulated for.
	DefaultTimerHorizon = 5 * time.Second
	// DefaultMaxTasks caps timer callbacks per swap.
	DefaultMaxTasks = 1000
)

// LogEntry is one line of console output from the hosted document.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Config tunes a Realm.
type Config struct {
	TimerHorizon time.Duration
	MaxTasks     int
}

// Realm hosts one document at a time.
type Realm struct {
	sink   diagnostics.Sink
	logger logging.Logger
	config Config

	mu       sync.RWMutex
	mounted  bool
	root     *html.Node
	console  []LogEntry
	revision uint64
}

// New creates a mounted realm. Diagnostics posted by the document to its
// parent are forwarded to sink, which may be nil.
func New(sink diagnostics.Sink, logger logging.Logger, config Config) *Realm {
	if logger == nil {
		logger = logging.Discard()
	}
	if config.TimerHorizon <= 0 {
		config.TimerHorizon = DefaultTimerHorizon
	}
	if config.MaxTasks <= 0 {
		config.MaxTasks = DefaultMaxTasks
	}
	return &Realm{
		sink:    sink,
		logger:  logger.WithComponent("realm"),
		config:  config,
		mounted: true,
	}
}

// Mount makes the realm accept swaps again after Unmount.
func (r *Realm) Mount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounted = true
}

// Unmount disposes the realm; later swaps fail.
func (r *Realm) Unmount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounted = false
}

// Swap parses document, discards the previous one with all of its script
// state, and runs the new document's scripts to completion.
func (r *Realm) Swap(ctx context.Context, document string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.mounted {
		return errors.ErrHostNotMounted()
	}

	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return errors.NewHostUnavailableError(errors.ErrCodeHostNoDocument,
			"failed to load document: "+err.Error())
	}

	r.revision++
	r.root = root
	r.console = nil

	env := newEnvironment(r, root, r.revision)
	stop := env.watch(ctx)
	defer stop()

	env.runScripts(document)
	env.runTimers()

	if env.interrupted != nil {
		r.logger.Warn(ctx, env.interrupted, "Script execution interrupted", "revision", r.revision)
		env.report(diagnostics.Diagnostic{
			Kind:    diagnostics.KindExecutionError,
			Message: "Script execution interrupted: " + env.interrupted.Error(),
		})
	}
	return nil
}

// Document renders the current DOM, including script mutations.
func (r *Realm) Document() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.root == nil {
		return ""
	}
	var sb strings.Builder
	if err := html.Render(&sb, r.root); err != nil {
		return ""
	}
	return sb.String()
}

// Text returns the text content of the first element matching the XPath expression.
func (r *Realm) Text(expr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.root == nil {
		return "", false
	}
	node, err := htmlquery.Query(r.root, expr)
	if err != nil || node == nil {
		return "", false
	}
	return htmlquery.InnerText(node), true
}

// Console returns console output of the current document.
func (r *Realm) Console() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]LogEntry(nil), r.console...)
}

// Revision counts successful swaps.
func (r *Realm) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// appendConsole is called with r.mu held by Swap.
func (r *Realm) appendConsole(level, msg string) {
	r.console = append(r.console, LogEntry{Level: level, Message: msg})
	r.logger.Debug(context.Background(), "Browser console", "level", level, "message", msg)
}

// lineOffset returns the document line on which script text starts, so error
// line numbers match what a browser reports.
func lineOffset(document, text string) int {
	i := strings.Index(document, text)
	if i < 0 {
		return 0
	}
	return strings.Count(document[:i], "\n")
}

// exceptionPosition returns the script name and line of the innermost
// frame that has source information.
func exceptionPosition(err error) (string, int) {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return "", 0
	}
	for _, frame := range ex.Stack() {
		if pos := frame.Position(); pos.Line > 0 {
			return pos.Filename, pos.Line
		}
	}
	return "", 0
}

func exceptionMessage(err error) string {
	if ex, ok := err.(*goja.Exception); ok && ex.Value() != nil {
		return ex.Value().String()
	}
	return fmt.Sprint(err)
}
