// Package surface defines the isolated host that preview documents are
// swapped into, and the sandboxed browser frame implementation of it.
package surface

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/conneroisu/livepad/internal/errors"
)

// Surface hosts exactly one document at a time. Swap replaces the hosted
// document wholesale or fails without touching it.
type Surface interface {
	Swap(ctx context.Context, document string) error
}

// SandboxPolicy is the capability set granted to hosted documents. Scripts,
// forms, modals and popups are allowed. allow-same-origin is deliberately
// absent so the document runs in an opaque origin and cannot reach the
// editor's storage, cookies or DOM.
const SandboxPolicy = "allow-scripts allow-forms allow-modals allow-popups"

// SwapListener is called after every successful swap with the new revision.
type SwapListener func(revision uint64)

// Frame serves the current document to a sandboxed iframe. A swap bumps the
// revision; listeners (the websocket hub) tell connected editors to reload
// the frame.
type Frame struct {
	mu        sync.RWMutex
	mounted   bool
	document  string
	revision  uint64
	listeners []SwapListener
}

// NewFrame creates an unmounted frame.
func NewFrame() *Frame {
	return &Frame{}
}

// Mount makes the frame writable.
func (f *Frame) Mount() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = true
}

// Unmount disposes the frame. The last document stays readable but later
// swaps fail with a host-unavailable error.
func (f *Frame) Unmount() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = false
}

// Mounted reports whether swaps are accepted.
func (f *Frame) Mounted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mounted
}

// OnSwap registers a listener.
func (f *Frame) OnSwap(l SwapListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// Swap replaces the hosted document.
func (f *Frame) Swap(ctx context.Context, document string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewHostUnavailableError(errors.ErrCodeHostNoDocument, "swap cancelled: "+err.Error())
	}

	f.mu.Lock()
	if !f.mounted {
		f.mu.Unlock()
		return errors.ErrHostNotMounted()
	}
	f.document = document
	f.revision++
	rev := f.revision
	listeners := append([]SwapListener(nil), f.listeners...)
	f.mu.Unlock()

	for _, l := range listeners {
		l(rev)
	}
	return nil
}

// Current returns the hosted document and its revision. Revision zero means
// nothing was ever rendered.
func (f *Frame) Current() (string, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.document, f.revision
}

// ServeHTTP writes the hosted document with a sandbox CSP so the browser
// isolates it even when opened outside the editor's iframe.
func (f *Frame) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, rev := f.Current()

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "sandbox "+SandboxPolicy)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Preview-Revision", strconv.FormatUint(rev, 10))
	h.Del("Cross-Origin-Embedder-Policy")
	h.Del("Cross-Origin-Opener-Policy")

	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(doc))
}
