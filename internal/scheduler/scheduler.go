// Package scheduler coalesces bursts of bundle changes into a single render
// after a quiet period.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/errors"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 500 * time.Millisecond

// RenderFunc renders one bundle snapshot.
type RenderFunc func(b bundle.Bundle)

// Scheduler is a debouncer: arbitrarily long bursts of NotifyChanged produce
// zero intermediate renders, only one render Delay after the last change.
//
// At most one timer is armed. Every change or immediate request bumps a
// generation counter, so a timer callback that lost the race with Stop
// notices it is stale and does nothing.
type Scheduler struct {
	delay  time.Duration
	clock  clockwork.Clock
	render RenderFunc

	mu         sync.Mutex
	latest     bundle.Bundle
	generation uint64
	timer      clockwork.Timer
	closed     bool

	// renderMu serializes renders so a debounced and an immediate render
	// never overlap.
	renderMu sync.Mutex
}

// New creates a scheduler. A negative delay is treated as zero and a nil
// clock as the wall clock.
func New(delay time.Duration, clk clockwork.Clock, render RenderFunc) *Scheduler {
	if delay < 0 {
		delay = 0
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Scheduler{
		delay:  delay,
		clock:  clk,
		render: render,
	}
}

// Delay returns the configured quiet period.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Seed sets the latest bundle without arming the timer.
func (s *Scheduler) Seed(b bundle.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
}

// NotifyChanged records b as the latest bundle and re-arms the timer,
// cancelling any pending render.
func (s *Scheduler) NotifyChanged(b bundle.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errPipelineClosed()
	}

	s.latest = b
	s.generation++
	s.cancelLocked()

	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.fire(gen)
	})
	return nil
}

// RequestImmediate cancels any pending timer and renders the latest bundle
// synchronously.
func (s *Scheduler) RequestImmediate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errPipelineClosed()
	}
	s.generation++
	s.cancelLocked()
	s.mu.Unlock()

	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errPipelineClosed()
	}
	b := s.latest
	s.mu.Unlock()

	s.render(b)
	return nil
}

// Pending reports whether a debounced render is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Latest returns the most recently recorded bundle.
func (s *Scheduler) Latest() bundle.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close cancels any armed timer and waits for an in-flight render to
// finish. Later calls to NotifyChanged and RequestImmediate fail.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.generation++
	s.cancelLocked()
	s.mu.Unlock()

	s.renderMu.Lock()
	s.renderMu.Unlock() //nolint:staticcheck // drain in-flight render
}

func (s *Scheduler) fire(gen uint64) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	b := s.latest
	s.mu.Unlock()

	s.render(b)
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func errPipelineClosed() error {
	return errors.NewValidationError(errors.ErrCodePipelineClosed, "preview pipeline is closed")
}
