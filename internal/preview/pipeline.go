// Package preview wires the live preview pipeline: change notifications are
// debounced, the latest bundle is assembled in memory and swapped into the
// isolated surface, and the outcome is published as a RenderState.
//
// Only pipeline faults (an unreachable surface or a failed assembly) put the
// pipeline into the Error state. Failures inside user script are reported by
// the in-document bridge as diagnostics and the render still counts as a
// success.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/conneroisu/livepad/internal/assembler"
	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/scheduler"
	"github.com/conneroisu/livepad/internal/surface"
)

// Options configures a Pipeline. Surface is required.
type Options struct {
	RefreshDelay time.Duration
	// RenderTimeout bounds one swap, including script execution on surfaces
	// that run it. Zero means no limit.
	RenderTimeout time.Duration

	Surface     surface.Surface
	Assembler   *assembler.Assembler
	Clock       clockwork.Clock
	Logger      logging.Logger
	Metrics     *monitoring.Metrics
	Diagnostics *diagnostics.Collector

	// ClearDiagnosticsOnRender drops diagnostics of the previous document
	// before each swap.
	ClearDiagnosticsOnRender bool

	Initial bundle.Bundle
}

// Pipeline is the single owner of its surface: every write goes through
// render.
//
// mu orders change notifications against the end of a render, so a render
// that finishes after a newer change never reports Idle or Error over the
// Loading state of that change.
type Pipeline struct {
	surface       surface.Surface
	assembler     *assembler.Assembler
	scheduler     *scheduler.Scheduler
	reporter      *Reporter
	logger        logging.Logger
	metrics       *monitoring.Metrics
	diagnostics   *diagnostics.Collector
	clearOnRender bool
	renderTimeout time.Duration

	mu sync.Mutex
	// pending counts notifications since the last render started.
	pending int
	closed  bool
}

// New creates a pipeline seeded with opts.Initial. Nothing is rendered until
// the first NotifyChanged or RequestImmediate.
func New(opts Options) (*Pipeline, error) {
	if opts.Surface == nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "preview pipeline requires a surface")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Assembler == nil {
		opts.Assembler = assembler.New()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	p := &Pipeline{
		surface:       opts.Surface,
		assembler:     opts.Assembler,
		reporter:      NewReporter(opts.Clock.Now),
		logger:        opts.Logger.WithComponent("preview"),
		metrics:       opts.Metrics,
		diagnostics:   opts.Diagnostics,
		clearOnRender: opts.ClearDiagnosticsOnRender,
		renderTimeout: opts.RenderTimeout,
	}
	p.scheduler = scheduler.New(opts.RefreshDelay, opts.Clock, p.render)
	p.scheduler.Seed(opts.Initial)

	return p, nil
}

// NotifyChanged records b as the latest bundle and schedules a render after
// the quiet period.
func (p *Pipeline) NotifyChanged(b bundle.Bundle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.NewValidationError(errors.ErrCodePipelineClosed, "preview pipeline is closed")
	}
	if err := p.scheduler.NotifyChanged(b); err != nil {
		return err
	}

	p.pending++
	p.metrics.RecordNotification()
	p.reporter.MarkLoading()
	return nil
}

// Update replaces one fragment of the latest bundle and notifies.
func (p *Pipeline) Update(f bundle.Fragment, text string) error {
	return p.NotifyChanged(p.scheduler.Latest().With(f, text))
}

// RequestImmediate renders the latest bundle now, superseding any pending
// debounced render. The render itself reports Loading.
func (p *Pipeline) RequestImmediate() error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.NewValidationError(errors.ErrCodePipelineClosed, "preview pipeline is closed")
	}
	return p.scheduler.RequestImmediate()
}

// ExportStandaloneDocument assembles b without the diagnostics bridge.
func (p *Pipeline) ExportStandaloneDocument(b bundle.Bundle) (string, error) {
	return p.assembler.Standalone(b)
}

// ExportPlainText renders b in the labelled plain-text save format.
func (p *Pipeline) ExportPlainText(b bundle.Bundle) string {
	return bundle.FormatPlainText(b)
}

// Latest returns the bundle the next render will use.
func (p *Pipeline) Latest() bundle.Bundle {
	return p.scheduler.Latest()
}

// State returns the current render state.
func (p *Pipeline) State() RenderState {
	return p.reporter.State()
}

// Reporter exposes the state machine for subscriptions.
func (p *Pipeline) Reporter() *Reporter {
	return p.reporter
}

// Pending reports whether a debounced render is armed.
func (p *Pipeline) Pending() bool {
	return p.scheduler.Pending()
}

// Close cancels any armed timer and waits for an in-flight render.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.scheduler.Close()
}

// render assembles b fully in memory and only then touches the surface.
func (p *Pipeline) render(b bundle.Bundle) {
	ctx := context.Background()
	if p.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.renderTimeout)
		defer cancel()
	}

	p.mu.Lock()
	superseded := p.pending - 1
	p.pending = 0
	p.reporter.MarkLoading()
	p.mu.Unlock()
	p.metrics.RecordCoalesced(superseded)

	op := logging.StartOperation(p.logger, "render")

	doc, err := p.assembler.Assemble(b)
	if err != nil {
		op.EndWithError(ctx, err)
		p.metrics.RecordRender(monitoring.OutcomeAssemblyFailed, op.Elapsed())
		p.finish(err)
		return
	}

	if p.clearOnRender && p.diagnostics != nil {
		p.diagnostics.Reset()
	}

	if err := p.surface.Swap(ctx, doc); err != nil {
		p.logger.Warn(ctx, err, "Preview surface rejected document", "bytes", len(doc))
		outcome := monitoring.OutcomeHostUnavailable
		if !errors.IsHostUnavailable(err) {
			outcome = monitoring.OutcomeAssemblyFailed
		}
		p.metrics.RecordRender(outcome, op.Elapsed())
		p.finish(err)
		return
	}

	d := op.End(ctx)
	p.metrics.RecordRender(monitoring.OutcomeSuccess, d)
	p.finish(nil)
}

// finish reports the outcome of a render. When a change arrived while it
// ran, that change's render decides the visible state, so the status stays
// Loading.
func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	newer := p.pending > 0
	switch {
	case err == nil && newer:
		p.reporter.MarkSuperseded()
	case err == nil:
		p.reporter.MarkSucceeded()
	case !newer:
		p.reporter.MarkFailed(errors.Message(err))
	}
}
