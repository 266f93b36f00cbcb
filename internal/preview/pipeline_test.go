package preview

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/realm"
	"github.com/conneroisu/livepad/internal/surface"
	"github.com/conneroisu/livepad/internal/testutils"
)

type fixture struct {
	pipeline *Pipeline
	surface  *testutils.RecordingSurface
	clock    *clockwork.FakeClock
	metrics  *monitoring.Metrics
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		surface: &testutils.RecordingSurface{},
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		metrics: monitoring.NewMetrics(),
	}
	p, err := New(Options{
		RefreshDelay: delay,
		Surface:      f.surface,
		Clock:        f.clock,
		Metrics:      f.metrics,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	f.pipeline = p
	return f
}

// waitRenders blocks until n renders completed and no render is loading.
// Fake timer callbacks run on their own goroutine.
func waitRenders(t *testing.T, p *Pipeline, n uint64) RenderState {
	t.Helper()
	require.Eventually(t, func() bool {
		s := p.State()
		return s.Renders >= n && s.Status != StatusLoading
	}, 2*time.Second, time.Millisecond)
	return p.State()
}

func TestNewRequiresSurface(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.IsValidationError(err))
}

func TestBurstRendersOnceWithLatestBundle(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)

	require.NoError(t, f.pipeline.NotifyChanged(bundle.Bundle{Markup: "<p>1</p>"}))
	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.pipeline.NotifyChanged(bundle.Bundle{Markup: "<p>2</p>"}))
	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.pipeline.NotifyChanged(bundle.Bundle{Markup: "<p>3</p>"}))

	assert.Equal(t, StatusLoading, f.pipeline.State().Status)
	assert.True(t, f.pipeline.Pending())

	f.clock.Advance(499 * time.Millisecond)
	assert.Empty(t, f.surface.Documents())

	f.clock.Advance(time.Millisecond)
	state := waitRenders(t, f.pipeline, 1)
	docs := f.surface.Documents()
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], "<p>3</p>")
	assert.NotContains(t, docs[0], "<p>1</p>")

	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, uint64(1), state.Renders)

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Notifications))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Coalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Renders.WithLabelValues(monitoring.OutcomeSuccess)))
}

func TestRequestImmediateSupersedesPendingRender(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)

	require.NoError(t, f.pipeline.NotifyChanged(testutils.SampleBundles["heading"]))
	require.NoError(t, f.pipeline.RequestImmediate())

	require.Len(t, f.surface.Documents(), 1)
	assert.False(t, f.pipeline.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 0))

	f.clock.Advance(time.Second)
	assert.Len(t, f.surface.Documents(), 1)
	assert.Equal(t, StatusIdle, f.pipeline.State().Status)
}

func TestUpdateReplacesOneFragment(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.pipeline.NotifyChanged(testutils.SampleBundles["heading"]))
	require.NoError(t, f.pipeline.Update(bundle.FragmentStyle, "h1{color:green}"))
	f.clock.Advance(0)
	waitRenders(t, f.pipeline, 1)

	latest := f.pipeline.Latest()
	assert.Equal(t, "<h1>Hi</h1>", latest.Markup)
	assert.Equal(t, "h1{color:green}", latest.Style)

	doc, ok := f.surface.Last()
	require.True(t, ok)
	assert.Contains(t, doc, "h1{color:green}")
}

func TestUnavailableSurfaceReportsErrorAndRetryRecovers(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)
	f.surface.SetFail(errors.ErrHostNotMounted())

	require.NoError(t, f.pipeline.RequestImmediate())

	state := f.pipeline.State()
	assert.Equal(t, StatusError, state.Status)
	assert.NotEmpty(t, state.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Renders.WithLabelValues(monitoring.OutcomeHostUnavailable)))

	f.surface.SetFail(nil)
	require.NoError(t, f.pipeline.RequestImmediate())

	state = f.pipeline.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Empty(t, state.Message)
}

func TestUnmountedFrameSurface(t *testing.T) {
	frame := surface.NewFrame()
	p, err := New(Options{Surface: frame, Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.RequestImmediate())
	assert.Equal(t, StatusError, p.State().Status)

	frame.Mount()
	require.NoError(t, p.RequestImmediate())
	assert.Equal(t, StatusIdle, p.State().Status)

	doc, rev := frame.Current()
	assert.Equal(t, uint64(1), rev)
	assert.Contains(t, doc, "<!DOCTYPE html>")
}

func TestUserScriptErrorDoesNotFailRender(t *testing.T) {
	collector := diagnostics.NewCollector(0)
	host := realm.New(collector, nil, realm.Config{})

	p, err := New(Options{
		Surface:     host,
		Clock:       clockwork.NewFakeClock(),
		Diagnostics: collector,
		Initial:     testutils.SampleBundles["throws"],
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.RequestImmediate())

	assert.Equal(t, StatusIdle, p.State().Status)
	errs := collector.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, diagnostics.KindExecutionError, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "x")

	text, ok := host.Text("//p")
	require.True(t, ok)
	assert.Equal(t, "ok", text)
}

func TestClearDiagnosticsOnRender(t *testing.T) {
	for _, clear := range []bool{true, false} {
		collector := diagnostics.NewCollector(0)
		host := realm.New(collector, nil, realm.Config{})

		p, err := New(Options{
			Surface:                  host,
			Clock:                    clockwork.NewFakeClock(),
			Diagnostics:              collector,
			ClearDiagnosticsOnRender: clear,
			Initial:                  bundle.Bundle{Script: "console.log('again')"},
		})
		require.NoError(t, err)

		require.NoError(t, p.RequestImmediate())
		require.NoError(t, p.RequestImmediate())
		p.Close()

		want := 2
		if clear {
			want = 1
		}
		assert.Len(t, collector.List(), want, "clear=%v", clear)
	}
}

func TestRenderTimeoutInterruptsRunawayScript(t *testing.T) {
	collector := diagnostics.NewCollector(0)
	host := realm.New(collector, nil, realm.Config{})

	p, err := New(Options{
		Surface:       host,
		RenderTimeout: 50 * time.Millisecond,
		Diagnostics:   collector,
		Initial:       bundle.Bundle{Script: "while (true) {}"},
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.RequestImmediate())
	assert.Equal(t, StatusIdle, p.State().Status)
	require.NotEmpty(t, collector.Errors())
	assert.Contains(t, collector.Errors()[0].Message, "interrupted")
}

func TestExports(t *testing.T) {
	f := newFixture(t, 0)
	b := testutils.SampleBundles["export"]

	doc, err := f.pipeline.ExportStandaloneDocument(b)
	require.NoError(t, err)

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "p{color:blue}", dom.Find("head style").Text())
	assert.Equal(t, "A", dom.Find("body p").Text())
	assert.Equal(t, "console.log(1)", dom.Find("body script").Text())
	assert.NotContains(t, doc, diagnostics.Source)

	text := f.pipeline.ExportPlainText(b)
	parsed, err := bundle.ParsePlainText(text)
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	assert.Empty(t, f.surface.Documents(), "exports never touch the surface")
}

func TestClosedPipelineRejectsWork(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)
	require.NoError(t, f.pipeline.NotifyChanged(testutils.SampleBundles["heading"]))

	f.pipeline.Close()
	f.clock.Advance(time.Second)
	assert.Empty(t, f.surface.Documents())

	before := f.pipeline.State()
	err := f.pipeline.NotifyChanged(bundle.Bundle{Markup: "<p>late</p>"})
	assert.Error(t, err)
	assert.Error(t, f.pipeline.RequestImmediate())
	assert.Equal(t, before, f.pipeline.State(), "rejected work leaves the state alone")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications))
}

func TestClosedSchedulerLeavesStateAlone(t *testing.T) {
	f := newFixture(t, 500*time.Millisecond)

	// Close the scheduler underneath the pipeline, as a racing Close would.
	f.pipeline.scheduler.Close()

	assert.Error(t, f.pipeline.NotifyChanged(bundle.Bundle{Markup: "<p>x</p>"}))
	assert.Error(t, f.pipeline.RequestImmediate())
	assert.Equal(t, StatusIdle, f.pipeline.State().Status)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Notifications))
}

// gatedSurface holds its first Swap until release is closed and can fail it.
type gatedSurface struct {
	entered  chan struct{}
	release  chan struct{}
	firstErr error

	mu    sync.Mutex
	calls int
	docs  []string
}

func newGatedSurface(firstErr error) *gatedSurface {
	return &gatedSurface{
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		firstErr: firstErr,
	}
}

func (g *gatedSurface) Swap(ctx context.Context, document string) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
		if g.firstErr != nil {
			return g.firstErr
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs = append(g.docs, document)
	return nil
}

func (g *gatedSurface) Documents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.docs...)
}

func TestRenderFinishingAfterNewerChangeStaysLoading(t *testing.T) {
	tests := []struct {
		name        string
		firstErr    error
		wantStates  []Status
		wantRenders uint64
	}{
		{
			name:        "stale render succeeds",
			wantStates:  []Status{StatusLoading, StatusLoading, StatusIdle},
			wantRenders: 2,
		},
		{
			name:        "stale render fails",
			firstErr:    errors.ErrHostNotMounted(),
			wantStates:  []Status{StatusLoading, StatusIdle},
			wantRenders: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const delay = 100 * time.Millisecond
			gate := newGatedSurface(tt.firstErr)
			fake := clockwork.NewFakeClock()
			p, err := New(Options{RefreshDelay: delay, Surface: gate, Clock: fake})
			require.NoError(t, err)
			t.Cleanup(p.Close)

			var mu sync.Mutex
			var seen []Status
			p.Reporter().Subscribe(func(s RenderState) {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, s.Status)
			})
			statuses := func() []Status {
				mu.Lock()
				defer mu.Unlock()
				return append([]Status(nil), seen...)
			}

			require.NoError(t, p.NotifyChanged(bundle.Bundle{Markup: "<p>first</p>"}))
			fake.Advance(delay)
			<-gate.entered

			require.NoError(t, p.NotifyChanged(bundle.Bundle{Markup: "<p>second</p>"}))
			assert.Equal(t, StatusLoading, p.State().Status)

			close(gate.release)
			fake.Advance(delay)

			require.Eventually(t, func() bool {
				s := statuses()
				return len(s) > 0 && s[len(s)-1] == StatusIdle
			}, 2*time.Second, time.Millisecond)

			assert.Equal(t, tt.wantStates, statuses())
			state := p.State()
			assert.Equal(t, StatusIdle, state.Status)
			assert.Empty(t, state.Message)
			assert.Equal(t, tt.wantRenders, state.Renders)
			assert.False(t, p.Pending())

			docs := gate.Documents()
			require.NotEmpty(t, docs)
			assert.Contains(t, docs[len(docs)-1], "<p>second</p>")
		})
	}
}
