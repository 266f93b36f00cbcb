package preview

import (
	"sync"
	"time"
)

// Status is the coarse outcome of the most recent render attempt.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// RenderState is what the editor shows: a status dot, an "Updating…"
// indicator while loading and an error banner with a retry action.
type RenderState struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Renders   uint64    `json:"renders"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reporter holds the render state machine. The initial state is Idle and
// there is no terminal state: Loading is reachable from anywhere.
//
// Subscribers see states in the order they were recorded. When transitions
// race, a subscriber may miss an intermediate state but never receives an
// older state after a newer one.
type Reporter struct {
	mu          sync.RWMutex
	state       RenderState
	seq         uint64
	subscribers map[int]func(RenderState)
	nextSub     int
	now         func() time.Time

	deliverMu sync.Mutex
	delivered uint64
}

// NewReporter creates a reporter in the Idle state.
func NewReporter(now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		state:       RenderState{Status: StatusIdle, UpdatedAt: now()},
		subscribers: make(map[int]func(RenderState)),
		now:         now,
	}
}

// State returns the current state.
func (r *Reporter) State() RenderState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn must not change the state itself.
func (r *Reporter) Subscribe(fn func(RenderState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

// MarkLoading records that a render is pending. A previous error message is
// cleared.
func (r *Reporter) MarkLoading() {
	r.transition(func(s *RenderState) {
		s.Status = StatusLoading
		s.Message = ""
	})
}

// MarkSucceeded records a completed render.
func (r *Reporter) MarkSucceeded() {
	r.transition(func(s *RenderState) {
		s.Status = StatusIdle
		s.Message = ""
		s.Renders++
	})
}

// MarkSuperseded records a completed render whose bundle is already stale.
// The status stays Loading until the newer render resolves.
func (r *Reporter) MarkSuperseded() {
	r.transition(func(s *RenderState) {
		s.Status = StatusLoading
		s.Message = ""
		s.Renders++
	})
}

// MarkFailed records a pipeline failure with a human readable reason.
func (r *Reporter) MarkFailed(reason string) {
	r.transition(func(s *RenderState) {
		s.Status = StatusError
		s.Message = reason
	})
}

func (r *Reporter) transition(apply func(*RenderState)) {
	r.mu.Lock()
	next := r.state
	apply(&next)
	next.UpdatedAt = r.now()
	changed := next.Status != r.state.Status || next.Message != r.state.Message || next.Renders != r.state.Renders
	r.state = next
	if !changed {
		r.mu.Unlock()
		return
	}
	r.seq++
	seq := r.seq
	subs := make([]func(RenderState), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if seq <= r.delivered {
		return
	}
	r.delivered = seq
	for _, fn := range subs {
		fn(next)
	}
}
