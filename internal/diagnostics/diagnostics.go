// Package diagnostics collects console output and uncaught errors reported
// from inside hosted preview documents.
package diagnostics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conneroisu/livepad/internal/errors"
)

// Source is the tag carried by every message the in-document bridge posts.
const Source = "livepad-diagnostics"

// DefaultMaxEntries bounds the collector when no limit is configured.
const DefaultMaxEntries = 200

const maxMessageLength = 4096

// Kind classifies a diagnostic.
type Kind string

const (
	KindConsole            Kind = "console"
	KindRuntimeError       Kind = "runtime-error"
	KindUnhandledRejection Kind = "unhandled-rejection"
	KindExecutionError     Kind = "execution-error"
)

// IsError reports whether the kind describes a failure in user code.
func (k Kind) IsError() bool {
	return k == KindRuntimeError || k == KindUnhandledRejection || k == KindExecutionError
}

func parseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindConsole, KindRuntimeError, KindUnhandledRejection, KindExecutionError:
		return k, true
	}
	return "", false
}

// Diagnostic is one observation from inside the hosted document.
type Diagnostic struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	Line     int       `json:"line,omitempty"`
	Revision uint64    `json:"revision,omitempty"`
	Time     time.Time `json:"time"`
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// FromMessage decodes a message posted by the bridge, as received by the
// editor page and forwarded to the server.
func FromMessage(msg map[string]interface{}) (Diagnostic, error) {
	if src, _ := msg["source"].(string); src != Source {
		return Diagnostic{}, errors.NewValidationError(errors.ErrCodeValidationFailed,
			"message is not a livepad diagnostic")
	}

	kindName, _ := msg["kind"].(string)
	kind, ok := parseKind(kindName)
	if !ok {
		return Diagnostic{}, errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("unknown diagnostic kind %q", kindName))
	}

	d := Diagnostic{Kind: kind}
	d.Level, _ = msg["level"].(string)
	d.Message, _ = msg["message"].(string)

	switch line := msg["line"].(type) {
	case float64:
		d.Line = int(line)
	case int:
		d.Line = line
	case int64:
		d.Line = int(line)
	}
	switch rev := msg["revision"].(type) {
	case float64:
		d.Revision = uint64(rev)
	case uint64:
		d.Revision = rev
	}
	return d, nil
}

// Collector keeps the most recent diagnostics in a bounded buffer and fans
// them out to subscribers.
type Collector struct {
	mu          sync.RWMutex
	entries     []Diagnostic
	max         int
	policy      *bluemonday.Policy
	subscribers map[int]func(Diagnostic)
	nextSub     int
	now         func() time.Time
}

// NewCollector creates a collector holding at most max entries.
func NewCollector(max int) *Collector {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Collector{
		entries:     make([]Diagnostic, 0, max),
		max:         max,
		policy:      bluemonday.StrictPolicy(),
		subscribers: make(map[int]func(Diagnostic)),
		now:         time.Now,
	}
}

// Report stores d after filling in defaults and sanitizing its message.
func (c *Collector) Report(d Diagnostic) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Time.IsZero() {
		d.Time = c.now()
	}
	if d.Level == "" {
		d.Level = "log"
		if d.Kind.IsError() {
			d.Level = "error"
		}
	}
	d.Message = c.sanitize(d.Message)

	c.mu.Lock()
	if len(c.entries) == c.max {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:c.max-1]
	}
	c.entries = append(c.entries, d)
	subs := make([]func(Diagnostic), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(d)
	}
}

// List returns a copy of the stored diagnostics, oldest first.
func (c *Collector) List() []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Diagnostic, len(c.entries))
	copy(result, c.entries)
	return result
}

// Errors returns only error-kind diagnostics.
func (c *Collector) Errors() []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []Diagnostic
	for _, d := range c.entries {
		if d.Kind.IsError() {
			result = append(result, d)
		}
	}
	return result
}

// HasErrors reports whether any error-kind diagnostic is stored.
func (c *Collector) HasErrors() bool {
	return len(c.Errors()) > 0
}

// Reset drops all stored diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
}

// Subscribe registers fn for every future diagnostic and returns a function
// that removes it.
func (c *Collector) Subscribe(fn func(Diagnostic)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Collector) sanitize(msg string) string {
	msg = strings.TrimSpace(c.policy.Sanitize(msg))
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength] + "…"
	}
	return msg
}
