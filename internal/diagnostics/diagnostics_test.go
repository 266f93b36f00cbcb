package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMessage(t *testing.T) {
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"source": "livepad-diagnostics",
		"kind": "runtime-error",
		"level": "error",
		"message": "Runtime Error: boom",
		"line": 12,
		"revision": 3
	}`), &msg))

	d, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, KindRuntimeError, d.Kind)
	assert.Equal(t, "error", d.Level)
	assert.Equal(t, "Runtime Error: boom", d.Message)
	assert.Equal(t, 12, d.Line)
	assert.Equal(t, uint64(3), d.Revision)
}

func TestFromMessageRejectsForeignMessages(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"no source":    {"kind": "console", "message": "x"},
		"other source": {"source": "react-devtools", "kind": "console"},
		"bad kind":     {"source": Source, "kind": "telemetry"},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromMessage(msg)
			assert.Error(t, err)
		})
	}
}

func TestCollectorFillsDefaults(t *testing.T) {
	c := NewCollector(10)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.Report(Diagnostic{Kind: KindExecutionError, Message: "JavaScript Execution Error: x"})
	c.Report(Diagnostic{Kind: KindConsole, Message: "hello"})

	list := c.List()
	require.Len(t, list, 2)
	assert.NotEmpty(t, list[0].ID)
	assert.NotEqual(t, list[0].ID, list[1].ID)
	assert.Equal(t, fixed, list[0].Time)
	assert.Equal(t, "error", list[0].Level)
	assert.Equal(t, "log", list[1].Level)
	assert.True(t, c.HasErrors())
	assert.Len(t, c.Errors(), 1)
}

func TestCollectorSanitizesMarkup(t *testing.T) {
	c := NewCollector(10)
	c.Report(Diagnostic{Kind: KindConsole, Message: `<img src=x onerror="alert(1)">hello <b>world</b>`})

	msg := c.List()[0].Message
	assert.NotContains(t, msg, "<img")
	assert.NotContains(t, msg, "onerror")
	assert.Contains(t, msg, "hello")
	assert.Contains(t, msg, "world")
}

func TestCollectorTruncatesLongMessages(t *testing.T) {
	c := NewCollector(1)
	c.Report(Diagnostic{Kind: KindConsole, Message: strings.Repeat("a", maxMessageLength*2)})

	assert.Less(t, len(c.List()[0].Message), maxMessageLength+8)
}

func TestCollectorIsBounded(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 5; i++ {
		c.Report(Diagnostic{Kind: KindConsole, Message: fmt.Sprintf("m%d", i)})
	}

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, "m2", list[0].Message)
	assert.Equal(t, "m4", list[2].Message)
}

func TestCollectorSubscribeAndReset(t *testing.T) {
	c := NewCollector(0)
	var seen []string
	unsubscribe := c.Subscribe(func(d Diagnostic) { seen = append(seen, d.Message) })

	c.Report(Diagnostic{Kind: KindConsole, Message: "one"})
	unsubscribe()
	c.Report(Diagnostic{Kind: KindConsole, Message: "two"})

	assert.Equal(t, []string{"one"}, seen)
	assert.Len(t, c.List(), 2)

	c.Reset()
	assert.Empty(t, c.List())
	assert.False(t, c.HasErrors())
}
