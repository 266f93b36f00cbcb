// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/bundle"
)

// CreateTempWorkspace creates a workspace directory holding the three
// fragment files of b under their default names.
func CreateTempWorkspace(t *testing.T, b bundle.Bundle) string {
	t.Helper()
	dir := t.TempDir()
	WriteWorkspace(t, dir, b)
	return dir
}

// WriteWorkspace writes the fragment files of b into dir.
func WriteWorkspace(t *testing.T, dir string, b bundle.Bundle) {
	t.Helper()
	files := map[string]string{
		"index.html": b.Markup,
		"style.css":  b.Style,
		"script.js":  b.Script,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

// RecordingSurface is a surface that remembers every document it was given.
// Setting Fail makes swaps return that error without recording.
type RecordingSurface struct {
	mu        sync.Mutex
	documents []string
	fail      error
}

// Swap records document.
func (s *RecordingSurface) Swap(ctx context.Context, document string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.documents = append(s.documents, document)
	return nil
}

// SetFail makes later swaps fail with err; nil restores success.
func (s *RecordingSurface) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Documents returns every recorded document in order.
func (s *RecordingSurface) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.documents...)
}

// Last returns the most recent document.
func (s *RecordingSurface) Last() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.documents) == 0 {
		return "", false
	}
	return s.documents[len(s.documents)-1], true
}

// SampleBundles are realistic inputs used across tests.
var SampleBundles = map[string]bundle.Bundle{
	"heading": {
		Markup: "<h1>Hi</h1>",
		Style:  "h1{color:red}",
	},
	"full-document": {
		Markup: "<!DOCTYPE html><html><head><title>t</title></head><body><p>X</p></body></html>",
	},
	"export": {
		Markup: "<p>A</p>",
		Style:  "p{color:blue}",
		Script: "console.log(1)",
	},
	"throws": {
		Markup: "<p>ok</p>",
		Script: `throw new Error("x")`,
	},
	"counter": {
		Markup: `<button id="inc">+</button><span id="count">0</span>`,
		Script: `var count = 0;
document.getElementById('inc').addEventListener('click', function() {
  count++;
  document.getElementById('count').textContent = String(count);
});`,
	},
}
