// Package docs renders the embedded user guide.
package docs

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed guide.md
var guide []byte

var (
	once      sync.Once
	rendered  string
	renderErr error
)

// Markdown returns the guide source.
func Markdown() []byte {
	return guide
}

// HTML returns the guide rendered to an HTML fragment. The result is cached.
func HTML() (string, error) {
	once.Do(func() {
		rendered, renderErr = Render(guide)
	})
	return rendered, renderErr
}

// Render converts GitHub flavored markdown to HTML. Raw HTML in the source
// is omitted.
func Render(source []byte) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	var buf bytes.Buffer
	if err := md.Convert(source, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
