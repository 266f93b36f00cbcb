// Package assembler turns a bundle into one complete HTML document.
//
// Assembly is a pure function of the bundle: the templates carry no
// timestamps, random identifiers or other hidden state, so identical input
// always produces byte-identical output.
package assembler

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/markup"
)

// ExportFilename is the suggested download name for a standalone document.
const ExportFilename = "index.html"

// previewTemplate is the document hosted by the preview surface. User script
// runs in a closure after the markup, behind the diagnostics bridge and a
// local failure boundary.
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Preview</title>
    <style>
        /* Reset styles */
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        /* User styles */
        {{.Style}}
    </style>
</head>
<body>
    {{.Markup}}
    <script>
        (function() {
            'use strict';

            {{.Bridge}}

            try {
                {{.Script}}
            } catch (error) {
                var __message = error && error.message ? error.message : String(error);
                __report('execution-error', 'error', 'JavaScript Execution Error: ' + __message, 0);
                __console.error.call(console, 'JavaScript Execution Error:', __message);
            }
        })();
    </script>
</body>
</html>
`))

// standaloneTemplate has the same shape as the preview document without the
// bridge, for saving or opening outside the application.
var standaloneTemplate = template.Must(template.New("standalone").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>{{.Style}}</style>
</head>
<body>
    {{.Markup}}
    <script>{{.Script}}</script>
</body>
</html>
`))

type documentData struct {
	Title  string
	Markup string
	Style  string
	Script string
	Bridge string
}

// Assembler builds documents from bundles.
type Assembler struct {
	exportTitle string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithExportTitle sets the title of standalone documents.
func WithExportTitle(title string) Option {
	return func(a *Assembler) {
		a.exportTitle = title
	}
}

// New creates an Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{exportTitle: "Preview - New Window"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the preview document for b. The document is rendered fully
// in memory; an error means nothing usable was produced.
func (a *Assembler) Assemble(b bundle.Bundle) (string, error) {
	return a.render(previewTemplate, documentData{
		Markup: markup.Normalize(b.Markup),
		Style:  b.Style,
		Script: b.Script,
		Bridge: bridgeScript,
	})
}

// Standalone builds the bridge-free export document for b.
func (a *Assembler) Standalone(b bundle.Bundle) (string, error) {
	return a.render(standaloneTemplate, documentData{
		Title:  a.exportTitle,
		Markup: markup.Normalize(b.Markup),
		Style:  b.Style,
		Script: b.Script,
	})
}

func (a *Assembler) render(tmpl *template.Template, data documentData) (doc string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewAssemblyError(errors.ErrCodeAssemblyPanic,
				"document assembly panicked", fmt.Errorf("%v", r))
		}
	}()

	var sb strings.Builder
	sb.Grow(len(data.Markup) + len(data.Style) + len(data.Script) + len(data.Bridge) + 1024)
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.NewAssemblyError(errors.ErrCodeAssemblyFailed,
			"failed to assemble document", err)
	}
	return sb.String(), nil
}
