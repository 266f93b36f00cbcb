package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/testutils"
	"github.com/conneroisu/livepad/internal/version"
)

// resetViper gives each test a clean global configuration.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	viper.Set("log.level", "error")
	t.Cleanup(viper.Reset)
}

// newTestCommand returns a detached command with flags registered by
// addFlags and parsed from args, writing its output to the returned buffer.
func newTestCommand(t *testing.T, addFlags func(*cobra.Command), args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	c := &cobra.Command{}
	if addFlags != nil {
		addFlags(c)
	}
	require.NoError(t, c.ParseFlags(args))

	out := new(bytes.Buffer)
	c.SetOut(out)
	c.SetErr(io.Discard)
	return c, out
}

func TestRunInit(t *testing.T) {
	resetViper(t)
	defer func() {
		initTemplate = bundle.BasicTemplate
		initForce = false
	}()

	dir := filepath.Join(t.TempDir(), "pad")
	initTemplate = bundle.BasicTemplate
	initForce = false

	c, out := newTestCommand(t, nil)
	require.NoError(t, runInit(c, []string{dir}))

	assert.FileExists(t, filepath.Join(dir, config.DefaultFilename))
	for _, name := range []string{"index.html", "style.css", "script.js"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.Contains(t, out.String(), "livepad serve --dir "+dir)

	markup, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Editor.DefaultContent.HTML, string(markup))

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, config.DefaultFilename))
	require.NoError(t, v.ReadInConfig())
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	// A second run refuses to clobber the workspace.
	c, _ = newTestCommand(t, nil)
	assert.Error(t, runInit(c, []string{dir}))

	initForce = true
	initTemplate = "tailwind"
	c, _ = newTestCommand(t, nil)
	require.NoError(t, runInit(c, []string{dir}))

	markup, err = os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(markup), "Tailwind CSS")
}

func TestRunInitUnknownTemplate(t *testing.T) {
	resetViper(t)
	defer func() { initTemplate = bundle.BasicTemplate }()

	dir := t.TempDir()
	initTemplate = "does-not-exist"

	c, _ := newTestCommand(t, nil)
	require.Error(t, runInit(c, []string{dir}))
	assert.NoFileExists(t, filepath.Join(dir, config.DefaultFilename))
}

func TestRunExport(t *testing.T) {
	sample := testutils.SampleBundles["export"]
	dir := testutils.CreateTempWorkspace(t, sample)

	plainText := filepath.Join(t.TempDir(), bundle.PlainTextFilename)
	require.NoError(t, os.WriteFile(plainText, []byte(bundle.FormatPlainText(sample)), 0o644))

	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		contains []string
		excludes []string
	}{
		{
			name:     "workspace as html",
			args:     []string{"--dir", dir},
			contains: []string{"<!DOCTYPE html>", "<p>A</p>", "p{color:blue}", "console.log(1)"},
			excludes: []string{diagnostics.Source},
		},
		{
			name:     "plain text file as html",
			args:     []string{"--from", plainText},
			contains: []string{"<p>A</p>", "console.log(1)"},
		},
		{
			name:     "workspace as text",
			args:     []string{"--dir", dir, "--format", "text"},
			contains: []string{"HTML:\n<p>A</p>", "CSS:\np{color:blue}", "JS:\nconsole.log(1)"},
		},
		{
			name:     "template",
			args:     []string{"--template", "bootstrap", "--format", "text"},
			contains: []string{"Bootstrap Template"},
		},
		{
			name:    "unknown template",
			args:    []string{"--template", "nope"},
			wantErr: true,
		},
		{
			name:    "missing plain text file",
			args:    []string{"--from", filepath.Join(dir, "missing.txt")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			c, out := newTestCommand(t, addExportFlags, tt.args...)

			err := runExport(c, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out.String(), want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out.String(), unwanted)
			}
		})
	}
}

func TestRunExportToFile(t *testing.T) {
	resetViper(t)
	target := filepath.Join(t.TempDir(), "index.html")

	c, out := newTestCommand(t, addExportFlags, "--template", bundle.BasicTemplate, "-o", target)
	require.NoError(t, runExport(c, nil))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
	assert.Contains(t, string(data), "Click me")
}

func TestRunCheck(t *testing.T) {
	tests := []struct {
		name       string
		sample     string
		args       []string
		wantErr    bool
		wantErrors bool
		wantLog    string
	}{
		{
			name:   "clean document",
			sample: "heading",
		},
		{
			name:    "console output",
			sample:  "export",
			wantLog: "1",
		},
		{
			name:       "script error is reported, not fatal",
			sample:     "throws",
			wantErrors: true,
		},
		{
			name:       "strict fails on script error",
			sample:     "throws",
			args:       []string{"--strict"},
			wantErr:    true,
			wantErrors: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			dir := testutils.CreateTempWorkspace(t, testutils.SampleBundles[tt.sample])

			args := append([]string{"--dir", dir, "--format", "json"}, tt.args...)
			c, out := newTestCommand(t, addCheckFlags, args...)

			err := runCheck(c, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			var report checkReport
			require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
			assert.Equal(t, preview.StatusIdle, report.State.Status)

			hasErrors := false
			for _, d := range report.Diagnostics {
				if d.Kind.IsError() {
					hasErrors = true
					assert.Contains(t, d.Message, "x")
				}
			}
			assert.Equal(t, tt.wantErrors, hasErrors)

			if tt.wantLog != "" {
				require.NotEmpty(t, report.Console)
				assert.Equal(t, tt.wantLog, report.Console[0].Message)
			}
		})
	}
}

func TestRunCheckInterruptsRunawayScript(t *testing.T) {
	resetViper(t)
	dir := testutils.CreateTempWorkspace(t, bundle.Bundle{Markup: "<p>spin</p>", Script: "while (true) {}"})

	c, out := newTestCommand(t, addCheckFlags, "--dir", dir, "--timeout", "50ms")
	require.NoError(t, runCheck(c, nil))

	assert.Contains(t, out.String(), "Status: idle")
	assert.Contains(t, out.String(), "interrupted")
}

func TestRunCheckTextReport(t *testing.T) {
	resetViper(t)
	c, out := newTestCommand(t, addCheckFlags, "--template", bundle.BasicTemplate)
	require.NoError(t, runCheck(c, nil))
	assert.Contains(t, out.String(), "Status: idle")
}

func TestLoadSourceFallsBackToConfig(t *testing.T) {
	resetViper(t)
	cfg := config.Default()

	c, _ := newTestCommand(t, addSourceFlags)
	b, err := loadSource(c, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Editor.DefaultContent.Bundle(), b)

	sample := testutils.SampleBundles["heading"]
	cfg.Workspace.Dir = testutils.CreateTempWorkspace(t, sample)
	b, err = loadSource(c, cfg)
	require.NoError(t, err)
	assert.Equal(t, sample, b)
}

func TestRunTemplates(t *testing.T) {
	resetViper(t)
	defer func() { templatesFormat = "table" }()

	templatesFormat = "json"
	c, out := newTestCommand(t, nil)
	require.NoError(t, runTemplates(c, nil))

	var templates []bundle.Template
	require.NoError(t, json.Unmarshal(out.Bytes(), &templates))

	var names []string
	for _, tpl := range templates {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"basic", "bootstrap", "tailwind"}, names)

	templatesFormat = "table"
	c, out = newTestCommand(t, nil)
	require.NoError(t, runTemplates(c, nil))
	assert.Contains(t, out.String(), "NAME")
	assert.Contains(t, out.String(), "bootstrap")
}

func TestRunVersion(t *testing.T) {
	defer func() {
		versionFormat = "text"
		versionShort = false
	}()

	versionShort = true
	c, out := newTestCommand(t, nil)
	require.NoError(t, runVersionCommand(c, nil))
	assert.Equal(t, version.Short()+"\n", out.String())

	versionShort = false
	versionFormat = "json"
	c, out = newTestCommand(t, nil)
	require.NoError(t, runVersionCommand(c, nil))
	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.GoVersion)

	versionFormat = "yaml"
	c, _ = newTestCommand(t, nil)
	assert.Error(t, runVersionCommand(c, nil))
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name     string
		addFlags func(*cobra.Command)
		args     []string
		wantErr  bool
	}{
		{name: "export html", addFlags: addExportFlags, args: []string{"--format", "html"}},
		{name: "export pdf", addFlags: addExportFlags, args: []string{"--format", "pdf"}, wantErr: true},
		{name: "check json", addFlags: addCheckFlags, args: []string{"--format", "json"}},
		{name: "check yaml", addFlags: addCheckFlags, args: []string{"--format", "yaml"}, wantErr: true},
		{
			name: "valid port",
			addFlags: func(c *cobra.Command) {
				c.Flags().Int("port", 8080, "")
				AddFlagValidation(c, "port", ValidatePort)
			},
			args: []string{"--port", "3000"},
		},
		{
			name: "port out of range",
			addFlags: func(c *cobra.Command) {
				c.Flags().Int("port", 8080, "")
				AddFlagValidation(c, "port", ValidatePort)
			},
			args:    []string{"--port", "70000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cobra.Command{}
			tt.addFlags(c)
			err := c.ParseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatedFlagKeepsType(t *testing.T) {
	c, _ := newTestCommand(t, addExportFlags, "--format", "text")
	format, err := c.Flags().GetString("format")
	require.NoError(t, err)
	assert.Equal(t, "text", format)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	resetViper(t)
	viper.Set("log.level", "chatty")

	_, err := newLogger(io.Discard)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "export", "check", "init", "templates", "version"} {
		assert.Contains(t, names, want)
	}
}
