// Package config provides configuration management for livepad using Viper
// for loading from a YAML file, LIVEPAD_ environment variables and
// command-line flags.
//
// The configuration covers the HTTP server, the preview pipeline (refresh
// delay, diagnostics retention), editor defaults, the optional watched
// workspace and API rate limiting.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/errors"
)

// DefaultFilename is the configuration file looked up in the working directory.
const DefaultFilename = ".livepad.yml"

// EnvPrefix prefixes every environment override, e.g. LIVEPAD_SERVER_PORT.
const EnvPrefix = "LIVEPAD"

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Preview   PreviewConfig   `yaml:"preview" mapstructure:"preview"`
	Editor    EditorConfig    `yaml:"editor" mapstructure:"editor"`
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	Open           bool     `yaml:"open" mapstructure:"open"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" mapstructure:"allowed_origins"`
	Environment    string   `yaml:"environment" mapstructure:"environment"`
}

type PreviewConfig struct {
	// RefreshDelay is the debounce quiet period in milliseconds.
	RefreshDelay             int  `yaml:"refresh_delay" mapstructure:"refresh_delay"`
	ClearDiagnosticsOnRender bool `yaml:"clear_diagnostics_on_render" mapstructure:"clear_diagnostics_on_render"`
	MaxDiagnostics           int  `yaml:"max_diagnostics" mapstructure:"max_diagnostics"`
}

// RefreshDelayDuration returns RefreshDelay as a time.Duration.
func (p PreviewConfig) RefreshDelayDuration() time.Duration {
	return time.Duration(p.RefreshDelay) * time.Millisecond
}

type EditorConfig struct {
	DefaultContent ContentConfig `yaml:"default_content" mapstructure:"default_content"`
	FontSize       int           `yaml:"font_size" mapstructure:"font_size"`
	WordWrap       string        `yaml:"word_wrap" mapstructure:"word_wrap"`
}

// ContentConfig is the initial bundle shown in a new editor.
type ContentConfig struct {
	HTML       string `yaml:"html" mapstructure:"html"`
	CSS        string `yaml:"css" mapstructure:"css"`
	JavaScript string `yaml:"javascript" mapstructure:"javascript"`
}

// Bundle converts the configured content into a bundle.
func (c ContentConfig) Bundle() bundle.Bundle {
	return bundle.Bundle{Markup: c.HTML, Style: c.CSS, Script: c.JavaScript}
}

type WorkspaceConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	MarkupFile string `yaml:"markup_file" mapstructure:"markup_file"`
	StyleFile  string `yaml:"style_file" mapstructure:"style_file"`
	ScriptFile string `yaml:"script_file" mapstructure:"script_file"`
	Watch      bool   `yaml:"watch" mapstructure:"watch"`
}

// Enabled reports whether a workspace directory was configured.
func (w WorkspaceConfig) Enabled() bool {
	return w.Dir != ""
}

// Files returns the fragment file paths inside Dir.
func (w WorkspaceConfig) Files() map[bundle.Fragment]string {
	return map[bundle.Fragment]string{
		bundle.FragmentMarkup: filepath.Join(w.Dir, w.MarkupFile),
		bundle.FragmentStyle:  filepath.Join(w.Dir, w.StyleFile),
		bundle.FragmentScript: filepath.Join(w.Dir, w.ScriptFile),
	}
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	content := bundle.DefaultContent
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "localhost",
			Environment: "development",
		},
		Preview: PreviewConfig{
			RefreshDelay:             500,
			ClearDiagnosticsOnRender: true,
			MaxDiagnostics:           200,
		},
		Editor: EditorConfig{
			DefaultContent: ContentConfig{
				HTML:       content.Markup,
				CSS:        content.Style,
				JavaScript: content.Script,
			},
			FontSize: 14,
			WordWrap: "on",
		},
		Workspace: WorkspaceConfig{
			MarkupFile: "index.html",
			StyleFile:  "style.css",
			ScriptFile: "script.js",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// SetDefaults registers Default() on v so unset keys, including booleans
// that default to true, resolve correctly after Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("preview.refresh_delay", d.Preview.RefreshDelay)
	v.SetDefault("preview.clear_diagnostics_on_render", d.Preview.ClearDiagnosticsOnRender)
	v.SetDefault("preview.max_diagnostics", d.Preview.MaxDiagnostics)
	v.SetDefault("editor.default_content.html", d.Editor.DefaultContent.HTML)
	v.SetDefault("editor.default_content.css", d.Editor.DefaultContent.CSS)
	v.SetDefault("editor.default_content.javascript", d.Editor.DefaultContent.JavaScript)
	v.SetDefault("editor.font_size", d.Editor.FontSize)
	v.SetDefault("editor.word_wrap", d.Editor.WordWrap)
	v.SetDefault("workspace.markup_file", d.Workspace.MarkupFile)
	v.SetDefault("workspace.style_file", d.Workspace.StyleFile)
	v.SetDefault("workspace.script_file", d.Workspace.ScriptFile)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
}

// ConfigureEnv enables LIVEPAD_<SECTION>_<KEY> overrides on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, fills defaults for keys v does not know about and
// validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}

	// Viper does not split comma separated env values into slices.
	if len(config.Server.AllowedOrigins) == 1 && strings.Contains(config.Server.AllowedOrigins[0], ",") {
		config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins[0])
	}

	if config.Workspace.Dir != "" {
		config.Workspace.Dir = filepath.Clean(config.Workspace.Dir)
	}

	result := ValidateConfigWithDetails(&config)
	if result.HasErrors() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid configuration: %s", result.Errors[0].Error()), nil).
			WithContext("errors", len(result.Errors))
	}

	return &config, nil
}

// WriteDefault writes Default() as YAML to path. An existing file is left
// untouched unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.NewValidationError(errors.ErrCodeValidationFailed,
				fmt.Sprintf("%s already exists", path))
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "failed to encode default configuration", err)
	}

	header := []byte("# livepad configuration\n# Every key can be overridden with LIVEPAD_<SECTION>_<KEY>.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeIOFailed, "failed to write "+path, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
