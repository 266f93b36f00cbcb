package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validatePreviewConfigDetails(&config.Preview, result)
	validateEditorConfigDetails(&config.Editor, result)
	validateWorkspaceConfigDetails(&config.Workspace, result)
	validateRateLimitConfigDetails(&config.RateLimit, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	validEnvs := []string{"development", "production", "testing"}
	if config.Environment != "" && !contains(validEnvs, config.Environment) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.environment",
			Value:   config.Environment,
			Message: "unknown environment type",
			Suggestions: []string{
				"Use one of: " + strings.Join(validEnvs, ", "),
			},
		})
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.allowed_origins",
				Value:   origin,
				Message: errors.Message(err),
				Suggestions: []string{
					"Write origins like http://localhost:3000",
				},
			})
		}
	}
}

func validatePreviewConfigDetails(config *PreviewConfig, result *ValidationResult) {
	if config.RefreshDelay < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "preview.refresh_delay",
			Value:   config.RefreshDelay,
			Message: "refresh delay cannot be negative",
			Suggestions: []string{
				"Use 0 to render on every change",
				"The default quiet period is 500 milliseconds",
			},
		})
	} else if config.RefreshDelay > 10000 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "preview.refresh_delay",
			Value:   config.RefreshDelay,
			Message: "refresh delay above 10 seconds makes the preview feel unresponsive",
		})
	}

	if config.MaxDiagnostics < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "preview.max_diagnostics",
			Value:   config.MaxDiagnostics,
			Message: "at least one diagnostic must be retained",
		})
	}
}

func validateEditorConfigDetails(config *EditorConfig, result *ValidationResult) {
	if config.FontSize < 10 || config.FontSize > 24 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "editor.font_size",
			Value:   config.FontSize,
			Message: fmt.Sprintf("font size %d is not in valid range 10-24", config.FontSize),
		})
	}

	if config.WordWrap != "on" && config.WordWrap != "off" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "editor.word_wrap",
			Value:       config.WordWrap,
			Message:     "word wrap must be 'on' or 'off'",
			Suggestions: []string{"Use 'on' or 'off'"},
		})
	}
}

func validateWorkspaceConfigDetails(config *WorkspaceConfig, result *ValidationResult) {
	files := map[string]string{
		"workspace.markup_file": config.MarkupFile,
		"workspace.style_file":  config.StyleFile,
		"workspace.script_file": config.ScriptFile,
	}
	for field, name := range files {
		if err := validateFilename(name); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: err.Error(),
				Suggestions: []string{
					"Use a plain file name inside the workspace directory",
				},
			})
		}
	}

	if config.Watch && config.Dir == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "workspace.watch",
			Value:   config.Watch,
			Message: "watch has no effect without workspace.dir",
		})
	}
}

func validateRateLimitConfigDetails(config *RateLimitConfig, result *ValidationResult) {
	if config.RequestsPerSecond <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rate_limit.requests_per_second",
			Value:   config.RequestsPerSecond,
			Message: "requests per second must be positive",
		})
	}
	if config.Burst < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "rate_limit.burst",
			Value:   config.Burst,
			Message: "burst must be at least 1",
		})
	}
}

// Helper validation functions

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty file name")
	}

	cleanPath := filepath.Clean(name)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", name)
	}
	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("file name must be relative: %s", name)
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
