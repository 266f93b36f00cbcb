// Package validation checks URLs and origins that reach the browser or the
// origin allow-list.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/conneroisu/livepad/internal/errors"
)

// dangerousChars could break out of the argument passed to the platform's
// URL opener.
var dangerousChars = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}

// ValidateURL validates URLs for browser auto-open.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid URL: "+err.Error())
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme))
	}

	for _, char := range dangerousChars {
		if strings.Contains(rawURL, char) {
			return errors.NewValidationError(errors.ErrCodeValidationFailed,
				fmt.Sprintf("URL contains dangerous character %q", char))
		}
	}

	if parsed.Host == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "URL must have a valid hostname")
	}

	return nil
}

// ValidateOrigin checks that origin is a bare scheme://host[:port] as sent in
// the Origin header.
func ValidateOrigin(origin string) error {
	if err := ValidateURL(origin); err != nil {
		return err
	}
	parsed, _ := url.Parse(origin)
	if parsed.User != nil || (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("origin %q must not carry credentials, a path, query or fragment", origin))
	}
	return nil
}
