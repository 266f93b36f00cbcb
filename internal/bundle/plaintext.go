package bundle

import (
	"strings"

	"github.com/conneroisu/livepad/internal/errors"
)

// Section labels of the plain-text save format.
const (
	labelMarkup = "HTML:"
	labelStyle  = "CSS:"
	labelScript = "JS:"
)

// PlainTextFilename is the suggested download name for the plain-text format.
const PlainTextFilename = "sandbox-code.txt"

// FormatPlainText concatenates the fragments under HTML:, CSS: and JS: labels.
//
//	HTML:
//	<h1>Hi</h1>
//
//	CSS:
//	h1 { color: red }
//
//	JS:
//	console.log(1)
func FormatPlainText(b Bundle) string {
	var sb strings.Builder
	sb.Grow(b.Size() + 32)

	sb.WriteString(labelMarkup + "\n")
	sb.WriteString(b.Markup)
	sb.WriteString("\n\n" + labelStyle + "\n")
	sb.WriteString(b.Style)
	sb.WriteString("\n\n" + labelScript + "\n")
	sb.WriteString(b.Script)
	sb.WriteString("\n")

	return sb.String()
}

// ParsePlainText reads text produced by FormatPlainText. Section boundaries are
// the first blank-line-separated CSS: and JS: labels, so a fragment that itself
// contains such a label line on its own is split there.
func ParsePlainText(text string) (Bundle, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if !strings.HasPrefix(text, labelMarkup+"\n") {
		return Bundle{}, errors.NewValidationError(errors.ErrCodeValidationFailed,
			"plain-text bundle must start with "+labelMarkup)
	}
	rest := text[len(labelMarkup)+1:]

	styleSep := "\n\n" + labelStyle + "\n"
	i := strings.Index(rest, styleSep)
	if i < 0 {
		return Bundle{}, errors.NewValidationError(errors.ErrCodeValidationFailed,
			"plain-text bundle is missing the "+labelStyle+" section")
	}
	markup := rest[:i]
	rest = rest[i+len(styleSep):]

	scriptSep := "\n\n" + labelScript + "\n"
	j := strings.Index(rest, scriptSep)
	if j < 0 {
		return Bundle{}, errors.NewValidationError(errors.ErrCodeValidationFailed,
			"plain-text bundle is missing the "+labelScript+" section")
	}
	style := rest[:j]
	script := strings.TrimSuffix(rest[j+len(scriptSep):], "\n")

	return Bundle{Markup: markup, Style: style, Script: script}, nil
}
