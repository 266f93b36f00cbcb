// Package bundle holds the three user-edited fragments (markup, style and
// script) as one immutable snapshot, plus the light-weight save format and
// the built-in starter templates.
package bundle

import (
	"strings"

	"github.com/conneroisu/livepad/internal/errors"
)

// Bundle is a snapshot of the three fragments at one point in time.
// It is a value type: every change produces a new Bundle.
type Bundle struct {
	Markup string `json:"html" yaml:"html" mapstructure:"html"`
	Style  string `json:"css" yaml:"css" mapstructure:"css"`
	Script string `json:"javascript" yaml:"javascript" mapstructure:"javascript"`
}

// Fragment names one of the three buffers.
type Fragment int

const (
	FragmentMarkup Fragment = iota
	FragmentStyle
	FragmentScript
)

// String returns the wire name used by the editor and the HTTP API.
func (f Fragment) String() string {
	switch f {
	case FragmentMarkup:
		return "html"
	case FragmentStyle:
		return "css"
	case FragmentScript:
		return "javascript"
	default:
		return "unknown"
	}
}

// ParseFragment accepts the wire name or a common alias ("markup", "js"...).
func ParseFragment(name string) (Fragment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "html", "markup":
		return FragmentMarkup, nil
	case "css", "style":
		return FragmentStyle, nil
	case "javascript", "js", "script":
		return FragmentScript, nil
	default:
		return 0, errors.ErrUnknownFragment(name)
	}
}

// Get returns the text of one fragment.
func (b Bundle) Get(f Fragment) string {
	switch f {
	case FragmentMarkup:
		return b.Markup
	case FragmentStyle:
		return b.Style
	case FragmentScript:
		return b.Script
	default:
		return ""
	}
}

// With returns a copy of b with one fragment replaced.
func (b Bundle) With(f Fragment, text string) Bundle {
	switch f {
	case FragmentMarkup:
		b.Markup = text
	case FragmentStyle:
		b.Style = text
	case FragmentScript:
		b.Script = text
	}
	return b
}

// IsEmpty reports whether all three fragments are empty.
func (b Bundle) IsEmpty() bool {
	return b.Markup == "" && b.Style == "" && b.Script == ""
}

// Size is the combined byte length of the fragments.
func (b Bundle) Size() int {
	return len(b.Markup) + len(b.Style) + len(b.Script)
}
