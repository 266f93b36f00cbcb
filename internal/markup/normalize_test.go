package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "full document",
			input:    "<!DOCTYPE html><html><head><title>t</title></head><body><p>X</p></body></html>",
			expected: "<p>X</p>",
		},
		{
			name:     "plain fragment untouched",
			input:    "<h1>Hi</h1>",
			expected: "<h1>Hi</h1>",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "\n  <p>a</p>\n\n",
			expected: "<p>a</p>",
		},
		{
			name:     "case insensitive tags with attributes",
			input:    "<!doctype HTML>\n<HTML lang=\"en\">\n<HEAD>\n<link rel=\"stylesheet\" href=\"x.css\">\n</HEAD>\n<Body class=\"dark\">\n<main>m</main>\n</BODY>\n</HTML>",
			expected: "<main>m</main>",
		},
		{
			name:     "head content dropped",
			input:    "<head><style>p{color:red}</style></head><p>kept</p>",
			expected: "<p>kept</p>",
		},
		{
			name:     "stray title keeps content around the body",
			input:    "<p>before</p><title>x</title><body><p>in</p></body><p>after</p>",
			expected: "<p>before</p><title>x</title><p>in</p><p>after</p>",
		},
		{
			name:     "stray title with outside header",
			input:    "<title>Doc</title><header>outside</header><body><p>inside</p></body>",
			expected: "<title>Doc</title><header>outside</header><p>inside</p>",
		},
		{
			name:     "title with spliced body keeps body content",
			input:    "<title>t</title>a<bo<body>dy>X</bo</body>dy>b",
			expected: "X",
		},
		{
			name:     "double wrapped body",
			input:    "<body><body><p>deep</p></body></body>",
			expected: "<p>deep</p>",
		},
		{
			name:     "tag rebuilt by removal is extracted",
			input:    "a<bo<body>dy>X</bo</body>dy>b",
			expected: "X",
		},
		{
			name:     "title without body left alone",
			input:    "<title>t</title><p>p</p>",
			expected: "<title>t</title><p>p</p>",
		},
		{
			name:     "similar tag names are not stripped",
			input:    "<header>h</header><bodyguard>b</bodyguard>",
			expected: "<header>h</header><bodyguard>b</bodyguard>",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"<!DOCTYPE html><html><head><title>t</title></head><body><p>X</p></body></html>",
		"<bo<body>dy><p>x</p></bo</body>dy>",
		"<htm<html>l><he<head></head>ad>x</head>",
		"<title>a</title><body>one</body><body>two</body>",
		"   <div>  spaced  </div>   ",
		"<body>unterminated",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input: %q", in)
	}
}
