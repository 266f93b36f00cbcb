package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepad/internal/errors"
)

func TestParseFragment(t *testing.T) {
	tests := []struct {
		name     string
		expected Fragment
		wantErr  bool
	}{
		{"html", FragmentMarkup, false},
		{"Markup", FragmentMarkup, false},
		{"css", FragmentStyle, false},
		{"javascript", FragmentScript, false},
		{" js ", FragmentScript, false},
		{"python", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFragment(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestWithReturnsCopy(t *testing.T) {
	original := Bundle{Markup: "<p>a</p>", Style: "p{}", Script: "1"}
	changed := original.With(FragmentStyle, "p{color:red}")

	assert.Equal(t, "p{}", original.Style)
	assert.Equal(t, "p{color:red}", changed.Style)
	assert.Equal(t, original.Markup, changed.Markup)
	assert.Equal(t, "p{color:red}", changed.Get(FragmentStyle))
}

func TestIsEmptyAndSize(t *testing.T) {
	assert.True(t, Bundle{}.IsEmpty())
	b := Bundle{Markup: "ab", Script: "c"}
	assert.False(t, b.IsEmpty())
	assert.Equal(t, 3, b.Size())
}

func TestFormatPlainText(t *testing.T) {
	b := Bundle{Markup: "<p>A</p>", Style: "p{color:blue}", Script: "console.log(1)"}

	expected := "HTML:\n<p>A</p>\n\nCSS:\np{color:blue}\n\nJS:\nconsole.log(1)\n"
	assert.Equal(t, expected, FormatPlainText(b))

	parsed, err := ParsePlainText(FormatPlainText(b))
	require.NoError(t, err)
	assert.Equal(t, b, parsed)
}

func TestParsePlainTextPreservesMultilineFragments(t *testing.T) {
	b := Bundle{
		Markup: "<ul>\n  <li>one</li>\n\n  <li>two</li>\n</ul>",
		Style:  "li {\n  color: red;\n}",
		Script: "",
	}

	parsed, err := ParsePlainText(FormatPlainText(b))
	require.NoError(t, err)
	assert.Equal(t, b, parsed)
}

func TestParsePlainTextErrors(t *testing.T) {
	tests := map[string]string{
		"missing header": "CSS:\n\n\nJS:\n",
		"missing css":    "HTML:\n<p></p>\n\nJS:\nx\n",
		"missing js":     "HTML:\n<p></p>\n\nCSS:\np{}\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlainText(input)
			assert.Error(t, err)
		})
	}
}

func TestParsePlainTextAcceptsCRLF(t *testing.T) {
	parsed, err := ParsePlainText("HTML:\r\n<b>x</b>\r\n\r\nCSS:\r\nb{}\r\n\r\nJS:\r\nlet a = 1\r\n")
	require.NoError(t, err)
	assert.Equal(t, Bundle{Markup: "<b>x</b>", Style: "b{}", Script: "let a = 1"}, parsed)
}

func TestTemplates(t *testing.T) {
	custom := Bundle{Markup: "<h1>Mine</h1>"}
	templates := NewTemplates(custom)

	basic, err := templates.Get(BasicTemplate)
	require.NoError(t, err)
	assert.Equal(t, custom, basic)

	bootstrap, err := templates.Get("bootstrap")
	require.NoError(t, err)
	assert.Contains(t, bootstrap.Style, "bootstrap.min.css")

	_, err = templates.Get("jquery")
	assert.Error(t, err)

	list := templates.List()
	require.Len(t, list, 3)
	assert.Equal(t, "basic", list[0].Name)
	assert.Equal(t, "Basic", list[0].Title)
	assert.Equal(t, "Tailwind", list[2].Title)
}

func TestTemplatesFallBackToDefaultContent(t *testing.T) {
	basic, err := NewTemplates(Bundle{}).Get(BasicTemplate)
	require.NoError(t, err)
	assert.Equal(t, DefaultContent, basic)
}
