package bundle

import (
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/livepad/internal/errors"
)

// Template is a named starter bundle offered by the command menu.
type Template struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Bundle Bundle `json:"bundle"`
}

// BasicTemplate is the template name that resolves to the configured default content.
const BasicTemplate = "basic"

// DefaultContent is used when no default content is configured.
var DefaultContent = Bundle{
	Markup: `<div class="container">
  <h1>Hello, livepad!</h1>
  <p>Edit the HTML, CSS and JavaScript panes to see the preview update.</p>
  <button id="greet">Click me</button>
</div>`,
	Style: `body {
  font-family: system-ui, sans-serif;
  padding: 2rem;
}

.container {
  max-width: 640px;
  margin: 0 auto;
}

h1 {
  color: #4f46e5;
  margin-bottom: 1rem;
}`,
	Script: `document.getElementById('greet').addEventListener('click', function () {
  console.log('Hello from the preview!');
});`,
}

var builtinTemplates = map[string]Bundle{
	"bootstrap": {
		Markup: `<div class="container mt-5">
  <div class="row">
    <div class="col-md-12">
      <div class="card">
        <div class="card-body">
          <h1 class="card-title">Bootstrap Template</h1>
          <p class="card-text">This is a Bootstrap 5 template.</p>
          <button class="btn btn-primary">Primary Button</button>
          <button class="btn btn-secondary">Secondary Button</button>
        </div>
      </div>
    </div>
  </div>
</div>`,
		Style: `@import url('https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/css/bootstrap.min.css');

body {
  background: linear-gradient(135deg, #e3f2fd 0%, #bbdefb 100%);
  min-height: 100vh;
}

.card {
  box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1);
  border: none;
  border-radius: 10px;
}`,
		Script: `console.log('Bootstrap template loaded!');`,
	},
	"tailwind": {
		Markup: `<div class="min-h-screen bg-gradient-to-br from-purple-400 via-pink-500 to-red-500 flex items-center justify-center">
  <div class="bg-white rounded-lg shadow-2xl p-8 max-w-md">
    <h1 class="text-3xl font-bold text-gray-800 mb-4">Tailwind CSS</h1>
    <p class="text-gray-600 mb-6">Rapidly build modern websites without ever leaving your HTML.</p>
    <div class="flex gap-4">
      <button class="bg-blue-500 hover:bg-blue-700 text-white font-bold py-2 px-4 rounded">
        Get Started
      </button>
      <button class="bg-gray-300 hover:bg-gray-400 text-gray-800 font-bold py-2 px-4 rounded">
        Learn More
      </button>
    </div>
  </div>
</div>`,
		Style:  `@import url('https://cdn.jsdelivr.net/npm/tailwindcss@2.2.19/dist/tailwind.min.css');`,
		Script: `console.log('Tailwind CSS template loaded!');`,
	},
}

// Templates resolves starter templates. The basic template is whatever the
// configuration declares as default content.
type Templates struct {
	basic Bundle
	title cases.Caser
}

// NewTemplates creates a template set whose basic template is basic.
// An empty basic bundle falls back to DefaultContent.
func NewTemplates(basic Bundle) *Templates {
	if basic.IsEmpty() {
		basic = DefaultContent
	}
	return &Templates{
		basic: basic,
		title: cases.Title(language.English),
	}
}

// Get returns the named template.
func (t *Templates) Get(name string) (Bundle, error) {
	if name == BasicTemplate {
		return t.basic, nil
	}
	b, ok := builtinTemplates[name]
	if !ok {
		return Bundle{}, errors.NewValidationError(errors.ErrCodeUnknownTemplate, "unknown template: "+name)
	}
	return b, nil
}

// List returns all templates sorted by name.
func (t *Templates) List() []Template {
	names := make([]string, 0, len(builtinTemplates)+1)
	names = append(names, BasicTemplate)
	for name := range builtinTemplates {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Template, 0, len(names))
	for _, name := range names {
		b, _ := t.Get(name)
		out = append(out, Template{Name: name, Title: t.title.String(name), Bundle: b})
	}
	return out
}
