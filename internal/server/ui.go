package server

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/surface"
)

// EditorOptions are the client-side settings baked into the editor page.
type EditorOptions struct {
	FontSize  int
	WordWrap  string
	Templates []bundle.Template
	Version   string
}

// layout wraps body in the shared page chrome.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>%s</style>
</head>
<body>
`, templ.EscapeString(title), pageStyles); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}

// EditorPage is the three-pane editor with the sandboxed preview.
func EditorPage(opts EditorOptions) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		wrap := "soft"
		if opts.WordWrap == "off" {
			wrap = "off"
		}
		fontSize := strconv.Itoa(opts.FontSize) + "px"

		if _, err := fmt.Fprintf(w, `<header class="bar">
  <strong>livepad</strong>
  <nav class="menu">
    <button data-action="new-file" title="Ctrl+Shift+N">New</button>
    <button data-action="save-file" title="Ctrl+S">Save</button>
    <button data-action="export-file" title="Ctrl+Shift+E">Export HTML</button>
    <button id="open-window" title="Ctrl+Shift+O">Open in new window</button>
    <select id="templates"><option value="">Load template…</option>`); err != nil {
			return err
		}
		for _, t := range opts.Templates {
			if _, err := fmt.Fprintf(w, `<option value="load-template-%s">%s</option>`,
				templ.EscapeString(t.Name), templ.EscapeString(t.Title)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, `</select>
    <button data-action="refresh" title="Ctrl+Enter">Refresh</button>
    <a href="/docs" target="_blank" rel="noopener">Docs</a>
  </nav>
  <span class="status"><span id="status-dot" class="dot idle"></span><span id="updating" hidden>Updating…</span></span>
</header>
<div id="error-banner" class="banner" hidden><span id="error-message"></span> <button id="retry">Retry</button></div>
<main class="panes">
  <section class="editors">
    <label>HTML<textarea id="html" data-fragment="html" spellcheck="false" wrap="%[1]s" style="font-size:%[2]s"></textarea></label>
    <label>CSS<textarea id="css" data-fragment="css" spellcheck="false" wrap="%[1]s" style="font-size:%[2]s"></textarea></label>
    <label>JavaScript<textarea id="javascript" data-fragment="javascript" spellcheck="false" wrap="%[1]s" style="font-size:%[2]s"></textarea></label>
  </section>
  <section class="preview">
    <iframe id="preview" title="Preview" src="/preview/frame" sandbox="%[3]s"></iframe>
    <details open><summary>Diagnostics <button id="clear-diagnostics">Clear</button></summary><ol id="diagnostics"></ol></details>
  </section>
</main>
<footer class="bar">%[4]s</footer>
<script>%[5]s</script>`,
			wrap, fontSize, templ.EscapeString(surface.SandboxPolicy),
			templ.EscapeString(opts.Version), editorScript); err != nil {
			return err
		}
		return nil
	})
	return layout("livepad", body)
}

// DocsPage wraps the rendered guide.
func DocsPage(guideHTML string) templ.Component {
	return layout("livepad - Docs", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<article class="docs">%s</article>`, guideHTML)
		return err
	}))
}

const pageStyles = `* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: system-ui, sans-serif; height: 100vh; display: flex; flex-direction: column; }
.bar { display: flex; gap: 1rem; align-items: center; padding: .5rem 1rem; background: #1e1e2e; color: #cdd6f4; }
.menu { display: flex; gap: .5rem; flex: 1; }
.dot { display: inline-block; width: .7rem; height: .7rem; border-radius: 50%; margin-right: .4rem; }
.dot.idle { background: #a6e3a1; } .dot.loading { background: #f9e2af; } .dot.error { background: #f38ba8; }
.banner { background: #f38ba8; color: #11111b; padding: .5rem 1rem; }
.panes { flex: 1; display: grid; grid-template-columns: 1fr 1fr; min-height: 0; }
.editors { display: grid; grid-template-rows: repeat(3, 1fr); }
.editors label { display: flex; flex-direction: column; font-size: .8rem; padding: .25rem; }
.editors textarea { flex: 1; font-family: ui-monospace, monospace; padding: .5rem; }
.preview { display: flex; flex-direction: column; }
.preview iframe { flex: 1; border: 0; background: #fff; }
.preview details { max-height: 30%; overflow: auto; font-family: ui-monospace, monospace; font-size: .8rem; }
.diag-error { color: #d20f39; } .diag-warn { color: #df8e1d; }
.docs { max-width: 48rem; margin: 2rem auto; line-height: 1.6; padding: 0 1rem; }
.docs table { border-collapse: collapse; margin: 1rem 0; } .docs td, .docs th { border: 1px solid #ccc; padding: .25rem .5rem; }`

const editorScript = `(function() {
  'use strict';
  var panes = document.querySelectorAll('textarea[data-fragment]');
  var frame = document.getElementById('preview');
  var dot = document.getElementById('status-dot');
  var updating = document.getElementById('updating');
  var banner = document.getElementById('error-banner');
  var list = document.getElementById('diagnostics');

  function api(method, path, body) {
    return fetch(path, {
      method: method,
      headers: body === undefined ? {} : {'Content-Type': 'application/json'},
      body: body === undefined ? undefined : JSON.stringify(body)
    });
  }

  function fill(bundle) {
    panes.forEach(function(p) { p.value = bundle[p.dataset.fragment] || ''; });
  }

  function showState(state) {
    dot.className = 'dot ' + state.status;
    updating.hidden = state.status !== 'loading';
    banner.hidden = state.status !== 'error';
    document.getElementById('error-message').textContent = state.message || '';
  }

  function addDiagnostic(d) {
    var li = document.createElement('li');
    li.className = 'diag-' + d.level;
    li.textContent = '[' + d.kind + '] ' + d.message + (d.line ? ' (line ' + d.line + ')' : '');
    list.appendChild(li);
  }

  function download(format) {
    window.location.href = '/api/export?format=' + format;
  }

  function action(name) {
    if (name === 'save-file') { return download('text'); }
    if (name === 'export-file') { return download('html'); }
    return api('POST', '/api/actions', {action: name}).then(function(r) { return r.json(); }).then(function(res) {
      if (res.bundle) { fill(res.bundle); }
    });
  }

  panes.forEach(function(p) {
    p.addEventListener('input', function() {
      api('PATCH', '/api/bundle/' + p.dataset.fragment, {text: p.value});
    });
  });

  document.querySelectorAll('[data-action]').forEach(function(b) {
    b.addEventListener('click', function() { action(b.dataset.action); });
  });
  document.getElementById('templates').addEventListener('change', function(e) {
    if (e.target.value) { action(e.target.value); e.target.value = ''; }
  });
  document.getElementById('retry').addEventListener('click', function() { action('refresh'); });
  document.getElementById('open-window').addEventListener('click', function() {
    window.open('/api/export?format=html&disposition=inline', '_blank', 'noopener');
  });
  document.getElementById('clear-diagnostics').addEventListener('click', function(e) {
    e.preventDefault();
    api('DELETE', '/api/diagnostics').then(function() { list.textContent = ''; });
  });

  document.addEventListener('keydown', function(e) {
    if (!e.ctrlKey && !e.metaKey) { return; }
    var key = e.key.toLowerCase();
    var name = null;
    if (key === 'enter') { name = 'refresh'; }
    else if (key === 's' && !e.shiftKey) { name = 'save-file'; }
    else if (key === 'e' && e.shiftKey) { name = 'export-file'; }
    else if (key === 'n' && e.shiftKey) { name = 'new-file'; }
    else if (key === 'o' && e.shiftKey) { document.getElementById('open-window').click(); }
    if (name) { e.preventDefault(); action(name); }
  });

  // The sandboxed frame posts bridge messages to us; relay them.
  window.addEventListener('message', function(e) {
    if (e.source !== frame.contentWindow || !e.data || e.data.source !== 'livepad-diagnostics') { return; }
    api('POST', '/api/diagnostics', e.data);
  });

  function connect() {
    var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = function(msg) {
      var ev = JSON.parse(msg.data);
      if (ev.type === 'state') { showState(ev.state); }
      else if (ev.type === 'reload') { frame.src = '/preview/frame?rev=' + ev.revision; }
      else if (ev.type === 'diagnostic') { addDiagnostic(ev.diagnostic); }
    };
    ws.onclose = function() { setTimeout(connect, 1000); };
  }

  api('GET', '/api/bundle').then(function(r) { return r.json(); }).then(fill);
  api('GET', '/api/state').then(function(r) { return r.json(); }).then(showState);
  api('GET', '/api/diagnostics').then(function(r) { return r.json(); }).then(function(res) {
    (res.diagnostics || []).forEach(addDiagnostic);
  });
  connect();
})();`
