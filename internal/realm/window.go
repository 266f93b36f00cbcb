package realm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/conneroisu/livepad/internal/diagnostics"
)

// prelude fills in the parts of the window that are simpler to express in
// script than through the Go bindings.
const prelude = `
window.queueMicrotask = function(cb) { Promise.resolve().then(cb); };
window.requestAnimationFrame = function(cb) {
    return setTimeout(function() { cb(performance.now()); }, 16);
};
window.cancelAnimationFrame = function(id) { clearTimeout(id); };
`

type task struct {
	id       int64
	seq      int64
	due      time.Duration
	interval time.Duration
	fn       goja.Callable
	code     string
	args     []goja.Value
}

// environment is the state of one hosted document. It is created per swap
// and dropped afterwards, together with its runtime.
type environment struct {
	realm    *Realm
	vm       *goja.Runtime
	root     *html.Node
	revision uint64
	window   *goja.Object
	document *goja.Object

	listeners    map[string][]goja.Value
	docListeners map[string][]goja.Value

	tasks    []*task
	nextID   int64
	nextSeq  int64
	now      time.Duration
	tasksRun int

	rejected []*goja.Promise

	// offsets maps script names to the document line they start on.
	offsets map[string]int

	nodes        map[*html.Node]*goja.Object
	objects      map[*goja.Object]*html.Node
	nodeHandlers map[*html.Node]map[string][]goja.Value

	interrupted error
}

func newEnvironment(r *Realm, root *html.Node, revision uint64) *environment {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	env := &environment{
		realm:        r,
		vm:           vm,
		root:         root,
		revision:     revision,
		window:       vm.GlobalObject(),
		listeners:    make(map[string][]goja.Value),
		docListeners: make(map[string][]goja.Value),
		offsets:      make(map[string]int),
		nodes:        make(map[*html.Node]*goja.Object),
		objects:      make(map[*goja.Object]*html.Node),
		nodeHandlers: make(map[*html.Node]map[string][]goja.Value),
	}

	vm.SetPromiseRejectionTracker(env.trackRejection)
	env.setupWindow()
	env.document = env.newDocument()
	_ = env.window.Set("document", env.document)

	if _, err := vm.RunString(prelude); err != nil {
		r.logger.Error(context.Background(), err, "Failed to install window prelude")
	}
	return env
}

// watch interrupts the runtime when ctx is cancelled.
func (e *environment) watch(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (e *environment) setupWindow() {
	vm := e.vm
	w := e.window

	_ = w.Set("window", w)
	_ = w.Set("self", w)

	parent := vm.NewObject()
	_ = parent.Set("postMessage", e.postToParent)
	_ = w.Set("parent", parent)
	_ = w.Set("top", parent)
	_ = w.Set("postMessage", func(goja.FunctionCall) goja.Value { return goja.Undefined() })

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, e.consoleFunc(level))
	}
	_ = w.Set("console", console)

	_ = w.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		e.addListener(e.listeners, call)
		return goja.Undefined()
	})
	_ = w.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		e.removeListener(e.listeners, call)
		return goja.Undefined()
	})

	_ = w.Set("alert", func(call goja.FunctionCall) goja.Value {
		e.realm.appendConsole("alert", call.Argument(0).String())
		return goja.Undefined()
	})
	_ = w.Set("confirm", func(call goja.FunctionCall) goja.Value {
		e.realm.appendConsole("confirm", call.Argument(0).String())
		return vm.ToValue(true)
	})
	_ = w.Set("prompt", func(call goja.FunctionCall) goja.Value {
		e.realm.appendConsole("prompt", call.Argument(0).String())
		return goja.Null()
	})

	_ = w.Set("setTimeout", e.schedule(false))
	_ = w.Set("setInterval", e.schedule(true))
	_ = w.Set("clearTimeout", e.cancelTask)
	_ = w.Set("clearInterval", e.cancelTask)

	performance := vm.NewObject()
	_ = performance.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(float64(e.now) / float64(time.Millisecond))
	})
	_ = w.Set("performance", performance)

	location := vm.NewObject()
	_ = location.Set("href", "about:srcdoc")
	_ = location.Set("origin", "null")
	_ = w.Set("location", location)

	navigator := vm.NewObject()
	_ = navigator.Set("userAgent", "livepad-realm")
	_ = w.Set("navigator", navigator)

	// The hosted document runs in an opaque origin.
	for _, name := range []string{"localStorage", "sessionStorage", "indexedDB"} {
		e.denyProperty(w, name, "Window")
	}
}

func (e *environment) denyProperty(obj *goja.Object, name, owner string) {
	getter := e.vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(e.vm.NewTypeError(fmt.Sprintf(
			"SecurityError: Failed to read the '%s' property from '%s': The document is sandboxed and lacks the 'allow-same-origin' flag.",
			name, owner)))
	})
	_ = obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (e *environment) postToParent(call goja.FunctionCall) goja.Value {
	msg, ok := call.Argument(0).Export().(map[string]interface{})
	if !ok {
		return goja.Undefined()
	}
	d, err := diagnostics.FromMessage(msg)
	if err != nil {
		e.realm.logger.Debug(context.Background(), "Ignoring message to parent", "error", err.Error())
		return goja.Undefined()
	}
	e.report(d)
	return goja.Undefined()
}

func (e *environment) report(d diagnostics.Diagnostic) {
	d.Revision = e.revision
	if e.realm.sink != nil {
		e.realm.sink.Report(d)
	}
}

func (e *environment) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, e.stringify(arg))
		}
		e.realm.appendConsole(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// stringify renders a value the way a console does: strings raw, errors by
// their toString, plain objects as JSON.
func (e *environment) stringify(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Error" || obj.ClassName() == "Function" {
		return v.String()
	}
	if _, isNode := e.objects[obj]; isNode {
		return v.String()
	}
	b, err := obj.MarshalJSON()
	if err != nil {
		return v.String()
	}
	return string(b)
}

func (e *environment) addListener(into map[string][]goja.Value, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); !ok {
		return
	}
	for _, existing := range into[typ] {
		if existing.SameAs(fn) {
			return
		}
	}
	into[typ] = append(into[typ], fn)
}

func (e *environment) removeListener(from map[string][]goja.Value, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	kept := from[typ][:0]
	for _, existing := range from[typ] {
		if !existing.SameAs(fn) {
			kept = append(kept, existing)
		}
	}
	from[typ] = kept
}

// newEvent returns an event object and a pointer reporting whether a
// listener called preventDefault.
func (e *environment) newEvent(typ string, fields map[string]interface{}) (*goja.Object, *bool) {
	prevented := new(bool)
	event := e.vm.NewObject()
	_ = event.Set("type", typ)
	_ = event.Set("defaultPrevented", false)
	for k, v := range fields {
		_ = event.Set(k, v)
	}
	_ = event.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		*prevented = true
		_ = event.Set("defaultPrevented", true)
		return goja.Undefined()
	})
	_ = event.Set("stopPropagation", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	return event, prevented
}

// dispatch calls every listener of typ in registration order.
func (e *environment) dispatch(this goja.Value, handlers map[string][]goja.Value, typ string, event *goja.Object) {
	for _, l := range append([]goja.Value(nil), handlers[typ]...) {
		fn, ok := goja.AssertFunction(l)
		if !ok {
			continue
		}
		if _, err := fn(this, event); err != nil {
			if e.checkInterrupt(err) {
				return
			}
			if typ == "error" {
				e.realm.appendConsole("error", "Uncaught "+exceptionMessage(err))
				continue
			}
			e.uncaught(err)
		}
	}
}

func (e *environment) checkInterrupt(err error) bool {
	if _, ok := err.(*goja.InterruptedError); ok {
		e.interrupted = err
		return true
	}
	return false
}

// runScripts executes inline scripts in document order, then fires
// DOMContentLoaded and load.
func (e *environment) runScripts(document string) {
	scripts := htmlquery.Find(e.root, "//script")
	for i, script := range scripts {
		if src := htmlquery.SelectAttr(script, "src"); src != "" {
			e.realm.appendConsole("warn", "External script not loaded: "+src)
			continue
		}
		if !isJavaScript(htmlquery.SelectAttr(script, "type")) {
			continue
		}

		text := htmlquery.InnerText(script)
		name := fmt.Sprintf("inline-script-%d", i+1)
		e.offsets[name] = lineOffset(document, text)
		e.run(func() error {
			_, err := e.vm.RunScript(name, text)
			return err
		})
		if e.interrupted != nil {
			return
		}
	}

	_ = e.document.Set("readyState", "complete")
	loaded, _ := e.newEvent("DOMContentLoaded", nil)
	e.run(func() error {
		e.dispatch(e.document, e.docListeners, "DOMContentLoaded", loaded)
		return nil
	})
	load, _ := e.newEvent("load", nil)
	e.run(func() error {
		e.dispatch(e.window, e.listeners, "load", load)
		return nil
	})
}

func isJavaScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

// run executes one task, reports an uncaught exception through the error
// event and flushes unhandled rejections.
func (e *environment) run(fn func() error) {
	err := fn()
	if err != nil && !e.checkInterrupt(err) {
		e.uncaught(err)
	}
	if e.interrupted == nil {
		e.flushRejections()
	}
}

func (e *environment) uncaught(err error) {
	message := "Uncaught " + exceptionMessage(err)
	file, line := exceptionPosition(err)
	if line > 0 {
		line += e.offsets[file]
	}

	fields := map[string]interface{}{
		"message":  message,
		"lineno":   line,
		"colno":    0,
		"filename": "about:srcdoc",
	}
	if ex, ok := err.(*goja.Exception); ok {
		fields["error"] = ex.Value()
	}
	event, prevented := e.newEvent("error", fields)
	e.dispatch(e.window, e.listeners, "error", event)
	if e.callHandlerProperty("onerror", message, "about:srcdoc", line, 0, fields["error"]) {
		*prevented = true
	}
	if *prevented {
		return
	}

	e.realm.appendConsole("error", message)
	e.report(diagnostics.Diagnostic{
		Kind:    diagnostics.KindRuntimeError,
		Level:   "error",
		Message: message,
		Line:    line,
	})
}

// callHandlerProperty invokes window.on<event> if set and reports whether it
// returned true.
func (e *environment) callHandlerProperty(name string, args ...interface{}) bool {
	fn, ok := goja.AssertFunction(e.window.Get(name))
	if !ok {
		return false
	}
	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = e.vm.ToValue(a)
	}
	result, err := fn(e.window, values...)
	if err != nil {
		e.checkInterrupt(err)
		return false
	}
	return result != nil && result.ToBoolean()
}

func (e *environment) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		e.rejected = append(e.rejected, p)
	case goja.PromiseRejectionHandle:
		for i, r := range e.rejected {
			if r == p {
				e.rejected = append(e.rejected[:i], e.rejected[i+1:]...)
				break
			}
		}
	}
}

func (e *environment) flushRejections() {
	pending := e.rejected
	e.rejected = nil

	for _, p := range pending {
		reason := p.Result()
		event, prevented := e.newEvent("unhandledrejection", map[string]interface{}{
			"reason": reason,
		})
		e.dispatch(e.window, e.listeners, "unhandledrejection", event)
		if e.interrupted != nil {
			return
		}
		if e.callHandlerProperty("onunhandledrejection", event) {
			*prevented = true
		}
		if *prevented {
			continue
		}

		message := "Uncaught (in promise) " + e.stringify(reason)
		e.realm.appendConsole("error", message)
		e.report(diagnostics.Diagnostic{
			Kind:    diagnostics.KindUnhandledRejection,
			Level:   "error",
			Message: message,
		})
	}
}

func (e *environment) schedule(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}

		e.nextID++
		e.nextSeq++
		t := &task{id: e.nextID, seq: e.nextSeq, due: e.now + delay}
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			t.fn = fn
		} else {
			t.code = call.Argument(0).String()
		}
		if len(call.Arguments) > 2 {
			t.args = append([]goja.Value(nil), call.Arguments[2:]...)
		}
		if repeat {
			t.interval = delay
			if t.interval < time.Millisecond {
				t.interval = time.Millisecond
			}
		}
		e.tasks = append(e.tasks, t)
		return e.vm.ToValue(t.id)
	}
}

func (e *environment) cancelTask(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if t.id != id {
			kept = append(kept, t)
		}
	}
	e.tasks = kept
	return goja.Undefined()
}

// runTimers drains the timer queue on the virtual clock until the horizon or
// the task cap is reached.
func (e *environment) runTimers() {
	for len(e.tasks) > 0 && e.interrupted == nil {
		sort.SliceStable(e.tasks, func(i, j int) bool {
			if e.tasks[i].due == e.tasks[j].due {
				return e.tasks[i].seq < e.tasks[j].seq
			}
			return e.tasks[i].due < e.tasks[j].due
		})

		t := e.tasks[0]
		if t.due > e.realm.config.TimerHorizon {
			e.realm.logger.Debug(context.Background(), "Timers left pending past horizon", "count", len(e.tasks))
			return
		}
		if e.tasksRun >= e.realm.config.MaxTasks {
			e.realm.logger.Warn(context.Background(), nil, "Timer task limit reached", "limit", e.realm.config.MaxTasks)
			return
		}

		e.tasks = e.tasks[1:]
		e.now = t.due
		e.tasksRun++
		if t.interval > 0 {
			e.nextSeq++
			e.tasks = append(e.tasks, &task{
				id: t.id, seq: e.nextSeq, due: t.due + t.interval, interval: t.interval,
				fn: t.fn, code: t.code, args: t.args,
			})
		}

		e.run(func() error {
			if t.fn != nil {
				_, err := t.fn(goja.Undefined(), t.args...)
				return err
			}
			_, err := e.vm.RunString(t.code)
			return err
		})
	}
}
