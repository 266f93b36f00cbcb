package realm

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func (e *environment) newDocument() *goja.Object {
	vm := e.vm
	doc := vm.NewObject()

	_ = doc.Set("nodeType", 9)
	_ = doc.Set("readyState", "loading")
	_ = doc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return e.first(e.query(e.root, call.Argument(0).String()))
	})
	_ = doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return e.list(e.query(e.root, call.Argument(0).String()))
	})
	_ = doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		for _, n := range e.query(e.root, "[id]") {
			if htmlquery.SelectAttr(n, "id") == id {
				return e.wrap(n)
			}
		}
		return goja.Null()
	})
	_ = doc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return e.list(e.byTag(e.root, call.Argument(0).String()))
	})
	_ = doc.Set("getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		return e.list(e.byClass(e.root, call.Argument(0).String()))
	})
	_ = doc.Set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return e.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	_ = doc.Set("createTextNode", func(call goja.FunctionCall) goja.Value {
		return e.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	_ = doc.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		e.addListener(e.docListeners, call)
		return goja.Undefined()
	})
	_ = doc.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		e.removeListener(e.docListeners, call)
		return goja.Undefined()
	})

	e.getter(doc, "body", func() goja.Value { return e.wrap(htmlquery.FindOne(e.root, "//body")) })
	e.getter(doc, "head", func() goja.Value { return e.wrap(htmlquery.FindOne(e.root, "//head")) })
	e.getter(doc, "documentElement", func() goja.Value { return e.wrap(htmlquery.FindOne(e.root, "//html")) })
	e.accessor(doc, "title",
		func() goja.Value {
			if t := htmlquery.FindOne(e.root, "//title"); t != nil {
				return vm.ToValue(strings.TrimSpace(htmlquery.InnerText(t)))
			}
			return vm.ToValue("")
		},
		func(v goja.Value) {
			if t := htmlquery.FindOne(e.root, "//title"); t != nil {
				setText(t, v.String())
			}
		})
	e.denyProperty(doc, "cookie", "Document")

	return doc
}

// wrap returns the script object for n, creating it on first use so the
// same node always maps to the same object.
func (e *environment) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := e.nodes[n]; ok {
		return obj
	}

	vm := e.vm
	obj := vm.NewObject()
	e.nodes[n] = obj
	e.objects[obj] = n

	if n.Type == html.TextNode {
		_ = obj.Set("nodeType", 3)
		e.accessor(obj, "textContent",
			func() goja.Value { return vm.ToValue(n.Data) },
			func(v goja.Value) { n.Data = v.String() })
		return obj
	}

	_ = obj.Set("nodeType", 1)
	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	_ = obj.Set("nodeName", strings.ToUpper(n.Data))
	_ = obj.Set("style", vm.NewObject())

	e.attrAccessor(obj, n, "id", "id")
	e.attrAccessor(obj, n, "className", "class")
	e.attrAccessor(obj, n, "value", "value")
	e.accessor(obj, "textContent",
		func() goja.Value { return vm.ToValue(htmlquery.InnerText(n)) },
		func(v goja.Value) { setText(n, v.String()) })
	e.accessor(obj, "innerHTML",
		func() goja.Value { return vm.ToValue(htmlquery.OutputHTML(n, false)) },
		func(v goja.Value) { e.setInnerHTML(n, v.String()) })
	e.getter(obj, "outerHTML", func() goja.Value { return vm.ToValue(htmlquery.OutputHTML(n, true)) })
	e.getter(obj, "parentElement", func() goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return e.wrap(n.Parent)
	})
	e.getter(obj, "children", func() goja.Value {
		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				kids = append(kids, c)
			}
		}
		return e.list(kids)
	})

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := getAttr(n, call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := getAttr(n, call.Argument(0).String())
		return vm.ToValue(ok)
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return e.first(e.query(n, call.Argument(0).String()))
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return e.list(e.query(n, call.Argument(0).String()))
	})
	_ = obj.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child := e.unwrap(call.Argument(0))
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		n.AppendChild(child)
		return call.Argument(0)
	})
	_ = obj.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		child := e.unwrap(call.Argument(0))
		if child.Parent != n {
			panic(vm.NewTypeError("NotFoundError: The node to be removed is not a child of this node."))
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return goja.Undefined()
	})
	_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		if e.nodeHandlers[n] == nil {
			e.nodeHandlers[n] = make(map[string][]goja.Value)
		}
		e.addListener(e.nodeHandlers[n], call)
		return goja.Undefined()
	})
	_ = obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		if handlers := e.nodeHandlers[n]; handlers != nil {
			e.removeListener(handlers, call)
		}
		return goja.Undefined()
	})
	_ = obj.Set("click", func(goja.FunctionCall) goja.Value {
		event, _ := e.newEvent("click", map[string]interface{}{"target": obj})
		e.dispatch(obj, e.nodeHandlers[n], "click", event)
		return goja.Undefined()
	})
	_ = obj.Set("classList", e.classList(n))

	return obj
}

func (e *environment) unwrap(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if ok {
		if n, ok := e.objects[obj]; ok {
			return n
		}
	}
	panic(e.vm.NewTypeError("parameter 1 is not of type 'Node'."))
}

func (e *environment) classList(n *html.Node) *goja.Object {
	vm := e.vm
	list := vm.NewObject()

	classes := func() []string {
		v, _ := getAttr(n, "class")
		return strings.Fields(v)
	}
	has := func(name string) bool {
		for _, c := range classes() {
			if c == name {
				return true
			}
		}
		return false
	}
	add := func(name string) {
		if !has(name) {
			setAttr(n, "class", strings.Join(append(classes(), name), " "))
		}
	}
	remove := func(name string) {
		kept := classes()[:0]
		for _, c := range classes() {
			if c != name {
				kept = append(kept, c)
			}
		}
		setAttr(n, "class", strings.Join(kept, " "))
	}

	_ = list.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(has(call.Argument(0).String()))
	})
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			add(a.String())
		}
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			remove(a.String())
		}
		return goja.Undefined()
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if has(name) {
			remove(name)
			return vm.ToValue(false)
		}
		add(name)
		return vm.ToValue(true)
	})
	return list
}

// query resolves a CSS selector below root.
func (e *environment) query(root *html.Node, selector string) []*html.Node {
	return goquery.NewDocumentFromNode(root).Find(selector).Nodes
}

func (e *environment) byTag(root *html.Node, tag string) []*html.Node {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil
	}
	expr := "//" + tag
	if tag == "*" {
		expr = "//*"
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil
	}
	return nodes
}

func (e *environment) byClass(root *html.Node, names string) []*html.Node {
	want := strings.Fields(names)
	if len(want) == 0 {
		return nil
	}
	var out []*html.Node
	for _, n := range e.query(root, "[class]") {
		have := strings.Fields(htmlquery.SelectAttr(n, "class"))
		if containsAll(have, want) {
			out = append(out, n)
		}
	}
	return out
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (e *environment) first(nodes []*html.Node) goja.Value {
	if len(nodes) == 0 {
		return goja.Null()
	}
	return e.wrap(nodes[0])
}

func (e *environment) list(nodes []*html.Node) goja.Value {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = e.wrap(n)
	}
	return e.vm.NewArray(items...)
}

func (e *environment) getter(obj *goja.Object, name string, get func() goja.Value) {
	g := e.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	_ = obj.DefineAccessorProperty(name, g, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (e *environment) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	g := e.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	s := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		set(call.Argument(0))
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty(name, g, s, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (e *environment) attrAccessor(obj *goja.Object, n *html.Node, prop, attr string) {
	e.accessor(obj, prop,
		func() goja.Value {
			v, _ := getAttr(n, attr)
			return e.vm.ToValue(v)
		},
		func(v goja.Value) { setAttr(n, attr, v.String()) })
}

func (e *environment) setInnerHTML(n *html.Node, markup string) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		panic(e.vm.NewTypeError("SyntaxError: " + err.Error()))
	}
	clearChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

func setText(n *html.Node, text string) {
	clearChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
