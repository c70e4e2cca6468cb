package roddom

import (
	"fmt"

	"github.com/hazyhaar/playerwatch/dom"
)

// Element is a handle into the page's element table.
type Element struct {
	doc *Document
	h   int
}

var _ dom.Element = (*Element)(nil)

func (e *Element) str(js string, args ...any) string {
	res, err := e.doc.page.Eval(js, append([]any{e.h}, args...)...)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) bool(js string, args ...any) bool {
	res, err := e.doc.page.Eval(js, append([]any{e.h}, args...)...)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *Element) ID() string {
	v, _ := e.Attr("id")
	return v
}

func (e *Element) SetID(id string) error { return e.SetAttr("id", id) }

func (e *Element) Tag() string { return e.str(`(h) => window.__pw.tag(h)`) }

func (e *Element) Attr(name string) (string, bool) {
	res, err := e.doc.page.Eval(`(h, n) => window.__pw.attr(h, n)`, e.h, name)
	if err != nil {
		return "", false
	}
	arr := res.Value.Arr()
	if len(arr) == 0 {
		return "", false
	}
	return arr[0].Str(), true
}

func (e *Element) SetAttr(name, value string) error {
	res, err := e.doc.page.Eval(`(h, n, v) => window.__pw.setAttr(h, n, v)`, e.h, name, value)
	if err != nil {
		return fmt.Errorf("roddom: set %s: %w", name, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("roddom: set %s: element gone", name)
	}
	return nil
}

func (e *Element) HasClass(name string) bool {
	return e.bool(`(h, c) => window.__pw.hasClass(h, c)`, name)
}

func (e *Element) Matches(selector string) bool {
	return e.bool(`(h, s) => window.__pw.matches(h, s)`, selector)
}

func (e *Element) Rendered() bool {
	return e.bool(`(h) => window.__pw.rendered(h)`)
}

func (e *Element) Parent() dom.Element {
	return e.doc.handle(`(h) => window.__pw.parent(h)`, e.h)
}

func (e *Element) Contains(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o.doc != e.doc {
		return false
	}
	return e.bool(`(a, b) => window.__pw.contains(a, b)`, o.h)
}

func (e *Element) Find(selector string) []dom.Element {
	return e.doc.handles(`(h, s) => window.__pw.find(h, s)`, e.h, selector)
}

func (e *Element) AppendChild(child dom.Element) error {
	c, ok := child.(*Element)
	if !ok || c.doc != e.doc {
		return fmt.Errorf("roddom: append: foreign element")
	}
	res, err := e.doc.page.Eval(`(p, c) => window.__pw.append(p, c)`, e.h, c.h)
	if err != nil {
		return fmt.Errorf("roddom: append: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("roddom: append: element gone")
	}
	return nil
}

func (e *Element) On(event string, fn func()) (func(), error) {
	d := e.doc
	d.mu.Lock()
	d.next++
	id := d.next
	d.listeners[id] = fn
	d.mu.Unlock()

	res, err := d.page.Eval(`(h, ev, id) => window.__pw.on(h, ev, id)`, e.h, event, id)
	if err == nil && !res.Value.Bool() {
		err = fmt.Errorf("element gone")
	}
	if err != nil {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
		return nil, fmt.Errorf("roddom: on %s: %w", event, err)
	}
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
		_, _ = d.page.Eval(`(id) => window.__pw.off(id)`, id)
	}, nil
}

func (e *Element) Same(other dom.Element) bool {
	o, ok := other.(*Element)
	return ok && o.doc == e.doc && o.h == e.h
}

func (e *Element) Label() string { return e.str(`(h) => window.__pw.label(h)`) }
