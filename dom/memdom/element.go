package memdom

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/playerwatch/dom"
)

// Element is a handle to a node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*Element)(nil)

// Node exposes the underlying node.
func (e *Element) Node() *html.Node { return e.n }

func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, "id")
}

func (e *Element) SetID(id string) error {
	return e.SetAttr("id", id)
}

func (e *Element) Tag() string {
	return e.n.Data
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return lookupAttr(e.n, name)
}

// SetAttr sets an attribute and notifies attribute observers.
func (e *Element) SetAttr(name, value string) error {
	d := e.doc
	d.mu.Lock()
	old, _ := lookupAttr(e.n, name)
	set := false
	for i := range e.n.Attr {
		if e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			set = true
			break
		}
	}
	if !set {
		e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	}
	out := d.collect(e.n, dom.Mutation{Kind: dom.KindAttributes, AttributeName: name, OldValue: old})
	d.mu.Unlock()
	out.deliver()
	return nil
}

// RemoveAttr deletes an attribute and notifies attribute observers.
func (e *Element) RemoveAttr(name string) {
	d := e.doc
	d.mu.Lock()
	old, ok := lookupAttr(e.n, name)
	if !ok {
		d.mu.Unlock()
		return
	}
	kept := e.n.Attr[:0]
	for _, a := range e.n.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	e.n.Attr = kept
	out := d.collect(e.n, dom.Mutation{Kind: dom.KindAttributes, AttributeName: name, OldValue: old})
	d.mu.Unlock()
	out.deliver()
}

func (e *Element) HasClass(name string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasClass(e.n, name)
}

// AddClass adds class names not already present.
func (e *Element) AddClass(names ...string) {
	e.doc.mu.Lock()
	cls := classes(e.n)
	for _, name := range names {
		if !hasClass(e.n, name) {
			cls = append(cls, name)
		}
	}
	e.doc.mu.Unlock()
	_ = e.SetAttr("class", strings.Join(cls, " "))
}

// RemoveClass removes class names.
func (e *Element) RemoveClass(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}
	e.doc.mu.Lock()
	var cls []string
	for _, c := range classes(e.n) {
		if !drop[c] {
			cls = append(cls, c)
		}
	}
	e.doc.mu.Unlock()
	_ = e.SetAttr("class", strings.Join(cls, " "))
}

func (e *Element) Matches(selector string) bool {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return m.Match(e.n)
}

func (e *Element) Rendered() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.rendered(e.n)
}

func (e *Element) Parent() dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Element) Contains(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o.doc != e.doc {
		return false
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for x := o.n; x != nil; x = x.Parent {
		if x == e.n {
			return true
		}
	}
	return false
}

func (e *Element) Find(selector string) []dom.Element {
	d := e.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrapAll(goquery.NewDocumentFromNode(e.n).Find(selector).Nodes)
}

// AppendChild moves child under e. Moving a node out of a parent notifies
// the old parent's child-list observers first.
func (e *Element) AppendChild(child dom.Element) error {
	c, ok := child.(*Element)
	if !ok || c.doc != e.doc {
		return errors.New("memdom: foreign element")
	}
	d := e.doc
	d.mu.Lock()
	var out deliveries
	if old := c.n.Parent; old != nil {
		old.RemoveChild(c.n)
		out = append(out, d.collect(old, dom.Mutation{Kind: dom.KindChildList})...)
	}
	e.n.AppendChild(c.n)
	out = append(out, d.collect(e.n, dom.Mutation{Kind: dom.KindChildList})...)
	d.mu.Unlock()
	out.deliver()
	return nil
}

// AppendHTML parses fragment in the context of e and appends the result.
func (e *Element) AppendHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return err
	}
	d := e.doc
	d.mu.Lock()
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	out := d.collect(e.n, dom.Mutation{Kind: dom.KindChildList})
	d.mu.Unlock()
	out.deliver()
	return nil
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	d := e.doc
	d.mu.Lock()
	p := e.n.Parent
	if p == nil {
		d.mu.Unlock()
		return
	}
	p.RemoveChild(e.n)
	out := d.collect(p, dom.Mutation{Kind: dom.KindChildList})
	d.mu.Unlock()
	out.deliver()
}

func (e *Element) On(event string, fn func()) (func(), error) {
	d := e.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	byEvent, ok := d.listeners[e.n]
	if !ok {
		byEvent = make(map[string]map[int]func())
		d.listeners[e.n] = byEvent
	}
	if byEvent[event] == nil {
		byEvent[event] = make(map[int]func())
	}
	d.nextID++
	id := d.nextID
	byEvent[event][id] = fn
	return func() {
		d.mu.Lock()
		delete(d.listeners[e.n][event], id)
		d.mu.Unlock()
	}, nil
}

// Dispatch fires event on e's listeners. It returns the number called.
func (e *Element) Dispatch(event string) int {
	d := e.doc
	d.mu.Lock()
	var fns []func()
	for _, fn := range d.listeners[e.n][event] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (e *Element) Same(other dom.Element) bool {
	o, ok := other.(*Element)
	return ok && o.n == e.n
}

func (e *Element) Label() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if id := attr(e.n, "id"); id != "" {
		return "#" + id
	}
	if cls := classes(e.n); len(cls) > 0 {
		return "." + strings.Join(cls, ".")
	}
	return e.n.Data
}
