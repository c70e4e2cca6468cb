package memdom

import (
	"errors"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/playerwatch/dom"
)

type observer struct {
	doc     *Document
	targets map[*html.Node]bool
	opts    dom.ObserveOptions
	fn      func([]dom.Mutation)
	closed  atomic.Bool
}

func (o *observer) Disconnect() {
	if o.closed.Swap(true) {
		return
	}
	d := o.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.observers {
		if x == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			break
		}
	}
}

func (o *observer) wants(n *html.Node, kind dom.MutationKind) bool {
	switch kind {
	case dom.KindAttributes:
		if !o.opts.Attributes {
			return false
		}
	case dom.KindChildList:
		if !o.opts.ChildList {
			return false
		}
	default:
		return false
	}
	if o.targets[n] {
		return true
	}
	if !o.opts.Subtree {
		return false
	}
	for x := n.Parent; x != nil; x = x.Parent {
		if o.targets[x] {
			return true
		}
	}
	return false
}

// Observe registers fn for mutations on targets.
func (d *Document) Observe(targets []dom.Element, opts dom.ObserveOptions, fn func([]dom.Mutation)) (dom.Subscription, error) {
	if fn == nil {
		return nil, errors.New("memdom: observe: nil callback")
	}
	if !opts.Attributes && !opts.ChildList {
		return nil, errors.New("memdom: observe: no mutation kind selected")
	}
	o := &observer{doc: d, targets: make(map[*html.Node]bool, len(targets)), opts: opts, fn: fn}
	for _, t := range targets {
		el, ok := t.(*Element)
		if !ok || el.doc != d {
			return nil, errors.New("memdom: observe: foreign element")
		}
		o.targets[el.n] = true
	}
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return o, nil
}

// ObserverCount reports live subscriptions. Intended for tests.
func (d *Document) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

type delivery struct {
	o       *observer
	records []dom.Mutation
}

type deliveries []delivery

// collect builds one delivery per interested observer. Caller holds d.mu.
func (d *Document) collect(n *html.Node, m dom.Mutation) deliveries {
	var out deliveries
	m.Target = &Element{doc: d, n: n}
	for _, o := range d.observers {
		if o.wants(n, m.Kind) {
			out = append(out, delivery{o: o, records: []dom.Mutation{m}})
		}
	}
	return out
}

func (ds deliveries) deliver() {
	for _, x := range ds {
		if x.o.closed.Load() {
			continue
		}
		x.o.fn(x.records)
	}
}
