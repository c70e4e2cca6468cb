// Package roddom implements the dom port over a live Chrome tab.
//
// A helper script (page.js) is evaluated in the page. It hands out integer
// handles for elements, runs MutationObservers and event listeners, and
// reports back through a CDP runtime binding. Handles keep their nodes
// alive for the life of the page.
package roddom

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/playerwatch/dom"
)

//go:embed page.js
var pageJS string

const bindingName = "__playerwatch_binding"

// Document is a dom.Document backed by a rod page.
type Document struct {
	page   *rod.Page
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	events chan []byte

	mu        sync.Mutex
	next      int
	observers map[int]func([]dom.Mutation)
	listeners map[int]func()
	handlers  map[string][]func(json.RawMessage)
}

var _ dom.Document = (*Document)(nil)

// Attach installs the helper script in page and starts event delivery,
// which stops when ctx ends or Close is called.
func Attach(ctx context.Context, page *rod.Page, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &Document{
		page:      page.Context(ctx),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan []byte, 1024),
		observers: make(map[int]func([]dom.Mutation)),
		listeners: make(map[int]func()),
		handlers:  make(map[string][]func(json.RawMessage)),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(d.page); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: add binding: %w", err)
	}
	wait := d.page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		select {
		case d.events <- []byte(e.Payload):
		default:
			d.logger.Warn("roddom: event queue full, dropping")
		}
	})
	go wait()
	go d.dispatch()

	if _, err := d.page.Eval(`() => {` + pageJS + `}`); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: install helper: %w", err)
	}
	return d, nil
}

// Close stops event delivery.
func (d *Document) Close() { d.cancel() }

// Page returns the underlying page.
func (d *Document) Page() *rod.Page { return d.page }

type envelope struct {
	Type     string `json:"type"`
	Observer int    `json:"observer"`
	Listener int    `json:"listener"`
	Records  []struct {
		Kind   string `json:"kind"`
		Target int    `json:"target"`
		Attr   string `json:"attr"`
		Old    string `json:"old"`
	} `json:"records"`
	Data json.RawMessage `json:"data"`
}

func (d *Document) dispatch() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case raw := <-d.events:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			d.route(&env, raw)
		}
	}
}

func (d *Document) route(env *envelope, raw []byte) {
	switch env.Type {
	case "mutations":
		d.mu.Lock()
		fn := d.observers[env.Observer]
		d.mu.Unlock()
		if fn == nil {
			return
		}
		ms := make([]dom.Mutation, 0, len(env.Records))
		for _, r := range env.Records {
			if r.Target == 0 {
				continue
			}
			ms = append(ms, dom.Mutation{
				Kind:          dom.MutationKind(r.Kind),
				Target:        d.wrap(r.Target),
				AttributeName: r.Attr,
				OldValue:      r.Old,
			})
		}
		if len(ms) > 0 {
			fn(ms)
		}
	case "event":
		d.mu.Lock()
		fn := d.listeners[env.Listener]
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	default:
		d.mu.Lock()
		hs := append([]func(json.RawMessage){}, d.handlers[env.Type]...)
		d.mu.Unlock()
		for _, h := range hs {
			h(json.RawMessage(raw))
		}
	}
}

// Handle registers fn for helper messages of the given type ("message" for
// window messages, or anything sent with __pw.emit). fn receives the whole
// envelope.
func (d *Document) Handle(msgType string, fn func(json.RawMessage)) {
	d.mu.Lock()
	d.handlers[msgType] = append(d.handlers[msgType], fn)
	d.mu.Unlock()
}

// OnMessage registers fn for window messages posted to the page. The
// payload is the message data as a string.
func (d *Document) OnMessage(fn func(data []byte)) {
	d.Handle("message", func(raw json.RawMessage) {
		var env struct {
			Data string `json:"data"`
		}
		if json.Unmarshal(raw, &env) == nil {
			fn([]byte(env.Data))
		}
	})
}

// Eval runs js (a function expression) in the page.
func (d *Document) Eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return d.page.Eval(js, args...)
}

func (d *Document) wrap(h int) dom.Element {
	if h == 0 {
		return nil
	}
	return &Element{doc: d, h: h}
}

func (d *Document) handle(js string, args ...any) dom.Element {
	res, err := d.page.Eval(js, args...)
	if err != nil {
		d.logger.Debug("roddom: eval", "error", err)
		return nil
	}
	return d.wrap(res.Value.Int())
}

func (d *Document) handles(js string, args ...any) []dom.Element {
	res, err := d.page.Eval(js, args...)
	if err != nil {
		d.logger.Debug("roddom: eval", "error", err)
		return nil
	}
	arr := res.Value.Arr()
	out := make([]dom.Element, 0, len(arr))
	for _, v := range arr {
		if h := v.Int(); h != 0 {
			out = append(out, &Element{doc: d, h: h})
		}
	}
	return out
}

func (d *Document) Body() dom.Element {
	return d.handle(`() => window.__pw.body()`)
}

func (d *Document) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	return d.handle(`(id) => window.__pw.byId(id)`, id)
}

func (d *Document) QueryAll(selector string) []dom.Element {
	return d.handles(`(s) => window.__pw.query(s)`, selector)
}

func (d *Document) CreateElement(tag, id string) (dom.Element, error) {
	res, err := d.page.Eval(`(t, id) => window.__pw.create(t, id)`, tag, id)
	if err != nil {
		return nil, fmt.Errorf("roddom: create %s: %w", tag, err)
	}
	return d.wrap(res.Value.Int()), nil
}

func (d *Document) Observe(targets []dom.Element, opts dom.ObserveOptions, fn func([]dom.Mutation)) (dom.Subscription, error) {
	if fn == nil {
		return nil, errors.New("roddom: observe: nil callback")
	}
	hs := make([]int, 0, len(targets))
	for _, t := range targets {
		el, ok := t.(*Element)
		if !ok || el.doc != d {
			return nil, errors.New("roddom: observe: foreign element")
		}
		hs = append(hs, el.h)
	}

	d.mu.Lock()
	d.next++
	id := d.next
	d.observers[id] = fn
	d.mu.Unlock()

	init := map[string]bool{"attributes": opts.Attributes, "childList": opts.ChildList, "subtree": opts.Subtree}
	if _, err := d.page.Eval(`(id, hs, o) => window.__pw.observe(id, hs, o)`, id, hs, init); err != nil {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
		return nil, fmt.Errorf("roddom: observe: %w", err)
	}
	return &subscription{doc: d, id: id}, nil
}

type subscription struct {
	doc  *Document
	id   int
	once sync.Once
}

func (s *subscription) Disconnect() {
	s.once.Do(func() {
		s.doc.mu.Lock()
		delete(s.doc.observers, s.id)
		s.doc.mu.Unlock()
		if _, err := s.doc.page.Eval(`(id) => window.__pw.disconnect(id)`, s.id); err != nil {
			s.doc.logger.Debug("roddom: disconnect", "error", err)
		}
	})
}

// PostToFrame posts msg into frame's window and, when nested is set, into
// the frame's first child frame too.
func (d *Document) PostToFrame(frame dom.Element, msg []byte, nested bool) error {
	el, ok := frame.(*Element)
	if !ok || el.doc != d {
		return errors.New("roddom: post: foreign element")
	}
	res, err := d.page.Eval(`(h, m, n) => window.__pw.post(h, m, n)`, el.h, string(msg), nested)
	if err != nil {
		return fmt.Errorf("roddom: post: %w", err)
	}
	if !res.Value.Bool() {
		return errors.New("roddom: post: frame has no window")
	}
	return nil
}
