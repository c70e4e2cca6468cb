// Package widgettest provides a scripted widget runtime for tests.
package widgettest

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/playerwatch/widget"
)

// Call is one recorded runtime call.
type Call struct {
	Op     string // boot, load, destroy, auth
	Player string // player element selector for boot/load
	Kind   string
	Config widget.Config
}

// SDK records calls and reports overlapping ones.
type SDK struct {
	// NoReady suppresses the ready event after Boot. Set it before Boot.
	NoReady bool

	mu          sync.Mutex
	delay       time.Duration
	calls       []Call
	handlers    map[string][]func(json.RawMessage)
	errs        map[string]error
	inflight    int
	maxInflight int
}

// New returns an SDK that fires ready on Boot.
func New() *SDK {
	return &SDK{handlers: make(map[string][]func(json.RawMessage)), errs: make(map[string]error)}
}

// SetDelay makes every later lifecycle call sleep for d.
func (s *SDK) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailNext makes the next call of op return err.
func (s *SDK) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = err
}

func (s *SDK) begin(c Call) error {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.calls = append(s.calls, c)
	err := s.errs[c.Op]
	delete(s.errs, c.Op)
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (s *SDK) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func callFor(op string, cfg *widget.Config) Call {
	c := Call{Op: op}
	if cfg != nil {
		c.Config = *cfg
		if len(cfg.Widgets) > 0 {
			c.Player = cfg.Widgets[0].Player.Element
			c.Kind = string(cfg.Widgets[0].Player.Type)
		}
	}
	return c
}

func (s *SDK) Boot(_ context.Context, cfg *widget.Config) error {
	err := s.begin(callFor("boot", cfg))
	s.end()
	if err == nil && !s.NoReady {
		s.Emit(widget.EventReady, json.RawMessage(`{}`))
	}
	return err
}

func (s *SDK) Load(_ context.Context, cfg *widget.Config) error {
	defer s.end()
	return s.begin(callFor("load", cfg))
}

func (s *SDK) Destroy(context.Context) error {
	defer s.end()
	return s.begin(Call{Op: "destroy"})
}

func (s *SDK) Auth(_ context.Context, token string) error {
	defer s.end()
	return s.begin(Call{Op: "auth", Player: token})
}

func (s *SDK) On(event string, fn func(json.RawMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
	return nil
}

// Emit fires event to the registered handlers.
func (s *SDK) Emit(event string, payload json.RawMessage) {
	s.mu.Lock()
	hs := slices.Clone(s.handlers[event])
	s.mu.Unlock()
	for _, fn := range hs {
		fn(payload)
	}
}

// Calls returns a copy of the recorded calls.
func (s *SDK) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded operation names in order.
func (s *SDK) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Op
	}
	return out
}

// MaxInflight reports the highest number of concurrent lifecycle calls seen.
func (s *SDK) MaxInflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

// Loader hands out SDK, or simulates a missing runtime.
type Loader struct {
	SDK     *SDK
	Err     error
	Missing bool

	mu    sync.Mutex
	loads int
}

func (l *Loader) Load(context.Context, string) (widget.SDK, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Missing || l.SDK == nil {
		return nil, nil
	}
	return l.SDK, nil
}

// Loads reports how many times Load was called.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
