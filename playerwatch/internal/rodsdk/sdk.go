// Package rodsdk loads the widget runtime into a rod-hosted page and
// exposes it as a widget.SDK.
package rodsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/playerwatch/playerwatch/internal/roddom"
	"github.com/hazyhaar/playerwatch/widget"
)

// Hooks are the page callbacks the runtime may invoke.
type Hooks struct {
	// LoginURL is where an SSO auth request sends the learner.
	LoginURL string
	// MediaTitle and MediaDescription fill media details the player does
	// not provide.
	MediaTitle       string
	MediaDescription string
}

// Loader injects the bootstrap script.
type Loader struct {
	Doc    *roddom.Document
	Hooks  Hooks
	Logger *slog.Logger
}

var _ widget.Loader = (*Loader)(nil)

const loadJS = `(url) => new Promise((resolve, reject) => {
	const s = document.createElement('script');
	s.src = url;
	s.async = true;
	s.onload = () => resolve(!!window.Annoto);
	s.onerror = () => reject(new Error('failed to load ' + url));
	document.head.appendChild(s);
})`

// Load appends a script tag for url and waits for it. A script that loads
// without defining the runtime yields a nil SDK.
func (l *Loader) Load(ctx context.Context, url string) (widget.SDK, error) {
	res, err := l.Doc.Page().Context(ctx).Eval(loadJS, url)
	if err != nil {
		return nil, fmt.Errorf("rodsdk: load: %w", err)
	}
	if !res.Value.Bool() {
		return nil, nil
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &SDK{doc: l.Doc, hooks: l.Hooks, logger: logger, handlers: make(map[string][]func(json.RawMessage))}
	l.Doc.Handle("sdk", s.receive)
	return s, nil
}

// SDK drives window.Annoto and the API object it hands out on ready.
type SDK struct {
	doc    *roddom.Document
	hooks  Hooks
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]func(json.RawMessage)
}

var _ widget.SDK = (*SDK)(nil)

func (s *SDK) receive(raw json.RawMessage) {
	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	s.mu.Lock()
	hs := append([]func(json.RawMessage){}, s.handlers[env.Event]...)
	s.mu.Unlock()
	for _, h := range hs {
		h(env.Payload)
	}
}

const onJS = `(ev) => {
	window.Annoto.on(ev, (payload) => {
		if (ev === 'ready') {
			window.__pwAnnotoAPI = payload;
			payload = null;
		}
		let data = null;
		try { data = payload === undefined ? null : JSON.parse(JSON.stringify(payload)); } catch (e) {}
		window.__pw.emit({ type: 'sdk', event: ev, payload: data });
	});
}`

func (s *SDK) On(event string, fn func(json.RawMessage)) error {
	s.mu.Lock()
	first := len(s.handlers[event]) == 0
	s.handlers[event] = append(s.handlers[event], fn)
	s.mu.Unlock()
	if !first {
		return nil
	}
	if _, err := s.doc.Eval(onJS, event); err != nil {
		return fmt.Errorf("rodsdk: on %s: %w", event, err)
	}
	return nil
}

// withHooks turns the declarative hooks into page functions before the
// config reaches the runtime.
const withHooksJS = `(cfg, hooks) => {
	cfg.hooks = {
		getPageUrl: () => window.location.href,
		mediaDetails: (d) => {
			const out = Object.assign({}, d && d.details);
			out.title = out.title || hooks.title;
			out.description = out.description || hooks.description;
			return out;
		},
	};
	if (hooks.loginUrl) {
		cfg.hooks.ssoAuthRequestHandle = () => window.location.replace(hooks.loginUrl);
	}
	return cfg;
}`

func (s *SDK) hookArgs() map[string]string {
	return map[string]string{
		"loginUrl":    s.hooks.LoginURL,
		"title":       s.hooks.MediaTitle,
		"description": s.hooks.MediaDescription,
	}
}

func (s *SDK) Boot(ctx context.Context, cfg *widget.Config) error {
	_, err := s.doc.Page().Context(ctx).Eval(`(cfg, hooks) => { window.Annoto.boot((`+withHooksJS+`)(cfg, hooks)); }`, cfg, s.hookArgs())
	if err != nil {
		return fmt.Errorf("rodsdk: boot: %w", err)
	}
	return nil
}

var errNoAPI = errors.New("rodsdk: runtime API not ready")

func (s *SDK) api(ctx context.Context, js string, args ...any) error {
	res, err := s.doc.Page().Context(ctx).Eval(js, args...)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return errNoAPI
	}
	return nil
}

func (s *SDK) Load(ctx context.Context, cfg *widget.Config) error {
	err := s.api(ctx, `async (cfg, hooks) => {
		const api = window.__pwAnnotoAPI;
		if (!api) return false;
		await api.load((`+withHooksJS+`)(cfg, hooks));
		return true;
	}`, cfg, s.hookArgs())
	if err != nil {
		return fmt.Errorf("rodsdk: load: %w", err)
	}
	return nil
}

func (s *SDK) Destroy(ctx context.Context) error {
	err := s.api(ctx, `async () => {
		const api = window.__pwAnnotoAPI;
		if (!api) return false;
		await api.destroy();
		return true;
	}`)
	if err != nil {
		return fmt.Errorf("rodsdk: destroy: %w", err)
	}
	return nil
}

func (s *SDK) Auth(ctx context.Context, token string) error {
	err := s.api(ctx, `async (token) => {
		const api = window.__pwAnnotoAPI;
		if (!api) return false;
		await api.auth(token);
		return true;
	}`, token)
	if err != nil {
		return fmt.Errorf("rodsdk: auth: %w", err)
	}
	return nil
}
