// Package connectivity routes named engine services and events either to an
// in-process handler or to a remote endpoint, as decided by a SQLite routes
// table that can change while the engine runs.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("playerwatch_state", engine.stateHandler)
//	go router.Watch(ctx, db, time.Second)
//
//	out, err := router.Call(ctx, "playerwatch_state", nil)
//	router.Publish(ctx, "playerwatch.attached", payload)
//
// A "noop" row disables a service or event without a restart.
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a transport-agnostic service function.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint. The returned
// close function, if any, runs when the route is replaced or removed.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

type route struct {
	Service  string
	Strategy string
	Endpoint string
	Config   json.RawMessage
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remote struct {
	handler Handler
	close   func()
}

// Router dispatches calls. It is safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remotes   map[string]remote
	routes    map[string]route
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remotes:   make(map[string]remote),
		routes:    make(map[string]route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a strategy name such as "http".
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Services lists the locally registered services.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.local))
	for name := range r.local {
		out = append(out, name)
	}
	return out
}

// Call dispatches to service: a noop route succeeds with no output, a
// remote route wins over a local handler, and an unknown service fails
// with ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	rm, hasRemote := r.remotes[service]
	h := r.local[service]
	rt, hasRoute := r.routes[service]
	r.mu.RUnlock()

	if hasRoute && rt.Strategy == "noop" {
		r.logger.DebugContext(ctx, "connectivity: noop", "service", service)
		return nil, nil
	}
	if hasRemote {
		r.logger.DebugContext(ctx, "connectivity: remote", "service", service, "endpoint", rt.Endpoint)
		return rm.handler(ctx, payload)
	}
	if h != nil {
		return h(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Publish is Call for fire-and-forget events: an event nobody routes is
// dropped, and delivery errors are logged, not returned.
func (r *Router) Publish(ctx context.Context, event string, payload []byte) {
	_, err := r.Call(ctx, event, payload)
	if err == nil {
		return
	}
	if _, ok := err.(*ErrServiceNotFound); ok {
		return
	}
	r.logger.WarnContext(ctx, "connectivity: publish failed", "event", event, "error", err)
}

// Reload re-reads the routes table. Remote handlers whose route did not
// change are kept.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	next := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfg string
		if err := rows.Scan(&rt.Service, &rt.Strategy, &rt.Endpoint, &cfg); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfg)
		next[rt.Service] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	built := make(map[string]remote, len(next))
	for name, rt := range next {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, ok := r.remotes[name]; ok {
				built[name] = existing
				continue
			}
		}
		f, ok := r.factories[rt.Strategy]
		if !ok {
			r.logger.Warn("connectivity: no transport", "service", name, "strategy", rt.Strategy)
			continue
		}
		h, closeFn, err := f(rt.Endpoint, rt.Config)
		if err != nil {
			r.logger.Error("connectivity: build route",
				"error", &ErrFactoryFailed{Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err})
			continue
		}
		built[name] = remote{handler: h, close: closeFn}
	}

	for name, old := range r.remotes {
		if old.close == nil {
			continue
		}
		if _, kept := built[name]; !kept || r.routes[name].fingerprint() != next[name].fingerprint() {
			old.close()
		}
	}

	r.remotes = built
	r.routes = next
	r.logger.Info("connectivity: routes reloaded", "total", len(next), "remote", len(built))
	return nil
}

// Close releases every remote handler.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range r.remotes {
		if rm.close != nil {
			rm.close()
		}
	}
	r.remotes = make(map[string]remote)
	r.routes = make(map[string]route)
	return nil
}
