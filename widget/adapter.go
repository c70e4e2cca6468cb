// Package widget drives the external annotation widget.
//
// The Adapter owns the one widget instance of a page session and the DOM
// node it renders into. Every lifecycle call goes through it; a second call
// arriving while one is outstanding is refused with ErrInFlight.
package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/idgen"
	"github.com/hazyhaar/playerwatch/metrics"
	"github.com/hazyhaar/playerwatch/player"
)

var (
	ErrNotReady        = errors.New("widget: not ready")
	ErrBootstrapFailed = errors.New("widget: bootstrap failed")
	ErrRuntimeMissing  = errors.New("widget: runtime did not attach")
	ErrInFlight        = errors.New("widget: lifecycle call in flight")
)

// Element ids of the app container.
const (
	WrapperID = "playerwatch-app-wrapper"
	AppID     = "playerwatch-app"
)

// Options configures an Adapter.
type Options struct {
	BootstrapURL string
	Base         Config

	// PositionOnParent anchors the widget side panel on the player's parent
	// instead of the player itself. Needed where theme CSS breaks when the
	// panel attaches to the player element directly.
	PositionOnParent bool

	// ReadyTimeout bounds the wait for the runtime's ready event after boot.
	// Default: 10s.
	ReadyTimeout time.Duration

	// OnActivity receives my_activity payloads.
	OnActivity func(json.RawMessage)

	// OnReady is called once, when the runtime's ready event fires. The
	// event may arrive after Bootstrap gave up waiting. It must not block.
	OnReady func()

	IDs    idgen.Generator
	Logger *slog.Logger
}

// Adapter is the only writer of widget state.
type Adapter struct {
	loader Loader
	opts   Options
	logger *slog.Logger

	app  dom.Element
	home dom.Element

	busy atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once

	mu           sync.Mutex
	sdk          SDK
	bootstrapped bool
	loaded       bool
	attached     *player.Descriptor
	current      Config
}

// NewAdapter creates the app container in #page-wrapper (or body), which
// becomes the home container.
func NewAdapter(doc dom.Document, loader Loader, opts Options) (*Adapter, error) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.IDs == nil {
		opts.IDs = idgen.ElementID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	home := doc.ByID("page-wrapper")
	if home == nil {
		home = doc.Body()
	}
	if home == nil {
		return nil, errors.New("widget: document has no body")
	}

	app := doc.ByID(WrapperID)
	if app == nil {
		wrapper, err := doc.CreateElement("div", WrapperID)
		if err != nil {
			return nil, fmt.Errorf("widget: create wrapper: %w", err)
		}
		inner, err := doc.CreateElement("div", AppID)
		if err != nil {
			return nil, fmt.Errorf("widget: create app: %w", err)
		}
		if err := wrapper.AppendChild(inner); err != nil {
			return nil, fmt.Errorf("widget: create app: %w", err)
		}
		if err := home.AppendChild(wrapper); err != nil {
			return nil, fmt.Errorf("widget: mount wrapper: %w", err)
		}
		app = wrapper
	}

	return &Adapter{
		loader: loader,
		opts:   opts,
		logger: opts.Logger,
		app:    app,
		home:   home,
		ready:  make(chan struct{}),
	}, nil
}

func (a *Adapter) enter() error {
	if !a.busy.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	return nil
}

func (a *Adapter) leave() { a.busy.Store(false) }

func record(op string, err error) {
	metrics.AdapterCallsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
}

// Bootstrap loads the runtime and boots it on p. It runs at most once per
// session: the flag is set before the asset load, and a failed load is not
// retried.
func (a *Adapter) Bootstrap(ctx context.Context, p *player.Descriptor) (err error) {
	if p == nil {
		return errors.New("widget: bootstrap: nil player")
	}
	if err := a.enter(); err != nil {
		return err
	}
	defer a.leave()
	defer func() { record("bootstrap", err) }()

	a.mu.Lock()
	if a.bootstrapped {
		a.mu.Unlock()
		a.logger.Warn("widget: bootstrap already done")
		return nil
	}
	a.bootstrapped = true
	a.mu.Unlock()

	a.logger.Info("widget: bootstrap", "player", p.ID, "kind", p.Kind)
	sdk, err := a.loader.Load(ctx, a.opts.BootstrapURL)
	if err == nil && sdk == nil {
		err = ErrRuntimeMissing
	}
	if err != nil {
		a.logger.Warn("widget: bootstrap didn't load", "url", a.opts.BootstrapURL, "error", err)
		return fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
	}

	if err := sdk.On(EventReady, func(json.RawMessage) {
		a.readyOnce.Do(func() {
			close(a.ready)
			if a.opts.OnReady != nil {
				a.opts.OnReady()
			}
		})
	}); err != nil {
		return fmt.Errorf("%w: subscribe ready: %w", ErrBootstrapFailed, err)
	}
	if a.opts.OnActivity != nil {
		if err := sdk.On(EventMyActivity, a.opts.OnActivity); err != nil {
			a.logger.Warn("widget: subscribe my_activity", "error", err)
		}
	}

	a.mu.Lock()
	a.sdk = sdk
	a.mu.Unlock()

	cfg := a.configFor(p)
	a.logger.Info("widget: boot widget", "player", p.ID)
	if err := sdk.Boot(ctx, &cfg); err != nil {
		a.logger.Error("widget: boot rejected", "error", err)
		return fmt.Errorf("widget: boot: %w", err)
	}

	timer := time.NewTimer(a.opts.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-a.ready:
	case <-timer.C:
		a.logger.Warn("widget: ready event never fired", "timeout", a.opts.ReadyTimeout)
		return fmt.Errorf("widget: boot: %w", ErrNotReady)
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	a.loaded = true
	a.attached = p
	a.current = cfg
	a.mu.Unlock()
	metrics.WidgetLoaded.Set(1)
	a.logger.Info("widget: ready", "player", p.ID)
	return nil
}

// Load attaches the widget to p. Loading the player that is already
// attached is a no-op. A rejected load leaves the widget not loaded.
func (a *Adapter) Load(ctx context.Context, p *player.Descriptor) (err error) {
	if p == nil {
		return errors.New("widget: load: nil player")
	}
	if err := a.enter(); err != nil {
		return err
	}
	defer a.leave()

	a.mu.Lock()
	sdk := a.sdk
	if sdk == nil || !a.isReady() {
		a.mu.Unlock()
		return ErrNotReady
	}
	if a.loaded && a.attached.Same(p) {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	defer func() { record("load", err) }()

	cfg := a.configFor(p)
	a.logger.Info("widget: load", "player", p.ID, "kind", p.Kind)
	if err := sdk.Load(ctx, &cfg); err != nil {
		a.setUnloaded()
		a.logger.Error("widget: load rejected", "player", p.ID, "error", err)
		return fmt.Errorf("widget: load: %w", err)
	}

	a.mu.Lock()
	a.loaded = true
	a.attached = p
	a.current = cfg
	a.mu.Unlock()
	metrics.WidgetLoaded.Set(1)
	return nil
}

// Destroy detaches the widget. It is a no-op when nothing is loaded. The
// widget counts as not loaded afterwards even if the runtime rejected.
func (a *Adapter) Destroy(ctx context.Context) (err error) {
	if err := a.enter(); err != nil {
		return err
	}
	defer a.leave()

	a.mu.Lock()
	sdk, loaded := a.sdk, a.loaded
	a.mu.Unlock()
	if !loaded || sdk == nil {
		return nil
	}

	defer func() { record("destroy", err) }()

	a.logger.Info("widget: destroy")
	err = sdk.Destroy(ctx)
	a.setUnloaded()
	if err != nil {
		a.logger.Error("widget: destroy rejected", "error", err)
		return fmt.Errorf("widget: destroy: %w", err)
	}
	return nil
}

// Auth passes a user token to the runtime.
func (a *Adapter) Auth(ctx context.Context, token string) (err error) {
	if err := a.enter(); err != nil {
		return err
	}
	defer a.leave()

	a.mu.Lock()
	sdk := a.sdk
	ready := a.isReady()
	a.mu.Unlock()
	if sdk == nil || !ready {
		return ErrNotReady
	}

	defer func() { record("auth", err) }()
	if err := sdk.Auth(ctx, token); err != nil {
		a.logger.Error("widget: auth rejected", "error", err)
		return fmt.Errorf("widget: auth: %w", err)
	}
	return nil
}

// MoveContainer makes the app container a child of target. It reports
// whether a move happened.
func (a *Adapter) MoveContainer(target dom.Element) (bool, error) {
	if target == nil {
		return false, errors.New("widget: move: nil target")
	}
	if dom.Same(a.app.Parent(), target) {
		return false, nil
	}
	if err := target.AppendChild(a.app); err != nil {
		return false, fmt.Errorf("widget: move to %s: %w", target.Label(), err)
	}
	a.logger.Info("widget: moved app", "to", target.Label())
	return true, nil
}

// MoveHome puts the app container back where NewAdapter mounted it.
func (a *Adapter) MoveHome() (bool, error) {
	if dom.Same(a.app.Parent(), a.home) {
		return false, nil
	}
	if err := a.home.AppendChild(a.app); err != nil {
		return false, fmt.Errorf("widget: move home: %w", err)
	}
	a.logger.Info("widget: moved app back home", "to", a.home.Label())
	return true, nil
}

func (a *Adapter) setUnloaded() {
	a.mu.Lock()
	a.loaded = false
	a.attached = nil
	a.mu.Unlock()
	metrics.WidgetLoaded.Set(0)
}

// isReady must be called with a.mu held or on a stable snapshot.
func (a *Adapter) isReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

// configFor rewrites the player section of the base config for p.
func (a *Adapter) configFor(p *player.Descriptor) Config {
	cfg := a.opts.Base.clone()
	w := WidgetConfig{
		Player:   PlayerConfig{Type: p.Kind, Element: "#" + p.ID},
		Timeline: &Timeline{Overlay: p.Kind.OverlayTimeline()},
	}
	if a.opts.PositionOnParent && p.Element != nil {
		if parent := p.Element.Parent(); parent != nil {
			id := parent.ID()
			if id == "" {
				id = a.opts.IDs()
				if err := parent.SetID(id); err != nil {
					a.logger.Warn("widget: position element id", "error", err)
					id = ""
				}
			}
			if id != "" {
				w.PositionElement = "#" + id
			}
		}
	}
	cfg.Widgets = []WidgetConfig{w}
	return cfg
}

// --- read-only accessors ---

func (a *Adapter) Bootstrapped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bootstrapped
}

func (a *Adapter) Ready() bool {
	return a.isReady()
}

func (a *Adapter) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

// Attached returns the player the widget is loaded on, or nil.
func (a *Adapter) Attached() *player.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return nil
	}
	return a.attached
}

// Current returns the config of the last successful boot or load.
func (a *Adapter) Current() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.clone()
}

// App returns the app container element.
func (a *Adapter) App() dom.Element { return a.app }

// Home returns the home container element.
func (a *Adapter) Home() dom.Element { return a.home }
