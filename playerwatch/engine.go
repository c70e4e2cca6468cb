// Package playerwatch keeps an annotation widget attached to whichever
// media player is visible on an LMS page.
//
// An Engine works over any dom.Document and widget.Loader. Session wires
// one to a Chrome tab; tests use dom/memdom and widget/widgettest.
//
//	eng := playerwatch.New(doc, loader, playerwatch.Options{Logger: logger})
//	if err := eng.Setup(ctx, params); err != nil { ... }
//	defer eng.Stop()
package playerwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/playerwatch/connectivity"
	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/format"
	"github.com/hazyhaar/playerwatch/player"
	"github.com/hazyhaar/playerwatch/progress"
	"github.com/hazyhaar/playerwatch/reconcile"
	"github.com/hazyhaar/playerwatch/retry"
	"github.com/hazyhaar/playerwatch/widget"
)

// ErrNotSetUp is returned by calls that need a running engine.
var ErrNotSetUp = errors.New("playerwatch: engine not set up")

// Event names published through Options.Router.
const (
	EventActivity  = "playerwatch.activity"
	EventCompleted = "playerwatch.completed"
)

// Params are the per-page inputs of Setup.
type Params struct {
	// Format forces the layout tag. Empty detects it from the page.
	Format format.Tag
	// Signals carries page globals used by detection.
	Signals format.Signals

	BootstrapURL string
	// Widget is the base widget config; player bindings are filled in per
	// load.
	Widget widget.Config

	// ActivityID identifies the course module for progress tracking.
	ActivityID   string
	Learner      progress.Learner
	Requirements *progress.Requirements
}

// Timing tunes the reconciler. Zero fields keep the defaults.
type Timing struct {
	Settle       map[format.Tag]time.Duration
	ModalOpen    time.Duration
	ModalClose   time.Duration
	Failsafe     time.Duration
	Retry        retry.Policy
	ReadyTimeout time.Duration
}

// Frames reaches widgets running inside iframes. Session implements it
// over the browser; without it, iframe progress is not collected.
type Frames interface {
	PostToFrame(frame dom.Element, msg []byte, nested bool) error
	OnMessage(fn func(data []byte))
}

// Options configures an Engine.
type Options struct {
	Timing Timing
	Frames Frames
	Store  *progress.Store
	// Router receives activity events. Optional.
	Router *connectivity.Router
	Logger *slog.Logger
}

// Engine is one page session.
type Engine struct {
	doc     dom.Document
	loader  widget.Loader
	opts    Options
	logger  *slog.Logger
	locator *player.Locator

	// progressMu serialises tracker observations from the widget and the
	// iframe subscriber.
	progressMu sync.Mutex

	mu         sync.Mutex
	setup      bool
	stopped    bool
	ctx        context.Context
	cancel     context.CancelFunc
	tag        format.Tag
	rec        *reconcile.Reconciler
	tracker    *progress.Tracker
	subs       []*progress.Subscriber
	completed  bool
	lastActive *progress.Activity
}

// New creates an Engine. Nothing touches the page until Setup.
func New(doc dom.Document, loader widget.Loader, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		doc:     doc,
		loader:  loader,
		opts:    opts,
		logger:  opts.Logger,
		locator: player.NewLocator(player.Options{Logger: opts.Logger}),
	}
}

// Setup resolves the page format, mounts the widget container and starts
// reconciliation. A second call logs a warning and does nothing.
func (e *Engine) Setup(ctx context.Context, p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setup {
		e.logger.Warn("playerwatch: setup called twice, ignoring")
		return nil
	}

	tag := p.Format
	if tag == "" {
		tag = format.Detect(e.doc, p.Signals)
	}
	profile := format.NewRegistry(e.opts.Timing.Settle).ProfileFor(tag)
	e.logger.Info("playerwatch: setup", "format", tag, "observed", profile.Observed())

	ctx, cancel := context.WithCancel(ctx)
	e.tracker = &progress.Tracker{
		ActivityID:   p.ActivityID,
		Learner:      p.Learner,
		Requirements: p.Requirements,
		Store:        e.opts.Store,
		Logger:       e.logger,
		OnComplete:   e.onComplete,
	}

	var rec *reconcile.Reconciler
	adapter, err := widget.NewAdapter(e.doc, e.loader, widget.Options{
		BootstrapURL:     p.BootstrapURL,
		Base:             p.Widget,
		PositionOnParent: tag == format.Snap,
		ReadyTimeout:     e.opts.Timing.ReadyTimeout,
		OnActivity:       e.onWidgetActivity,
		OnReady:          func() { rec.Recheck() },
		Logger:           e.logger,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("playerwatch: setup: %w", err)
	}

	rec, err = reconcile.New(reconcile.Config{
		Profile:          profile,
		Document:         e.doc,
		Widget:           adapter,
		Locator:          e.locator,
		FailsafeInterval: e.opts.Timing.Failsafe,
		ModalOpenSettle:  e.opts.Timing.ModalOpen,
		ModalCloseSettle: e.opts.Timing.ModalClose,
		Retry:            e.opts.Timing.Retry,
		Logger:           e.logger,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("playerwatch: setup: %w", err)
	}
	if err := rec.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("playerwatch: setup: %w", err)
	}

	e.setup = true
	e.ctx = ctx
	e.cancel = cancel
	e.tag = tag
	e.rec = rec

	if tag == format.LTI || tag == format.Kalvidres {
		e.subscribeFrame(ctx, tag, p)
	}
	return nil
}

// subscribeFrame asks the widget inside the activity iframe for progress.
// Caller holds e.mu.
func (e *Engine) subscribeFrame(ctx context.Context, tag format.Tag, p Params) {
	frame := e.doc.ByID("contentframe")
	e.logger.Info("playerwatch: activity iframe", "format", tag, "found", frame != nil)
	if frame == nil {
		e.logger.Warn("playerwatch: activity iframe not found", "format", tag)
		return
	}
	if e.opts.Frames == nil {
		return
	}
	if p.Requirements == nil || !p.Requirements.Enabled || !p.Learner.CanComplete() {
		return
	}

	kind := progress.FrameLTI
	nested := false
	if tag == format.Kalvidres {
		kind = progress.FrameKaltura
		nested = true
	}
	sub := &progress.Subscriber{
		ID:     progress.CorrelationID(kind, frame.ID()),
		Poster: framePoster{frames: e.opts.Frames, frame: frame, nested: nested},
		Sink:   func(a *progress.Activity) { e.observeActivity("iframe", a) },
		Logger: e.logger,
	}
	e.opts.Frames.OnMessage(sub.Handle)
	sub.Start(ctx)
	e.subs = append(e.subs, sub)
}

type framePoster struct {
	frames Frames
	frame  dom.Element
	nested bool
}

func (f framePoster) Post(_ context.Context, msg []byte) error {
	return f.frames.PostToFrame(f.frame, msg, f.nested)
}

func (e *Engine) onWidgetActivity(raw json.RawMessage) {
	act, err := progress.ParseActivity(raw)
	if err != nil {
		e.logger.Debug("playerwatch: my_activity payload", "error", err)
		return
	}
	e.observeActivity("widget", act)
}

func (e *Engine) observeActivity(source string, act *progress.Activity) {
	e.mu.Lock()
	ctx := e.ctx
	tr := e.tracker
	e.mu.Unlock()
	if tr == nil {
		return
	}

	e.progressMu.Lock()
	completed := tr.Observe(ctx, source, act)
	e.progressMu.Unlock()

	e.mu.Lock()
	e.lastActive = act
	e.mu.Unlock()

	if e.opts.Router != nil {
		payload, _ := json.Marshal(map[string]any{
			"activity_id": tr.ActivityID,
			"source":      source,
			"completed":   completed,
			"data":        json.RawMessage(act.Raw),
		})
		e.opts.Router.Publish(ctx, EventActivity, payload)
	}
}

// onComplete runs from observeActivity, outside e.mu.
func (e *Engine) onComplete() {
	e.mu.Lock()
	e.completed = true
	ctx, id := e.ctx, e.tracker.ActivityID
	e.mu.Unlock()
	if e.opts.Router != nil {
		payload, _ := json.Marshal(map[string]string{"activity_id": id})
		e.opts.Router.Publish(ctx, EventCompleted, payload)
	}
}

// State is the engine snapshot exposed to other components.
type State struct {
	reconcile.State
	Format    format.Tag         `json:"format"`
	SetUp     bool               `json:"setup"`
	Completed bool               `json:"completed"`
	Activity  *progress.Activity `json:"activity,omitempty"`
}

// State returns a read-only snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	rec := e.rec
	s := State{Format: e.tag, SetUp: e.setup, Completed: e.completed}
	if e.lastActive != nil {
		a := *e.lastActive
		s.Activity = &a
	}
	e.mu.Unlock()
	if rec != nil {
		s.State = rec.State()
	}
	return s
}

// FindPlayer locates the player in container, or in the whole page when
// container is nil. It may assign an id to the player element.
func (e *Engine) FindPlayer(container dom.Element) *player.Descriptor {
	if container == nil {
		container = e.doc.Body()
	}
	if container == nil {
		return nil
	}
	return e.locator.Locate(container)
}

// FindPlayerIn is FindPlayer for a container element id. An empty id
// means the whole page.
func (e *Engine) FindPlayerIn(containerID string) (*player.Descriptor, error) {
	if containerID == "" {
		return e.FindPlayer(nil), nil
	}
	el := e.doc.ByID(containerID)
	if el == nil {
		return nil, fmt.Errorf("playerwatch: no element with id %q", containerID)
	}
	return e.FindPlayer(el), nil
}

// Auth hands an SSO token to the widget. The call is queued behind any
// pass in progress.
func (e *Engine) Auth(ctx context.Context, token string) error {
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	if rec == nil {
		return ErrNotSetUp
	}
	return rec.Auth(ctx, token)
}

// Stop ends reconciliation and any iframe subscriptions.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped || !e.setup {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	rec, subs, cancel := e.rec, e.subs, e.cancel
	e.subs = nil
	e.mu.Unlock()
	for _, s := range subs {
		s.Stop()
	}
	if rec != nil {
		rec.Stop()
	}
	if cancel != nil {
		cancel()
	}
}
