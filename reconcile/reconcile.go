// Package reconcile keeps the widget on whichever player is visible.
//
// A Reconciler owns one loop goroutine. Mutation callbacks, the failsafe
// ticker, play redirects and recheck requests only fill slots the loop
// drains; every widget call is made from the loop, so passes never overlap.
//
// Mutation batches go through a pending-trigger slot: a newer batch
// replaces the target of an older one and restarts the settle window, and
// only the latest survives to drive a pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/format"
	"github.com/hazyhaar/playerwatch/metrics"
	"github.com/hazyhaar/playerwatch/mutation"
	"github.com/hazyhaar/playerwatch/player"
	"github.com/hazyhaar/playerwatch/retry"
	"github.com/hazyhaar/playerwatch/tracker"
)

// Widget is the lifecycle surface the reconciler drives.
type Widget interface {
	Bootstrap(ctx context.Context, p *player.Descriptor) error
	Load(ctx context.Context, p *player.Descriptor) error
	Destroy(ctx context.Context) error
	Auth(ctx context.Context, token string) error
	MoveContainer(target dom.Element) (bool, error)
	MoveHome() (bool, error)
	Bootstrapped() bool
	Ready() bool
	Loaded() bool
	Attached() *player.Descriptor
}

// Config configures a Reconciler.
type Config struct {
	Profile  *format.Profile
	Document dom.Document
	Widget   Widget
	Locator  *player.Locator

	// ModalClass on body marks an open dialog. Default: "modal-open".
	ModalClass string
	// ModalSelector finds the open dialog. Default: ".modal.show".
	ModalSelector string

	// FailsafeInterval is the period of the flag re-check. Default: 1s.
	FailsafeInterval time.Duration
	// ModalOpenSettle and ModalCloseSettle are waited after the modal flag
	// flips. Defaults: 1500ms and 200ms.
	ModalOpenSettle  time.Duration
	ModalCloseSettle time.Duration

	// Retry bounds waits for elements that appear asynchronously.
	Retry retry.Policy

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ModalClass == "" {
		c.ModalClass = "modal-open"
	}
	if c.ModalSelector == "" {
		c.ModalSelector = ".modal.show"
	}
	if c.FailsafeInterval <= 0 {
		c.FailsafeInterval = time.Second
	}
	if c.ModalOpenSettle <= 0 {
		c.ModalOpenSettle = 1500 * time.Millisecond
	}
	if c.ModalCloseSettle <= 0 {
		c.ModalCloseSettle = 200 * time.Millisecond
	}
	if c.Retry.Attempts <= 0 || c.Retry.Interval <= 0 {
		c.Retry = retry.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Locator == nil {
		c.Locator = player.NewLocator(player.Options{Logger: c.Logger})
	}
}

// State is a read-only snapshot.
type State struct {
	FormatVisible bool               `json:"format_visible"`
	ModalVisible  bool               `json:"modal_visible"`
	Attached      *player.Descriptor `json:"attached,omitempty"`
	Loaded        bool               `json:"loaded"`
	Bootstrapped  bool               `json:"bootstrapped"`
	Observing     bool               `json:"observing"`
	Target        string             `json:"target,omitempty"`
}

// Reconciler mirrors the visible player into the widget.
type Reconciler struct {
	cfg     Config
	logger  *slog.Logger
	doc     dom.Document
	profile *format.Profile
	widget  Widget
	locator *player.Locator
	tracker *tracker.Tracker

	seq atomic.Uint64

	slotMu     sync.Mutex
	pending    dom.Element
	hasPending bool
	redirect   *player.Descriptor
	notify     chan struct{}
	redirectCh chan struct{}
	recheckCh  chan struct{}
	authCh     chan authRequest

	stateMu       sync.RWMutex
	formatVisible bool
	modalVisible  bool
	target        dom.Element
	observing     bool

	started atomic.Bool
	subs    []dom.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates cfg and creates a Reconciler. Profiles with MultiPlayer get
// a tracker whose plays are routed through Redirect.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Profile == nil || cfg.Document == nil || cfg.Widget == nil {
		return nil, errors.New("reconcile: profile, document and widget are required")
	}
	cfg.applyDefaults()
	r := &Reconciler{
		cfg:        cfg,
		logger:     cfg.Logger,
		doc:        cfg.Document,
		profile:    cfg.Profile,
		widget:     cfg.Widget,
		locator:    cfg.Locator,
		notify:     make(chan struct{}, 1),
		redirectCh: make(chan struct{}, 1),
		recheckCh:  make(chan struct{}, 1),
		authCh:     make(chan authRequest),
		done:       make(chan struct{}),
	}
	if cfg.Profile.MultiPlayer {
		r.tracker = tracker.New(tracker.Config{
			Locator: cfg.Locator,
			OnPlay:  r.Redirect,
			Logger:  cfg.Logger,
		})
	}
	return r, nil
}

// Start subscribes to the profile's targets and runs the loop until ctx
// ends or Stop is called. When the page has nothing to observe the
// reconciler stays idle, but the initial pass and redirects still run.
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("reconcile: already started")
	}

	targets := r.profile.Targets(r.doc)
	if len(targets) > 0 {
		sub, err := r.doc.Observe(targets, r.profile.Observe, r.onBatch)
		if err != nil {
			r.started.Store(false)
			return fmt.Errorf("reconcile: observe: %w", err)
		}
		r.subs = append(r.subs, sub)
		if body := r.doc.Body(); body != nil {
			bodySub, err := r.doc.Observe([]dom.Element{body}, dom.ObserveOptions{Attributes: true}, r.onBody)
			if err != nil {
				sub.Disconnect()
				r.subs = nil
				r.started.Store(false)
				return fmt.Errorf("reconcile: observe body: %w", err)
			}
			r.subs = append(r.subs, bodySub)
		}
		r.stateMu.Lock()
		r.observing = true
		r.stateMu.Unlock()
		r.logger.Info("reconcile: observing", "format", r.profile.Tag, "targets", len(targets))
	} else {
		r.logger.Info("reconcile: idle", "format", r.profile.Tag)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
	return nil
}

// Stop ends observation and waits for the loop to return.
func (r *Reconciler) Stop() {
	if !r.started.Load() {
		return
	}
	for _, s := range r.subs {
		s.Disconnect()
	}
	r.cancel()
	<-r.done
	if r.tracker != nil {
		r.tracker.Close()
	}
}

// Done is closed once the loop has returned.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

// Redirect makes p the active player without a DOM pass. Only the latest
// pending redirect is kept.
func (r *Reconciler) Redirect(p *player.Descriptor) {
	if p == nil {
		return
	}
	r.slotMu.Lock()
	r.redirect = p
	r.slotMu.Unlock()
	select {
	case r.redirectCh <- struct{}{}:
	default:
	}
}

// Recheck asks for a pass outside the mutation path.
func (r *Reconciler) Recheck() {
	select {
	case r.recheckCh <- struct{}{}:
	default:
	}
}

type authRequest struct {
	ctx   context.Context
	token string
	reply chan error
}

// Auth forwards token to the widget from the loop, so it never overlaps a
// pass. It blocks until the widget has answered.
func (r *Reconciler) Auth(ctx context.Context, token string) error {
	if !r.started.Load() {
		return errors.New("reconcile: not started")
	}
	req := authRequest{ctx: ctx, token: token, reply: make(chan error, 1)}
	select {
	case r.authCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return errors.New("reconcile: stopped")
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the reconciliation state.
func (r *Reconciler) State() State {
	r.stateMu.RLock()
	s := State{
		FormatVisible: r.formatVisible,
		ModalVisible:  r.modalVisible,
		Observing:     r.observing,
	}
	if r.target != nil {
		s.Target = r.target.Label()
	}
	r.stateMu.RUnlock()
	s.Attached = r.widget.Attached()
	s.Loaded = r.widget.Loaded()
	s.Bootstrapped = r.widget.Bootstrapped()
	return s
}

// FindPlayer runs the locator on container, or on body when nil.
func (r *Reconciler) FindPlayer(container dom.Element) *player.Descriptor {
	if container == nil {
		container = r.doc.Body()
	}
	return r.locator.Locate(container)
}

// --- inputs ---

// onBatch runs on the observer's goroutine and must not block.
func (r *Reconciler) onBatch(records []dom.Mutation) {
	b := mutation.NewBatch(r.seq.Add(1), records)
	target := r.profile.ExtractActiveTarget(r.doc, b.Records)
	metrics.BatchesTotal.WithLabelValues(metrics.Bool(target != nil)).Inc()
	if target == nil {
		return
	}
	r.logger.Debug("reconcile: batch",
		"batch", b.ID, "seq", b.Seq, "records", len(b.Records), "target", target.Label())
	r.trigger(target, true)
}

// onBody watches body classes for the modal flag.
func (r *Reconciler) onBody(records []dom.Mutation) {
	for _, m := range records {
		if m.Kind != dom.KindAttributes || m.AttributeName != "class" {
			continue
		}
		r.stateMu.RLock()
		stored := r.modalVisible
		r.stateMu.RUnlock()
		if r.modalOpen() != stored {
			r.trigger(nil, false)
		}
		return
	}
}

// trigger fills the pending slot. A nil target with replace=false keeps a
// target already pending.
func (r *Reconciler) trigger(target dom.Element, replace bool) {
	r.slotMu.Lock()
	if replace || !r.hasPending {
		r.pending = target
	}
	r.hasPending = true
	r.slotMu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Reconciler) takePending() (dom.Element, bool) {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	t, ok := r.pending, r.hasPending
	r.pending, r.hasPending = nil, false
	return t, ok
}

func (r *Reconciler) takeRedirect() *player.Descriptor {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	p := r.redirect
	r.redirect = nil
	return p
}

// --- loop ---

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	r.initial(ctx)

	var failsafe <-chan time.Time
	if r.State().Observing {
		ticker := time.NewTicker(r.cfg.FailsafeInterval)
		defer ticker.Stop()
		failsafe = ticker.C
	}

	var settle *time.Timer
	var settleC <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	// Failsafe and recheck passes absorb a trigger still waiting for its
	// settle window, so it cannot drive a second pass.
	absorbPending := func() dom.Element {
		if settle != nil {
			settle.Stop()
			settle, settleC = nil, nil
		}
		target, _ := r.takePending()
		return target
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-r.notify:
			if settle != nil {
				settle.Stop()
			}
			settle = time.NewTimer(r.profile.SettleDelay)
			settleC = settle.C

		case <-settleC:
			settle, settleC = nil, nil
			if target, ok := r.takePending(); ok {
				r.pass(ctx, "mutation", target)
			}

		case <-failsafe:
			if r.stale() {
				metrics.FailsafeTriggersTotal.Inc()
				r.logger.Info("reconcile: failsafe found stale flags")
				r.pass(ctx, "failsafe", absorbPending())
			}

		case <-r.redirectCh:
			if p := r.takeRedirect(); p != nil {
				r.redirectTo(ctx, p)
			}

		case <-r.recheckCh:
			r.pass(ctx, "recheck", absorbPending())

		case req := <-r.authCh:
			err := r.widget.Auth(req.ctx, req.token)
			req.reply <- err
			r.recheckIfBusy(err)
		}
	}
}

// initial runs the document-ready pass. Profiles whose active region is
// rendered late wait for it first, within the retry budget.
func (r *Reconciler) initial(ctx context.Context) {
	var target dom.Element
	if r.profile.AwaitActive {
		found, err := retry.Poll(ctx, r.cfg.Retry, func() (dom.Element, bool) {
			el := r.profile.ExtractActiveTarget(r.doc, nil)
			return el, el != nil
		})
		switch {
		case err == nil:
			target = found
		case errors.Is(err, retry.ErrExhausted):
			r.logger.Info("reconcile: active region not found", "format", r.profile.Tag)
		default:
			return
		}
	}
	r.pass(ctx, "initial", target)
}

func (r *Reconciler) redirectTo(ctx context.Context, p *player.Descriptor) {
	if p.Same(r.widget.Attached()) {
		metrics.RedirectsTotal.WithLabelValues("same").Inc()
		return
	}
	if !r.widget.Bootstrapped() || !r.widget.Ready() {
		metrics.RedirectsTotal.WithLabelValues("not_ready").Inc()
		r.logger.Info("reconcile: redirect before widget ready", "player", p.ID)
		return
	}
	r.logger.Info("reconcile: redirect", "player", p.ID, "kind", p.Kind)
	if err := r.widget.Load(ctx, p); err != nil {
		metrics.RedirectsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("reconcile: redirect load", "player", p.ID, "error", err)
		return
	}
	metrics.RedirectsTotal.WithLabelValues("loaded").Inc()
}
