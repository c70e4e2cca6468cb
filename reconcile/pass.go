package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/metrics"
	"github.com/hazyhaar/playerwatch/player"
	"github.com/hazyhaar/playerwatch/retry"
	"github.com/hazyhaar/playerwatch/widget"
)

// Pass outcomes, also used as metric labels.
const (
	outcomeSkipped   = "skipped"
	outcomeAborted   = "aborted"
	outcomeLoaded    = "loaded"
	outcomeDestroyed = "destroyed"
)

func (r *Reconciler) pass(ctx context.Context, trigger string, batchTarget dom.Element) {
	start := time.Now()
	outcome := r.run(ctx, batchTarget)
	metrics.PassesTotal.WithLabelValues(trigger, outcome).Inc()
	metrics.PassDuration.Observe(time.Since(start).Seconds())
	r.logger.Debug("reconcile: pass", "trigger", trigger, "outcome", outcome, "took", time.Since(start))
}

// run is one reconciliation pass. It is only ever called from the loop.
func (r *Reconciler) run(ctx context.Context, batchTarget dom.Element) string {
	target := r.resolveTarget(batchTarget)
	formatVisible := target != nil && target.Rendered()
	modalVisible := r.modalOpen()

	r.stateMu.Lock()
	prevFormat, prevModal := r.formatVisible, r.modalVisible
	r.stateMu.Unlock()

	// Nothing that matters changed and the widget's player is still on
	// screen: leave it alone.
	if modalVisible == prevModal && formatVisible == prevFormat {
		if a := r.widget.Attached(); a != nil && a.Element != nil && a.Element.Rendered() {
			return outcomeSkipped
		}
	}

	r.stateMu.Lock()
	r.formatVisible, r.modalVisible, r.target = formatVisible, modalVisible, target
	r.stateMu.Unlock()

	if modalVisible != prevModal {
		delay := r.cfg.ModalCloseSettle
		if modalVisible {
			delay = r.cfg.ModalOpenSettle
		}
		if !sleep(ctx, delay) {
			return outcomeAborted
		}
		if r.modalOpen() != modalVisible {
			r.logger.Info("reconcile: modal flipped while settling")
			r.Recheck()
			return outcomeAborted
		}
	}

	var container dom.Element
	inModal := false
	if modalVisible {
		container = r.modalContainer(ctx)
		inModal = container != nil
	}
	if container == nil && formatVisible {
		container = target
	}

	if container != nil {
		if _, err := r.widget.MoveContainer(container); err != nil {
			r.logger.Warn("reconcile: move container", "error", err)
		}
	} else if _, err := r.widget.MoveHome(); err != nil {
		r.logger.Warn("reconcile: move home", "error", err)
	}

	root := container
	if root == nil {
		root = r.doc.Body()
	}
	var p *player.Descriptor
	if inModal {
		p = r.modalPlayer(ctx, root)
	} else {
		p = r.locator.Locate(root)
	}

	if p != nil && p.Element.Rendered() {
		var err error
		switch {
		case !r.widget.Bootstrapped():
			err = r.widget.Bootstrap(ctx, p)
		case r.widget.Ready():
			err = r.widget.Load(ctx, p)
		default:
			r.logger.Debug("reconcile: widget not ready, load skipped", "player", p.ID)
		}
		if err != nil {
			r.logger.Warn("reconcile: attach", "player", p.ID, "error", err)
			r.recheckIfBusy(err)
		}
		// The page may have moved on while the widget was busy.
		if !p.Element.Rendered() {
			r.logger.Info("reconcile: player hidden during load", "player", p.ID)
			r.Recheck()
		}
		if r.tracker != nil {
			r.tracker.Scan(root)
		}
		return outcomeLoaded
	}

	if err := r.widget.Destroy(ctx); err != nil {
		r.logger.Warn("reconcile: destroy", "error", err)
		r.recheckIfBusy(err)
	}
	return outcomeDestroyed
}

// resolveTarget prefers the batch target, then the last target while it is
// still rendered, then a direct lookup.
func (r *Reconciler) resolveTarget(batchTarget dom.Element) dom.Element {
	if batchTarget != nil {
		return batchTarget
	}
	r.stateMu.RLock()
	last := r.target
	r.stateMu.RUnlock()
	if last != nil && last.Rendered() {
		return last
	}
	return r.profile.ExtractActiveTarget(r.doc, nil)
}

// stale reports whether the live flags disagree with the stored ones.
func (r *Reconciler) stale() bool {
	target := r.resolveTarget(nil)
	formatVisible := target != nil && target.Rendered()
	modalVisible := r.modalOpen()
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return formatVisible != r.formatVisible || modalVisible != r.modalVisible
}

func (r *Reconciler) modalOpen() bool {
	body := r.doc.Body()
	return body != nil && body.HasClass(r.cfg.ModalClass)
}

// modalContainer waits, within the retry budget, for the open dialog.
func (r *Reconciler) modalContainer(ctx context.Context) dom.Element {
	el, err := retry.Poll(ctx, r.cfg.Retry, func() (dom.Element, bool) {
		el := dom.FirstRendered(r.doc.QueryAll(r.cfg.ModalSelector))
		return el, el != nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		r.logger.Info("reconcile: modal not found", "selector", r.cfg.ModalSelector)
	}
	return el
}

// modalPlayer waits, within the retry budget, for a rendered player inside
// the dialog. Dialog bodies are often filled in after the dialog opens.
func (r *Reconciler) modalPlayer(ctx context.Context, modal dom.Element) *player.Descriptor {
	p, err := retry.Poll(ctx, r.cfg.Retry, func() (*player.Descriptor, bool) {
		p := r.locator.Locate(modal)
		return p, p != nil && p.Element.Rendered()
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			r.logger.Info("reconcile: no player in modal", "modal", modal.Label())
		}
		return nil
	}
	return p
}

// recheckIfBusy queues another pass, one retry interval later, when the
// widget turned a call away because another call was in flight.
func (r *Reconciler) recheckIfBusy(err error) {
	if errors.Is(err, widget.ErrInFlight) {
		r.logger.Info("reconcile: widget busy, pass requeued")
		time.AfterFunc(r.cfg.Retry.Interval, r.Recheck)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
