// Package tracker follows "play" on pages that embed several players of
// one kind side by side, so the widget can follow the one being watched.
package tracker

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/player"
)

// EventPlay is the media event the tracker listens for.
const EventPlay = "play"

// Config configures a Tracker.
type Config struct {
	Locator *player.Locator
	// Kinds to track. Default: every kind whose MultiInstance is true.
	Kinds []player.Kind
	// OnPlay is called, from the event source goroutine, for each play.
	OnPlay func(*player.Descriptor)
	Logger *slog.Logger
}

// Tracker attaches one play listener per player id.
type Tracker struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	watched map[string]func()
	closed  bool
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locator == nil {
		cfg.Locator = player.NewLocator(player.Options{Logger: cfg.Logger})
	}
	if len(cfg.Kinds) == 0 {
		for _, k := range player.Kinds() {
			if k.MultiInstance() {
				cfg.Kinds = append(cfg.Kinds, k)
			}
		}
	}
	return &Tracker{cfg: cfg, logger: cfg.Logger, watched: make(map[string]func())}
}

// Scan looks for kinds with more than one instance under container and
// listens for play on each. Players already watched are skipped. It
// returns the number of listeners added.
func (t *Tracker) Scan(container dom.Element) int {
	if container == nil {
		return 0
	}
	added := 0
	for _, kind := range t.cfg.Kinds {
		found, err := t.cfg.Locator.LocateAll(container, kind)
		if err != nil {
			t.logger.Warn("tracker: scan", "kind", kind, "error", err)
			continue
		}
		if len(found) < 2 {
			continue
		}
		for _, d := range found {
			if t.watch(d) {
				added++
			}
		}
	}
	if added > 0 {
		t.logger.Info("tracker: watching players", "added", added, "container", container.Label())
	}
	return added
}

func (t *Tracker) watch(d *player.Descriptor) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if _, ok := t.watched[d.ID]; ok {
		return false
	}
	remove, err := d.Element.On(EventPlay, func() { t.play(d) })
	if err != nil {
		t.logger.Warn("tracker: listen", "player", d.ID, "error", err)
		return false
	}
	t.watched[d.ID] = remove
	t.logger.Debug("tracker: setup player", "kind", d.Kind, "player", d.ID)
	return true
}

func (t *Tracker) play(d *player.Descriptor) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.logger.Info("tracker: play", "kind", d.Kind, "player", d.ID)
	if t.cfg.OnPlay != nil {
		t.cfg.OnPlay(d)
	}
}

// Watched returns the number of watched players.
func (t *Tracker) Watched() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watched)
}

// Close removes every listener.
func (t *Tracker) Close() {
	t.mu.Lock()
	removes := make([]func(), 0, len(t.watched))
	for _, r := range t.watched {
		removes = append(removes, r)
	}
	t.watched = make(map[string]func())
	t.closed = true
	t.mu.Unlock()
	for _, r := range removes {
		r()
	}
}
