package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/playerwatch/metrics"
	"github.com/hazyhaar/playerwatch/retry"
)

// Poster delivers a serialised message into the iframe's window (and, for
// nested players, into its first child frame).
type Poster interface {
	Post(ctx context.Context, msg []byte) error
}

// SubscribePolicy re-sends the subscribe message every 2s, for ten minutes
// at most.
var SubscribePolicy = retry.Policy{Attempts: 300, Interval: 2 * time.Second}

// Subscriber keeps asking an iframe widget for activity events until it
// acknowledges, then forwards them to Sink.
type Subscriber struct {
	ID     string
	Poster Poster
	Sink   func(*Activity)
	Policy retry.Policy
	Logger *slog.Logger

	acked  atomic.Bool
	mu     sync.Mutex
	handle *retry.Handle
}

// Start begins the subscribe loop.
func (s *Subscriber) Start(ctx context.Context) {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	policy := s.Policy
	if policy.Attempts <= 0 {
		policy = SubscribePolicy
	}
	msg, _ := json.Marshal(SubscribeMessage(s.ID))

	h := retry.Start(ctx, policy, func() bool {
		if s.acked.Load() {
			return true
		}
		if err := s.Poster.Post(ctx, msg); err != nil {
			s.Logger.Debug("progress: post subscribe", "id", s.ID, "error", err)
		} else {
			s.Logger.Info("progress: request subscribe to my_activity", "id", s.ID)
		}
		return false
	}, func() {
		s.Logger.Info("progress: iframe never subscribed", "id", s.ID)
	})

	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// Stop ends the subscribe loop.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
		<-h.Done()
	}
}

// Subscribed reports whether the iframe acknowledged.
func (s *Subscriber) Subscribed() bool { return s.acked.Load() }

// Handle processes one posted message. Messages for other ids and
// malformed ones are ignored without logging.
func (s *Subscriber) Handle(data []byte) {
	r, ok := ParseResponse(data, s.ID)
	if !ok {
		return
	}
	if r.Err != "" {
		s.logger().Error("progress: iframe API error", "id", s.ID, "error", r.Err)
		return
	}
	switch r.Type {
	case "subscribe":
		s.acked.Store(true)
		s.logger().Info("progress: subscribed to my_activity", "id", s.ID)
	case "event":
		ev := r.Event()
		if ev == nil || ev.EventName != "my_activity" {
			return
		}
		act, err := ParseActivity(ev.EventData)
		if err != nil {
			return
		}
		metrics.ProgressEventsTotal.WithLabelValues("iframe").Inc()
		if s.Sink != nil {
			s.Sink(act)
		}
	}
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
