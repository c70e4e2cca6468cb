package progress

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/playerwatch/metrics"
)

// Tracker evaluates completion for one activity and records every
// observation.
type Tracker struct {
	ActivityID   string
	Learner      Learner
	Requirements *Requirements
	Store        *Store // optional
	Logger       *slog.Logger

	// OnComplete is called once, the first time the activity completes.
	OnComplete func()

	done bool
}

// Observe handles one activity payload from the given source ("widget" or
// "iframe"). It reports whether the activity is complete. Trackers are not
// safe for concurrent use.
func (t *Tracker) Observe(ctx context.Context, source string, act *Activity) bool {
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	if source == "widget" {
		metrics.ProgressEventsTotal.WithLabelValues(source).Inc()
	}
	completed := Completed(t.Learner, t.Requirements, act)
	if t.Store != nil {
		if err := t.Store.Record(ctx, t.ActivityID, source, act, completed); err != nil {
			log.Warn("progress: store", "activity", t.ActivityID, "error", err)
		}
	}
	if completed && !t.done {
		t.done = true
		log.Info("progress: activity completed", "activity", t.ActivityID, "completion", act.Completion)
		if t.OnComplete != nil {
			t.OnComplete()
		}
	}
	return completed
}
