package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/playerwatch/dbopen"
)

// Schema creates the progress table.
const Schema = `CREATE TABLE IF NOT EXISTS activity_progress (
	activity_id  TEXT NOT NULL,
	source       TEXT NOT NULL,
	completion   REAL NOT NULL,
	comments     INTEGER NOT NULL,
	replies      INTEGER NOT NULL,
	completed    INTEGER NOT NULL,
	payload      TEXT,
	recorded_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_progress_activity
	ON activity_progress(activity_id, recorded_at);`

// ErrNoProgress is returned by Latest when nothing was recorded.
var ErrNoProgress = errors.New("progress: no progress recorded")

// Record is one stored observation.
type Record struct {
	ActivityID string
	Source     string
	Activity   Activity
	Completed  bool
	RecordedAt time.Time
}

// Store appends activity observations to SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates the schema on db.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("progress: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Record appends an observation.
func (s *Store) Record(ctx context.Context, activityID, source string, act *Activity, completed bool) error {
	var payload any
	if len(act.Raw) > 0 {
		payload = string(act.Raw)
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO activity_progress
			(activity_id, source, completion, comments, replies, completed, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		activityID, source, act.Completion, act.Comments, act.Replies, completed, payload, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("progress: record %s: %w", activityID, err)
	}
	return nil
}

// Latest returns the most recent observation for activityID.
func (s *Store) Latest(ctx context.Context, activityID string) (*Record, error) {
	var (
		r       Record
		payload sql.NullString
		at      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT activity_id, source, completion, comments, replies, completed, payload, recorded_at
		 FROM activity_progress WHERE activity_id = ?
		 ORDER BY recorded_at DESC, rowid DESC LIMIT 1`, activityID).
		Scan(&r.ActivityID, &r.Source, &r.Activity.Completion, &r.Activity.Comments,
			&r.Activity.Replies, &r.Completed, &payload, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("progress: latest %s: %w", activityID, err)
	}
	if payload.Valid {
		r.Activity.Raw = []byte(payload.String)
	}
	r.RecordedAt = time.UnixMilli(at)
	return &r, nil
}
