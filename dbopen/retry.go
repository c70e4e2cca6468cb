package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/playerwatch/retry"
)

// busyPolicy bounds how long a write waits out a concurrent writer.
var busyPolicy = retry.Policy{Attempts: 3, Interval: 100 * time.Millisecond}

// IsBusy reports whether err is SQLite's BUSY/locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs a statement, retrying while the database is busy.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var last error
	res, err := retry.Poll(ctx, busyPolicy, func() (sql.Result, bool) {
		r, err := db.ExecContext(ctx, query, args...)
		if err != nil && IsBusy(err) {
			last = err
			return nil, false
		}
		last = err
		return r, true
	})
	if errors.Is(err, retry.ErrExhausted) {
		return nil, last
	}
	if err != nil {
		return nil, err
	}
	return res, last
}
