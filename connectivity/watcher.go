package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// Watch reloads routes whenever PRAGMA data_version moves, checking every
// interval. It blocks until ctx ends.
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload", "error", err)
	}
	var last int64
	_ = db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&last)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				r.logger.Warn("connectivity: data_version", "error", err)
				continue
			}
			if ver == last {
				continue
			}
			last = ver
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("connectivity: reload", "error", err)
			}
		}
	}
}
