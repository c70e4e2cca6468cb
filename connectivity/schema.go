package connectivity

import (
	"database/sql"

	"github.com/hazyhaar/playerwatch/dbopen"
)

// Schema is the routes table. Strategies:
//
//   - local: the handler registered with RegisterLocal
//   - http:  POST to endpoint through HTTPFactory
//   - noop:  succeed without doing anything
//
// config holds per-route JSON such as {"timeout_ms": 2000}.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);`

// OpenDB opens path with the routes table in place.
func OpenDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
}

// Init creates the routes table on an open database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// SetRoute inserts or replaces one route.
func SetRoute(db *sql.DB, service, strategy, endpoint, config string) error {
	if config == "" {
		config = "{}"
	}
	_, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			strategy = excluded.strategy,
			endpoint = excluded.endpoint,
			config = excluded.config,
			updated_at = strftime('%s', 'now')`,
		service, strategy, endpoint, config)
	return err
}
