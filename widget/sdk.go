package widget

import (
	"context"
	"encoding/json"
)

// Runtime event names.
const (
	EventReady      = "ready"
	EventMyActivity = "my_activity"
)

// SDK is the widget runtime once its assets are in the page. None of its
// methods are safe to interleave; the Adapter serialises them.
type SDK interface {
	Boot(ctx context.Context, cfg *Config) error
	Load(ctx context.Context, cfg *Config) error
	Destroy(ctx context.Context) error
	Auth(ctx context.Context, token string) error
	On(event string, fn func(payload json.RawMessage)) error
}

// Loader fetches the runtime from url. It returns a nil SDK with a nil
// error when the asset loaded but the runtime never registered itself.
type Loader interface {
	Load(ctx context.Context, url string) (SDK, error)
}
