// Package horosafe holds the input checks applied to operator-supplied
// endpoints and the bounded reads used on their responses.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for LimitedReadAll callers.
const MaxResponseBody int64 = 1 << 20

var (
	// ErrUnsafeScheme rejects anything but http and https.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrResponseTooLarge is returned when a body exceeds its cap.
	ErrResponseTooLarge = errors.New("horosafe: response too large")
)

// ValidateEndpoint checks that raw is an absolute http(s) URL with a host.
// Private addresses are allowed: LMS callbacks usually live on the
// operator's own network.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}
	return nil
}

// LimitedReadAll reads r to the end, failing with ErrResponseTooLarge once
// more than maxBytes arrive.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return data, nil
}
