// Package idempotency remembers the response to an order placement keyed by
// the caller and the Idempotency-Key header, so a retried request replays the
// first response instead of placing a second order.
package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

const Header = "Idempotency-Key"

const (
	StatePending = "pending"
	StateDone    = "done"
)

// Record is what a key maps to. Pending records exist while the first request
// is still running.
type Record struct {
	State      string          `json:"state"`
	StatusCode int             `json:"statusCode,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Store is implemented by the Redis store and the in-process store.
type Store interface {
	// Lookup returns nil when the key is unknown.
	Lookup(ctx context.Context, scope, key string) (*Record, error)
	// Claim marks the key pending; false means another request already holds it.
	Claim(ctx context.Context, scope, key string) (bool, error)
	Complete(ctx context.Context, scope, key string, rec Record) error
	// Abandon forgets a claim so the client may retry.
	Abandon(ctx context.Context, scope, key string) error
}

func storageKey(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}

type options struct {
	ttl time.Duration
	now func() time.Time
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func defaults(opts []Option) options {
	o := options{ttl: 24 * time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
