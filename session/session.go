// Package session keeps per-session conversation history so consecutive runs
// of one session share context. The interface is deliberately small; add
// durable backends (Redis, Postgres) in sub-packages without changing any
// calling code. Only the wiring layer decides which implementation to
// instantiate.
package session

import (
	"context"

	"github.com/wanderplan/wanderplan/core"
)

// Store holds conversation history keyed by session id. Implementations must
// be safe for concurrent use.
type Store interface {
	// History returns the accumulated messages of a session, oldest first.
	// An unknown session yields an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]core.Message, error)
	// Append adds messages to a session, creating it when missing.
	Append(ctx context.Context, sessionID string, msgs ...core.Message) error
}
