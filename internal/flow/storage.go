package flow

import "context"

// Storage persists flow sessions. Sessions are ephemeral wizard state, kept
// separate from the durable state document.
type Storage interface {
	// Get returns the session for the user, or ErrSessionNotFound.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Set stores (or overwrites) the user's session.
	Set(ctx context.Context, userID int64, session *Session) error
	// Clear removes the user's session.
	Clear(ctx context.Context, userID int64) error
}
