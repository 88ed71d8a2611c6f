package domain

import (
	"context"
	"time"
)

// SessionState tracks one participant's position in the block order. The
// index only ever moves forward, one block per durable save.
type SessionState struct {
	ID          string    `json:"id"`
	Participant string    `json:"participant"`
	Index       int       `json:"index"`
	Total       int       `json:"total"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Complete reports whether every block has been rated.
func (s *SessionState) Complete() bool {
	return s.Index >= s.Total
}

// SessionStore defines the interface for per-participant session state.
// Sessions are keyed by normalized participant, so a returning participant
// picks up the same session regardless of name casing.
type SessionStore interface {
	// Begin creates (or replaces) the participant's session at the given
	// resume index.
	Begin(ctx context.Context, participant string, index, total int) (*SessionState, error)

	// Get retrieves the participant's session, or ErrSessionNotFound.
	Get(ctx context.Context, participant string) (*SessionState, error)

	// Advance moves the session forward one block. It is called only after
	// a successful, fully validated save.
	Advance(ctx context.Context, participant string) (*SessionState, error)
}
