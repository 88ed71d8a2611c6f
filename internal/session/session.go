package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"evalform/internal/domain"
)

const (
	// Session expiration time
	sessionExpiration = 24 * time.Hour

	// Redis key prefix
	sessionKeyPrefix = "rating_session:"
)

// ResumeIndex returns the index of the first block whose base ID is absent
// from answered, or len(order) when every block is answered.
func ResumeIndex(order []string, answered map[string]struct{}) int {
	for i, base := range order {
		if _, ok := answered[base]; !ok {
			return i
		}
	}
	return len(order)
}

// Manager implements domain.SessionStore on Redis. One session exists per
// normalized participant; the single mutable field is the current block
// index, moved forward only by Advance.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new session manager
func NewManager(redis *redis.Client) *Manager {
	return &Manager{redis: redis}
}

func sessionKey(participant string) string {
	return sessionKeyPrefix + domain.NormalizeParticipant(participant)
}

// Begin creates or replaces the participant's session, positioned at the
// given resume index.
func (m *Manager) Begin(ctx context.Context, participant string, index, total int) (*domain.SessionState, error) {
	now := time.Now().UTC()
	state := &domain.SessionState{
		ID:          uuid.NewString(),
		Participant: participant,
		Index:       index,
		Total:       total,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Get retrieves the participant's session from Redis
func (m *Manager) Get(ctx context.Context, participant string) (*domain.SessionState, error) {
	data, err := m.redis.Get(ctx, sessionKey(participant)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

// Advance moves the session forward one block. Callers invoke it only after
// the block's ratings were durably saved.
func (m *Manager) Advance(ctx context.Context, participant string) (*domain.SessionState, error) {
	state, err := m.Get(ctx, participant)
	if err != nil {
		return nil, err
	}
	if state.Complete() {
		return state, nil
	}
	state.Index++
	state.UpdatedAt = time.Now().UTC()
	if err := m.store(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) store(ctx context.Context, state *domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.redis.Set(ctx, sessionKey(state.Participant), data, sessionExpiration).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
