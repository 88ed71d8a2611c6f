package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	answeredKeyPrefix = "answered:"

	// answeredTTL bounds staleness between explicit invalidations.
	answeredTTL = 60 * time.Second
)

// AnsweredCache keeps the set of base IDs a participant has already rated,
// keyed by normalized participant. It is a read-through helper for the
// result store: entries expire after a short TTL and are explicitly
// invalidated right after a successful append for the same participant.
type AnsweredCache struct {
	client *redis.Client
}

// NewAnsweredCache creates a new answered-blocks cache
func NewAnsweredCache(client *redis.Client) *AnsweredCache {
	return &AnsweredCache{client: client}
}

// Get returns the cached set for the participant; the second result is
// false on a cache miss.
func (c *AnsweredCache) Get(ctx context.Context, participant string) (map[string]struct{}, bool, error) {
	data, err := c.client.Get(ctx, answeredKeyPrefix+participant).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read answered cache: %w", err)
	}

	var baseIDs []string
	if err := json.Unmarshal(data, &baseIDs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal answered cache: %w", err)
	}
	set := make(map[string]struct{}, len(baseIDs))
	for _, id := range baseIDs {
		set[id] = struct{}{}
	}
	return set, true, nil
}

// Set stores the participant's answered set with the cache TTL.
func (c *AnsweredCache) Set(ctx context.Context, participant string, baseIDs map[string]struct{}) error {
	ids := make([]string, 0, len(baseIDs))
	for id := range baseIDs {
		ids = append(ids, id)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal answered cache: %w", err)
	}
	return c.client.Set(ctx, answeredKeyPrefix+participant, data, answeredTTL).Err()
}

// Invalidate drops the participant's entry so the next resume computation
// reads the store directly.
func (c *AnsweredCache) Invalidate(ctx context.Context, participant string) error {
	return c.client.Del(ctx, answeredKeyPrefix+participant).Err()
}
