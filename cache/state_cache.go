package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"WaveFM/model"
)

const (
	stateKeyPrefix = "playstate:"
	stateTTL       = 30 * time.Second
)

// StateCache mirrors each live station's PlayState in Redis so the
// relay and listener endpoints can read it without hitting MySQL on
// every request. A miss is never an error; callers rebuild from the
// database and write the result back.
type StateCache struct {
	client *redis.Client
}

// NewStateCache creates a StateCache. A nil client disables caching;
// every Get misses and Set/Invalidate become no-ops.
func NewStateCache(client *redis.Client) *StateCache {
	return &StateCache{client: client}
}

func stateKey(stationID int64) string {
	return fmt.Sprintf("%s%d", stateKeyPrefix, stationID)
}

// Get returns the cached state for a station, or (nil, nil) on a miss.
func (c *StateCache) Get(ctx context.Context, stationID int64) (*model.PlayState, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, stateKey(stationID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read play state for station %d: %w", stationID, err)
	}

	state := &model.PlayState{}
	if err := json.Unmarshal(data, state); err != nil {
		// Drop a corrupt entry and treat it as a miss.
		c.client.Del(ctx, stateKey(stationID))
		return nil, nil
	}
	return state, nil
}

// Set stores the state with a short TTL.
func (c *StateCache) Set(ctx context.Context, state *model.PlayState) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal play state: %w", err)
	}

	if err := c.client.Set(ctx, stateKey(state.StationID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache play state for station %d: %w", state.StationID, err)
	}
	return nil
}

// Invalidate drops the cached state after any transition.
func (c *StateCache) Invalidate(ctx context.Context, stationID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, stateKey(stationID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate play state for station %d: %w", stationID, err)
	}
	return nil
}
