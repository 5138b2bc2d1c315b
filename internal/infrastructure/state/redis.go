package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ArxivIntel/internal/ports"
)

// DefaultRedisKey holds the bookmark when no key is configured.
const DefaultRedisKey = "arxivintel:monitor:state"

// RedisStore keeps the monitor bookmark under a single Redis key so several
// hosts can share one feed position.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

var _ ports.StateStore = (*RedisStore)(nil)

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// LoadState returns the zero state when the key is absent.
func (r *RedisStore) LoadState(ctx context.Context) (ports.MonitorState, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return ports.MonitorState{}, nil
	}
	if err != nil {
		return ports.MonitorState{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var st ports.MonitorState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return ports.MonitorState{}, fmt.Errorf("decode monitor state: %w", err)
	}
	return st, nil
}

// SaveState stores the bookmark without expiry.
func (r *RedisStore) SaveState(ctx context.Context, st ports.MonitorState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode monitor state: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
