// Redis-backed bot state persistence. The saved state lets a restarted
// process resume its open position and cooldowns instead of cold-starting.
// When Redis is unavailable it falls back to an in-memory copy so trading
// continues without interruption.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"breakout-trading-bot/internal/engine"
)

const (
	// BotStateKey is the Redis key holding the serialized bot state
	BotStateKey = "breakout:bot:state"

	// BotStateTTL keeps stale state from surviving indefinitely
	BotStateTTL = 7 * 24 * time.Hour
)

// BotState is the persisted engine state snapshot
type BotState struct {
	Position  *engine.Position     `json:"position,omitempty"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
	SavedAt   time.Time            `json:"saved_at"`
}

// RedisStateRepository stores bot state in Redis with an in-memory fallback
// when Redis is unavailable.
type RedisStateRepository struct {
	client         *redis.Client
	mu             sync.RWMutex
	memory         *BotState
	redisAvailable atomic.Bool
}

// NewRedisStateRepository creates the repository. A nil client means
// memory-only mode.
func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	repo := &RedisStateRepository{client: client}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[REDIS-STATE] Redis unavailable at startup: %v, using in-memory state", err)
			repo.redisAvailable.Store(false)
		} else {
			log.Printf("[REDIS-STATE] Redis connected successfully")
			repo.redisAvailable.Store(true)
		}
	} else {
		log.Printf("[REDIS-STATE] No Redis client provided, using in-memory state only")
		repo.redisAvailable.Store(false)
	}

	return repo
}

// SaveState persists the bot state. The in-memory copy always updates; the
// Redis write is best-effort and flips availability on failure.
func (r *RedisStateRepository) SaveState(ctx context.Context, state *BotState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil bot state")
	}
	state.SavedAt = time.Now()

	r.mu.Lock()
	copied := *state
	r.memory = &copied
	r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal bot state: %w", err)
	}

	if err := r.client.Set(ctx, BotStateKey, data, BotStateTTL).Err(); err != nil {
		if r.redisAvailable.Swap(false) {
			log.Printf("[REDIS-STATE] Redis write failed: %v, falling back to in-memory state", err)
		}
		return nil
	}
	if !r.redisAvailable.Swap(true) {
		log.Printf("[REDIS-STATE] Redis connection recovered")
	}
	return nil
}

// LoadState retrieves the saved state, preferring Redis, falling back to the
// in-memory copy. Returns (nil, nil) when nothing has been saved.
func (r *RedisStateRepository) LoadState(ctx context.Context) (*BotState, error) {
	if r.client != nil && r.redisAvailable.Load() {
		data, err := r.client.Get(ctx, BotStateKey).Bytes()
		switch {
		case err == nil:
			state := &BotState{}
			if err := json.Unmarshal(data, state); err != nil {
				return nil, fmt.Errorf("failed to unmarshal bot state: %w", err)
			}
			return state, nil
		case errors.Is(err, redis.Nil):
			return nil, nil
		default:
			if r.redisAvailable.Swap(false) {
				log.Printf("[REDIS-STATE] Redis read failed: %v, falling back to in-memory state", err)
			}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.memory == nil {
		return nil, nil
	}
	copied := *r.memory
	return &copied, nil
}

// ClearState removes persisted state after a clean shutdown with no open
// position.
func (r *RedisStateRepository) ClearState(ctx context.Context) error {
	r.mu.Lock()
	r.memory = nil
	r.mu.Unlock()

	if r.client == nil || !r.redisAvailable.Load() {
		return nil
	}
	return r.client.Del(ctx, BotStateKey).Err()
}
