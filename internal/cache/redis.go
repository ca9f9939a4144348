// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKey is the hash holding scheduled entries.
const DefaultRedisKey = "sportsdvr:scheduled"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string // hash key, DefaultRedisKey when empty
}

// RedisScheduledSet stores scheduled entries in one Redis hash (program id -> JSON).
type RedisScheduledSet struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisScheduledSet connects and pings Redis.
func NewRedisScheduledSet(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisScheduledSet, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis scheduled cache")

	return newRedisScheduledSet(client, cfg.Key, logger), nil
}

func newRedisScheduledSet(client *redis.Client, key string, logger zerolog.Logger) *RedisScheduledSet {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisScheduledSet{client: client, key: key, logger: logger}
}

func (s *RedisScheduledSet) Has(ctx context.Context, programID string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.key, programID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists: %w", err)
	}
	return ok, nil
}

func (s *RedisScheduledSet) Get(ctx context.Context, programID string) (ScheduledEntry, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, programID).Bytes()
	if errors.Is(err, redis.Nil) {
		return ScheduledEntry{}, false, nil
	}
	if err != nil {
		return ScheduledEntry{}, false, fmt.Errorf("redis hget: %w", err)
	}
	var e ScheduledEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return ScheduledEntry{}, false, fmt.Errorf("decode scheduled entry %s: %w", programID, err)
	}
	return e, true, nil
}

func (s *RedisScheduledSet) Put(ctx context.Context, e ScheduledEntry) error {
	if e.ProgramID == "" {
		return ErrEmptyProgramID
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, e.ProgramID, data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *RedisScheduledSet) Delete(ctx context.Context, programID string) error {
	if err := s.client.HDel(ctx, s.key, programID).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (s *RedisScheduledSet) List(ctx context.Context) ([]ScheduledEntry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]ScheduledEntry, 0, len(all))
	for id, raw := range all {
		var e ScheduledEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn().Err(err).Str("program_id", id).Msg("skipping undecodable scheduled entry")
			continue
		}
		out = append(out, e)
	}
	SortEntries(out)
	return out, nil
}

func (s *RedisScheduledSet) Clear(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (s *RedisScheduledSet) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return int(n), nil
}

// HealthCheck pings Redis.
func (s *RedisScheduledSet) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisScheduledSet) Close() error {
	return s.client.Close()
}
