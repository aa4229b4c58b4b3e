package xp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Awarder forwards XP earned in duels to the progression subsystem.
type Awarder interface {
	Award(ctx context.Context, playerID uuid.UUID, amount int) error
}

// RedisAwarder records XP as per-player counters plus an all-time duel XP
// leaderboard. The badge/level bookkeeping that consumes these keys lives in
// the excluded progression service.
type RedisAwarder struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisAwarder creates a Redis-backed XP sink.
func NewRedisAwarder(client *redis.Client, prefix string, logger zerolog.Logger) *RedisAwarder {
	if prefix == "" {
		prefix = "xp"
	}
	return &RedisAwarder{
		redis:  client,
		prefix: prefix,
		logger: logger.With().Str("component", "xp").Logger(),
	}
}

// Award atomically credits a player and bumps the duel leaderboard.
func (a *RedisAwarder) Award(ctx context.Context, playerID uuid.UUID, amount int) error {
	if amount <= 0 {
		return nil
	}

	playerKey := fmt.Sprintf("%s:player:%s", a.prefix, playerID.String())
	boardKey := fmt.Sprintf("%s:duels:alltime", a.prefix)

	pipe := a.redis.TxPipeline()
	pipe.IncrBy(ctx, playerKey, int64(amount))
	pipe.ZIncrBy(ctx, boardKey, float64(amount), playerID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("award xp: %w", err)
	}

	a.logger.Info().
		Str("player_id", playerID.String()).
		Int("amount", amount).
		Msg("xp awarded")
	return nil
}

// Total returns a player's accumulated XP. Used by tests and ops tooling.
func (a *RedisAwarder) Total(ctx context.Context, playerID uuid.UUID) (int, error) {
	playerKey := fmt.Sprintf("%s:player:%s", a.prefix, playerID.String())
	val, err := a.redis.Get(ctx, playerKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get xp: %w", err)
	}
	return val, nil
}

// Nop discards awards. Used when no Redis sink is configured.
type Nop struct{}

// Award implements Awarder.
func (Nop) Award(context.Context, uuid.UUID, int) error { return nil }
