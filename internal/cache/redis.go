package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/config"
	"rwa-price-aggregator/internal/domain"
)

// NewRedisClient builds a go-redis client from runtime settings and
// pings it to verify connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisSpreadState implements SpreadStateStore on Redis so crossing
// detection survives process restarts and works across replicas.
// Each alert's last spread lives at "alert_spread:{id}".
type RedisSpreadState struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSpreadState wraps a redis client. A zero ttl keeps entries
// forever; a positive ttl lets abandoned alerts age out.
func NewRedisSpreadState(rdb *redis.Client, ttl time.Duration) *RedisSpreadState {
	return &RedisSpreadState{rdb: rdb, ttl: ttl}
}

func spreadKey(alertID int64) string {
	return "alert_spread:" + strconv.FormatInt(alertID, 10)
}

// Get implements SpreadStateStore.
func (r *RedisSpreadState) Get(ctx context.Context, alertID int64) (*domain.Spread, error) {
	val, err := r.rdb.Get(ctx, spreadKey(alertID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get spread state %d: %w", alertID, err)
	}

	pct, convErr := decimal.NewFromString(val)
	if convErr != nil {
		return nil, fmt.Errorf("redis: parse spread state %d: %w", alertID, convErr)
	}
	spread := domain.SpreadFromPercentage(pct)
	return &spread, nil
}

// Set implements SpreadStateStore.
func (r *RedisSpreadState) Set(ctx context.Context, alertID int64, spread domain.Spread) error {
	if err := r.rdb.Set(ctx, spreadKey(alertID), spread.Percentage().String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set spread state %d: %w", alertID, err)
	}
	return nil
}

// Clear implements SpreadStateStore.
func (r *RedisSpreadState) Clear(ctx context.Context, alertID int64) error {
	if err := r.rdb.Del(ctx, spreadKey(alertID)).Err(); err != nil {
		return fmt.Errorf("redis: clear spread state %d: %w", alertID, err)
	}
	return nil
}

var _ SpreadStateStore = (*RedisSpreadState)(nil)
