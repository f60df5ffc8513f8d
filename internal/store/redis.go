package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/logger"

	"github.com/go-redis/redis/v8"
)

const pingTimeout = 5 * time.Second

type redisClient interface {
	Pipeline() redis.Pipeliner
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// Redis keeps the most recent prices of each symbol in a capped list so a
// restarted monitor can resume with full windows.
type Redis struct {
	client redisClient
	prefix string
	log    *logger.Log
}

// NewRedis connects to the configured server and verifies it with PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	r := newRedisWithClient(client, cfg.KeyPrefix)
	r.log.WithComponent("redis_store").WithFields(logger.Fields{
		"addr":   cfg.Addr,
		"db":     cfg.DB,
		"prefix": r.prefix,
	}).Info("redis window store connected")
	return r, nil
}

func newRedisWithClient(client redisClient, prefix string) *Redis {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "pairwatch"
	}
	return &Redis{client: client, prefix: prefix, log: logger.GetLogger()}
}

func (r *Redis) key(symbol string) string {
	return r.prefix + ":window:" + strings.ToUpper(symbol)
}

// Append pushes the price and trims the list to the newest capacity entries.
func (r *Redis) Append(ctx context.Context, symbol string, price float64, capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	key := r.key(symbol)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, strconv.FormatFloat(price, 'g', -1, 64))
	pipe.LTrim(ctx, key, -int64(capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// Load returns up to capacity of the newest prices, oldest first.
func (r *Redis) Load(ctx context.Context, symbol string, capacity int) ([]float64, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	key := r.key(symbol)
	vals, err := r.client.LRange(ctx, key, -int64(capacity), -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.log.WithComponent("redis_store").WithFields(logger.Fields{
				"key":   key,
				"value": v,
			}).Warn("skipping unparseable stored price")
			continue
		}
		out = append(out, p)
	}
	logger.LogDataFlowEntry(r.log.WithComponent("redis_store"), "redis", "window", len(out), "prices")
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
