package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenthands/crosswalk/internal/logger"
)

type cachedValue struct {
	Gen    int64              `json:"gen"`
	Values map[string]float64 `json:"values"`
}

// RedisCache keeps the coverage map under one key with a TTL. Invalidate
// bumps a generation counter so results computed before the bump are never
// served.
type RedisCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log *logger.Logger
}

func NewRedisCache(ctx context.Context, addr, key string, ttl time.Duration, baseLog *logger.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{
		rdb: rdb,
		key: key,
		ttl: ttl,
		log: baseLog.With("component", "coverage_cache"),
	}, nil
}

func (c *RedisCache) genKey() string { return c.key + ":gen" }

func (c *RedisCache) Load(ctx context.Context) (map[string]float64, int64, bool, error) {
	res, err := c.rdb.MGet(ctx, c.key, c.genKey()).Result()
	if err != nil {
		return nil, 0, false, err
	}
	var gen int64
	if s, ok := res[1].(string); ok {
		gen, _ = strconv.ParseInt(s, 10, 64)
	}
	raw, ok := res[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var v cachedValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, gen, false, fmt.Errorf("decode cached coverage: %w", err)
	}
	if v.Gen != gen {
		return nil, gen, false, nil
	}
	return v.Values, gen, true, nil
}

func (c *RedisCache) Store(ctx context.Context, gen int64, values map[string]float64) error {
	raw, err := json.Marshal(cachedValue{Gen: gen, Values: values})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key, raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, c.genKey()).Err(); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("coverage cache invalidation failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
