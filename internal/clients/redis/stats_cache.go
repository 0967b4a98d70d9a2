package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

const statsKey = "fusion:stats"

// StatsCache is a read-through cache for the fusion stats aggregate. It is
// strictly best-effort: a miss or a redis error just falls back to the store.
type StatsCache interface {
	GetFusionStats(ctx context.Context) (*types.FusionStats, bool)
	SetFusionStats(ctx context.Context, stats *types.FusionStats)
	InvalidateFusionStats(ctx context.Context)
	Close() error
}

type statsCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewStatsCache(log *logger.Logger, ttl time.Duration) (StatsCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &statsCache{
		log: log.With("service", "RedisStatsCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *statsCache) GetFusionStats(ctx context.Context) (*types.FusionStats, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, statsKey).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("stats cache read failed", "error", err)
		}
		return nil, false
	}
	var stats types.FusionStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.log.Warn("stats cache payload unreadable, dropping", "error", err)
		_ = c.rdb.Del(ctx, statsKey).Err()
		return nil, false
	}
	return &stats, true
}

func (c *statsCache) SetFusionStats(ctx context.Context, stats *types.FusionStats) {
	if c == nil || c.rdb == nil || stats == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statsKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("stats cache write failed", "error", err)
	}
}

func (c *statsCache) InvalidateFusionStats(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, statsKey).Err(); err != nil {
		c.log.Warn("stats cache invalidate failed", "error", err)
	}
}

func (c *statsCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
