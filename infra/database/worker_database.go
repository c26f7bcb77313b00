package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions sizes the shared client. Lock calls, event publishes and the
// trigger consumer all go through one pool.
type RedisOptions struct {
	PoolSize    int
	StreamBlock time.Duration // XREADGROUP block of the trigger consumer
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.StreamBlock <= 0 {
		o.StreamBlock = 5 * time.Second
	}
	return o
}

// NewRedis connects and pings. The read timeout leaves room for one blocked
// stream read.
func NewRedis(ctx context.Context, redisURL string, opts RedisOptions) (*redis.Client, error) {
	opts = opts.withDefaults()

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opt.PoolSize = opts.PoolSize
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = opts.StreamBlock + 5*time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// =============================================================================
// Pool health
// =============================================================================

type PoolHealth string

const (
	PoolHealthy   PoolHealth = "healthy"
	PoolDegraded  PoolHealth = "degraded"
	PoolSaturated PoolHealth = "saturated"
)

// RedisStats is the pool snapshot reported by /ready.
type RedisStats struct {
	Hits       uint32     `json:"hits"`
	Misses     uint32     `json:"misses"`
	Timeouts   uint32     `json:"timeouts"`
	TotalConns uint32     `json:"total_conns"`
	IdleConns  uint32     `json:"idle_conns"`
	StaleConns uint32     `json:"stale_conns"`
	PoolSize   int        `json:"pool_size"`
	Health     PoolHealth `json:"health"`
}

func GetRedisStats(client *redis.Client) *RedisStats {
	stat := client.PoolStats()
	s := &RedisStats{
		Hits:       stat.Hits,
		Misses:     stat.Misses,
		Timeouts:   stat.Timeouts,
		TotalConns: stat.TotalConns,
		IdleConns:  stat.IdleConns,
		StaleConns: stat.StaleConns,
		PoolSize:   client.Options().PoolSize,
	}
	s.Health = AssessPool(s)
	return s
}

// AssessPool flags a pool that has timed out waiting for a connection, or one
// with every connection busy.
func AssessPool(s *RedisStats) PoolHealth {
	busy := int(s.TotalConns) - int(s.IdleConns)
	switch {
	case s.PoolSize > 0 && busy >= s.PoolSize:
		return PoolSaturated
	case s.Timeouts > 0:
		return PoolDegraded
	default:
		return PoolHealthy
	}
}
