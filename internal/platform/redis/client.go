package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var redisPoolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "accredo_redis_pool_total_conns",
	Help: "Number of total connections in the Redis pool",
})

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
}

// New connects to Redis and verifies the connection before returning it.
func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	redisPoolTotalConns.Set(float64(client.PoolStats().TotalConns))

	return client, nil
}

// HealthCheck returns a function suitable for readiness probes.
func HealthCheck(client *redis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
