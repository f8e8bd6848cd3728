package cache

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CatalogFox/internal/pkg/config"
)

// New creates the Redis client shared by the job queue, the progress
// publisher and the rate limiter storage. A failed ping is logged but not
// fatal; in container setups Redis may come up after the app.
func New(cfg config.CacheConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[Cache] Redis at %s is not reachable yet: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Connected to Redis at %s", cfg.Addr())
	}

	return client
}
