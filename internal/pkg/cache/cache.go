package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/env"
)

var client *redis.Client

// Options returns the Redis options derived from CACHE_* variables.
func Options() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	}
}

// SetupCache initializes the shared Redis client used by the job queue and rate limiter.
func SetupCache() {
	client = redis.NewClient(Options())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis: %v", err)
	} else {
		log.Printf("Successfully connected to Redis: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient replaces the shared client; tests point it at an in-memory server.
func SetClient(c *redis.Client) {
	client = c
}

// Available reports whether Redis answers a ping within the timeout.
func Available(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return GetClient().Ping(ctx).Err() == nil
}
