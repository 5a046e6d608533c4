package db

import (
	"context"
	"log"
	"time"

	"backend-touchgrass/internal/config"

	"github.com/redis/go-redis/v9"
)

var pingRedisFn = func(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// ConnectRedis returns a client for the stream fan-out, or nil when no
// address is configured. An unreachable server is logged and the client is
// still returned; the hub delivers locally until Redis comes back.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pingRedisFn(ctx, client); err != nil {
		log.Printf("redis %s unreachable, walk events stay on this instance: %v", cfg.RedisAddr, err)
	}
	return client
}
