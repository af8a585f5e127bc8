package redis

import (
	"context"
	"fmt"
	"time"

	"notification-service/internal/config"

	"github.com/redis/go-redis/v9"
)

var Redis_Client *redis.Client

func InitRedis(cfg *config.RedisConfig) error {
	Redis_Client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Redis_Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to Redis at %s: %w", cfg.Addr, err)
	}
	return nil
}

func CloseRedis() error {
	if Redis_Client == nil {
		return nil
	}
	return Redis_Client.Close()
}
