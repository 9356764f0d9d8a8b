package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings for the scheduling lock store.
// The booking path holds a connection only for the duration of a SetNX and a
// release script, so the pool stays small.
type Config struct {
	Addr     string
	Username string
	Password string
	PoolSize int // defaults to 10
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
