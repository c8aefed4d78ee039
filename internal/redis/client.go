// Package redis provides the Redis-backed durable message store.
package redis

import (
	"context"
	"fmt"

	"github.com/ibs-source/queue-receiver/internal/config"
	"github.com/ibs-source/queue-receiver/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// Client owns the Redis connection and the queue key layout
type Client struct {
	rdb    *redis.Client
	prefix string
	log    *log.Logger
}

// NewClient connects to Redis and ensures the configured queues exist
func NewClient(cfg *config.RedisConfig, logger *log.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// Explicitly disable maintenance notifications
		// so the client sends no extra commands to Redis.
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client := NewFromRedis(rdb, cfg.KeyPrefix, logger)
	for _, q := range cfg.Queues {
		if err := client.CreateQueue(ctx, q); err != nil {
			_ = rdb.Close()
			return nil, err
		}
	}
	if len(cfg.Queues) > 0 {
		logger.Info("Ensured %d queues: %v", len(cfg.Queues), cfg.Queues)
	}
	return client, nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client, prefix string, logger *log.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, log: logger}
}

func (c *Client) registryKey() string {
	return c.prefix + "queues"
}

// StreamKey is the stream holding a queue's messages
func (c *Client) StreamKey(queue string) string {
	return c.prefix + "queue:" + queue
}

// CreateQueue registers a queue; creating an existing queue is a no-op
func (c *Client) CreateQueue(ctx context.Context, queue string) error {
	added, err := c.rdb.SAdd(ctx, c.registryKey(), queue).Result()
	if err != nil {
		return fmt.Errorf("failed to create queue %s: %w", queue, err)
	}
	if added > 0 {
		c.log.Info("Created queue '%s'", queue)
	}
	return nil
}

// QueueExists reports whether a queue is registered
func (c *Client) QueueExists(ctx context.Context, queue string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, c.registryKey(), queue).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check queue %s: %w", queue, err)
	}
	return ok, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
