// Package redis provides the Redis connection shared by the account store, the track cache and the action rate limiter.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/utils"
)

// Client wraps the Redis client with app-specific functionality
type Client struct {
	client *redis.Client
	prefix string
	logger *utils.Logger
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, logger *utils.Logger) (*Client, error) {
	// If no logger is provided, use the global logger
	if logger == nil {
		logger = utils.GetLogger()
	}
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}

	opts := &redis.Options{
		Addr:         cfg.Addresses[0], // Use the first address in the list
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	client := redis.NewClient(opts)

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, "addr", opts.Addr)
		_ = client.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return Wrap(client, cfg.KeyPrefix, logger), nil
}

// Wrap adapts an existing go-redis client.
func Wrap(client *redis.Client, prefix string, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Client{
		client: client,
		prefix: prefix,
		logger: logger.Named("redis"),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	err := c.client.Close()
	if err != nil {
		c.logger.Error("Failed to close Redis connection", err)
		return err
	}
	c.logger.Info("Closed Redis connection")
	return nil
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Ping pings the Redis server
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("Failed to ping Redis", err)
		return err
	}
	return nil
}

// Get gets a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if IsNil(err) {
			// Key does not exist
			return "", nil
		}
		c.logger.Error("Failed to get value from Redis", err, "key", key)
		return "", err
	}
	return value, nil
}

// GetObject gets an object from Redis and unmarshals it
func (c *Client) GetObject(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}

	if data == "" {
		return redis.Nil
	}

	return json.Unmarshal([]byte(data), dest)
}

// Set sets a value in Redis with an optional expiration
func (c *Client) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		c.logger.Error("Failed to set value in Redis", err, "key", key)
		return err
	}
	return nil
}

// SetObject sets an object in Redis by marshaling it to JSON
func (c *Client) SetObject(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to marshal object for Redis", err, "key", key)
		return err
	}

	return c.Set(ctx, key, string(data), expiration)
}

// Del deletes a key from Redis
func (c *Client) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Failed to delete key from Redis", err, "key", key)
		return err
	}
	return nil
}

// DelKeys deletes multiple keys from Redis
func (c *Client) DelKeys(ctx context.Context, pattern string) error {
	keys, err := c.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Failed to delete keys from Redis", err, "pattern", pattern)
		return err
	}

	return nil
}

// Keys collects the keys matching a pattern with SCAN
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("Failed to scan keys from Redis", err, "pattern", pattern)
		return nil, err
	}
	return keys, nil
}

// Expire sets an expiration on a key
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if err := c.client.Expire(ctx, key, expiration).Err(); err != nil {
		c.logger.Error("Failed to set expiration on key", err, "key", key)
		return err
	}
	return nil
}

// Pipeline creates a Redis pipeline
func (c *Client) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// Publish publishes a message to a channel
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Error("Failed to publish message", err, "channel", channel)
		return err
	}
	return nil
}

// Subscribe subscribes to channels
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

// Logger returns the logger used by the client
func (c *Client) Logger() *utils.Logger {
	return c.logger
}

// FormatKey creates a namespaced Redis key
func FormatKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// Key joins parts under the configured key prefix.
func (c *Client) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if c.prefix == "" {
		return key
	}
	return FormatKey(c.prefix, key)
}

// IsNil reports whether err signals a missing key.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
