// Package redis implements the stream transports, locks and caches of the
// engine on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/config"
)

// clientName shows up in CLIENT LIST next to every engine connection.
const clientName = "arbengine"

// blockingReaders is the number of connections parked in XREAD BLOCK at any
// time: the feature consumer and the receipt consumer.
const blockingReaders = 2

// minFreeConns are kept available beside the blocked readers for the intent
// sink, locks, the rate limiter and calibration checkpoints.
const minFreeConns = 4

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb *redis.Client
}

// New connects to the Redis server in cfg and pings it. It returns an error
// if the connection cannot be established.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// options maps the Redis section onto driver options. Context deadlines are
// honoured on every command so shutdown interrupts a blocked stream read
// instead of waiting out its block time, and the pool always has room for
// the blocked readers plus regular commands.
func options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ClientName:            clientName,
		PoolSize:              cfg.PoolSize,
		MaxRetries:            cfg.MaxRetries,
		ContextTimeoutEnabled: true,
	}
	if opts.PoolSize < blockingReaders+minFreeConns {
		opts.PoolSize = blockingReaders + minFreeConns
	}
	// Waiting for a pooled connection is bounded by one block period.
	if block := cfg.ReadBlock.Duration; block > 0 {
		opts.PoolTimeout = block + time.Second
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	return opts
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need direct
// access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
