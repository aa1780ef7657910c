// Package redisclient provides the ingestion lock shared by every process
// that can start a tenant ingest.
package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	owner         string
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		owner:         uuid.New().String(),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// LockKey returns the Redis key guarding lockKey
func LockKey(lockKey string) string {
	return fmt.Sprintf("lock:%s", lockKey)
}

// AcquireLock acquires a distributed lock owned by this client.
// Returns false if someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, LockKey(lockKey), c.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	return ok, nil
}

// ReleaseLock releases a lock held by this client; a lock that expired and
// was taken by another owner is left alone
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	if err := c.releaseScript.Run(ctx, c.rdb, []string{LockKey(lockKey)}, c.owner).Err(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
