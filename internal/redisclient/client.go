package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/adjust_stock.lua
var adjustStockScript string

// Client is a best-effort cache of per-product stock counts. The database is
// always the authority; the cache only serves cheap display reads and is
// refreshed from the database by the reconciliation worker.
type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
}

// NewClient creates a new Redis client with the stock script loaded
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

	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// SetStock writes an absolute stock snapshot. Idempotent, so the worker can
// safely replay it on retries.
func (c *Client) SetStock(ctx context.Context, productID int64, count int, inStock bool) error {
	in := 0
	if inStock {
		in = 1
	}

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, stockKey(productID), "count", count)
	pipe.HSet(ctx, stockKey(productID), "in_stock", in)

	_, err := pipe.Exec(ctx)
	return err
}

// AdjustStock atomically applies a delta to the cached count, clamped at
// zero. Returns the resulting count.
func (c *Client) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	result, err := c.adjustScript.Run(ctx, c.rdb, []string{stockKey(productID)}, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("adjust stock script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return int(count), nil
}

// GetStock retrieves the cached stock count for a product
func (c *Client) GetStock(ctx context.Context, productID int64) (count int, inStock bool, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(productID)).Result()
	if err != nil {
		return 0, false, err
	}

	if len(result) == 0 {
		return 0, false, fmt.Errorf("stock not cached for product %d", productID)
	}

	count, _ = strconv.Atoi(result["count"])
	return count, result["in_stock"] == "1", nil
}
