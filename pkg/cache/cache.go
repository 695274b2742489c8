// Package cache implements the process-wide cache client (C1): a thin,
// JSON-encoding wrapper over a shared Redis connection pool. It is the only
// read-side cache permitted in the system — services never keep their own
// in-memory copies, so refresh_all stays a complete invalidation primitive.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("cache: key not found")

const scanBatchSize = 100

// Client wraps a shared *redis.Client with the JSON-encode/decode vocabulary
// the domain services use. It is opened once at process startup and shared
// by every component; Close releases the pool.
type Client struct {
	rdb    *redis.Client
	logger Logger
}

// Logger is the minimal logging surface Client needs; *slog.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
}

// New wraps an already-connected redis.Client.
func New(rdb *redis.Client, logger Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get reads a key and JSON-decodes it into dst. Returns ErrNotFound if the
// key is absent. Transport errors are logged and returned unchanged so the
// caller can decide whether to swallow (cache path) or surface (source of
// truth path) the failure.
func (c *Client) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return fmt.Errorf("cache get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cache get %q: decoding value: %w", key, err)
	}
	return nil
}

// SetOptions configures Set's conditional-write behavior.
type SetOptions struct {
	TTL           time.Duration
	OnlyIfAbsent  bool // NX
	OnlyIfPresent bool // XX
}

// Set JSON-encodes value and writes it to key. Returns stored=false when a
// conditional write (OnlyIfAbsent/OnlyIfPresent) did not apply.
func (c *Client) Set(ctx context.Context, key string, value any, opts SetOptions) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache set %q: encoding value: %w", key, err)
	}

	args := &redis.SetArgs{TTL: opts.TTL}
	switch {
	case opts.OnlyIfAbsent:
		args.Mode = "NX"
	case opts.OnlyIfPresent:
		args.Mode = "XX"
	}

	res, err := c.rdb.SetArgs(ctx, key, raw, *args).Result()
	if errors.Is(err, redis.Nil) {
		// NX/XX condition not satisfied.
		return false, nil
	}
	if err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
		return false, fmt.Errorf("cache set %q: %w", key, err)
	}
	return res == "OK", nil
}

// Delete removes the given keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("cache delete failed", "keys", keys, "error", err)
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	return n, nil
}

// Exists returns how many of the given keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("cache exists failed", "keys", keys, "error", err)
		return 0, fmt.Errorf("cache exists: %w", err)
	}
	return n, nil
}

// Expire refreshes a key's TTL. Returns false if the key does not exist.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		c.logger.Error("cache expire failed", "key", key, "error", err)
		return false, fmt.Errorf("cache expire %q: %w", key, err)
	}
	return ok, nil
}

// SAdd adds members to the set at key.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		c.logger.Error("cache sadd failed", "key", key, "error", err)
		return fmt.Errorf("cache sadd %q: %w", key, err)
	}
	return nil
}

// SRem removes members from the set at key.
func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SRem(ctx, key, args...).Err(); err != nil {
		c.logger.Error("cache srem failed", "key", key, "error", err)
		return fmt.Errorf("cache srem %q: %w", key, err)
	}
	return nil
}

// SMembers returns every member of the set at key. An absent key returns an
// empty slice, not an error — callers distinguish "never populated" from
// "empty" by checking Exists separately when it matters (§4.4.2 get_active_ids).
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		c.logger.Error("cache smembers failed", "key", key, "error", err)
		return nil, fmt.Errorf("cache smembers %q: %w", key, err)
	}
	return members, nil
}

// LPush prepends values onto the list at key.
func (c *Client) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := c.rdb.LPush(ctx, key, args...).Err(); err != nil {
		c.logger.Error("cache lpush failed", "key", key, "error", err)
		return fmt.Errorf("cache lpush %q: %w", key, err)
	}
	return nil
}

// LRange returns the list elements in [start, stop] (inclusive, -1 = last).
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		c.logger.Error("cache lrange failed", "key", key, "error", err)
		return nil, fmt.Errorf("cache lrange %q: %w", key, err)
	}
	return vals, nil
}

// DeletePattern deletes every key matching glob, walking the keyspace with
// SCAN in batches rather than the blocking KEYS command.
func (c *Client) DeletePattern(ctx context.Context, glob string) (int64, error) {
	var deleted int64
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, glob, scanBatchSize).Result()
		if err != nil {
			c.logger.Error("cache scan failed", "pattern", glob, "error", err)
			return deleted, fmt.Errorf("cache delete_pattern %q: scanning: %w", glob, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Error("cache delete_pattern del failed", "pattern", glob, "error", err)
				return deleted, fmt.Errorf("cache delete_pattern %q: deleting: %w", glob, err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// KeysPattern returns every key matching glob using the same SCAN discipline
// as DeletePattern.
func (c *Client) KeysPattern(ctx context.Context, glob string) ([]string, error) {
	var out []string
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, glob, scanBatchSize).Result()
		if err != nil {
			c.logger.Error("cache scan failed", "pattern", glob, "error", err)
			return nil, fmt.Errorf("cache keys_pattern %q: %w", glob, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Pipeline runs fn against a pipeline scoped to the call. When transactional
// is true, buffered commands execute atomically (MULTI/EXEC) on exit.
func (c *Client) Pipeline(ctx context.Context, transactional bool, fn func(redis.Pipeliner) error) error {
	if transactional {
		_, err := c.rdb.TxPipelined(ctx, fn)
		if err != nil {
			c.logger.Error("cache pipeline failed", "transactional", true, "error", err)
			return fmt.Errorf("cache pipeline: %w", err)
		}
		return nil
	}

	_, err := c.rdb.Pipelined(ctx, fn)
	if err != nil {
		c.logger.Error("cache pipeline failed", "transactional", false, "error", err)
		return fmt.Errorf("cache pipeline: %w", err)
	}
	return nil
}

// Publish fires a message on channel and returns the number of subscribers
// that received it. Publication is fire-and-forget: the receiver count is
// informational only, never used for flow control.
func (c *Client) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	n, err := c.rdb.Publish(ctx, channel, message).Result()
	if err != nil {
		c.logger.Error("cache publish failed", "channel", channel, "error", err)
		return 0, fmt.Errorf("cache publish %q: %w", channel, err)
	}
	return n, nil
}

// Subscribe acquires a subscription handle for the given channels. The
// caller must Close it when done listening.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
