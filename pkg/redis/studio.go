package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const namespace = "studio"

// releaseScript deletes the key only while it still holds the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Key joins non-empty parts under the studio namespace.
func Key(parts ...string) string {
	out := []string{namespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}

// LoadReplay returns a stored response for an idempotency key.
func (c *Client) LoadReplay(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.store.Get(ctx, Key("replay", key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// SaveReplay stores a response unless another request already stored one.
func (c *Client) SaveReplay(ctx context.Context, key string, payload []byte, ttl time.Duration) (bool, error) {
	return c.store.SetNX(ctx, Key("replay", key), string(payload), ttl).Result()
}

// FixedWindowAllow counts a hit for scope and reports whether it is within
// limit for the current window. Windows start at the first hit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	key := Key("rate_limit", scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	// ExpireNX leaves a running window alone and repairs a key that lost its TTL.
	if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
		return false, count, err
	}
	return count <= limit, count, nil
}

// Claim takes key for owner until ttl elapses. It returns false when someone
// else holds it.
func (c *Client) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.store.SetNX(ctx, Key(key), owner, ttl).Result()
}

// Release frees key if owner still holds it and reports whether it did.
func (c *Client) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := c.store.Eval(ctx, releaseScript, []string{Key(key)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
