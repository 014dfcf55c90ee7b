package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the key-value contract the auth components are built on:
// get/set with TTL, delete, TTL inspection, and two atomic increment
// primitives. The Redis-backed Cache is the production implementation;
// tests inject the in-memory store.
type Store interface {
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, namespace, key string) (string, error)
	Delete(ctx context.Context, namespace string, keys ...string) error
	GetTTL(ctx context.Context, namespace, key string) (time.Duration, error)
	IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error)
	IncrUnderCap(ctx context.Context, namespace, key, mirrorKey string, max int64) (int64, bool, error)
	DeleteIfEquals(ctx context.Context, namespace, key, expected string, extraKeys ...string) (bool, error)
}

type Cache struct {
	client redis.UniversalClient // works with both single and cluster
}

func NewCache(addrs []string, password string, useCluster bool) *Cache {
	var rdb redis.UniversalClient

	if useCluster && len(addrs) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addrs[0],
			Password: password,
			DB:       0,
		})
	}

	return &Cache{client: rdb}
}

func NewCacheWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	return c.client.Set(ctx, namespace+":"+key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, namespace, key string) (string, error) {
	val, err := c.client.Get(ctx, namespace+":"+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return val, err
}

func (c *Cache) Delete(ctx context.Context, namespace string, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = namespace + ":" + k
	}
	return c.client.Del(ctx, full...).Err()
}

func (c *Cache) GetTTL(ctx context.Context, namespace, key string) (time.Duration, error) {
	return c.client.TTL(ctx, namespace+":"+key).Result()
}

// IncrWithExpire increments the counter and starts its window on the
// increment that creates the key. The INCR itself is atomic, so two
// concurrent callers can never both observe the same count.
func (c *Cache) IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error) {
	countKey := namespace + ":" + key

	cnt, err := c.client.Incr(ctx, countKey).Result()
	if err != nil {
		return 0, err
	}

	// If it's the first time the key is incremented, set its TTL
	if cnt == 1 {
		_ = c.client.Expire(ctx, countKey, window).Err()
	}

	return cnt, nil
}

// incrUnderCapScript checks the cap and increments in one server-side
// step, so two concurrent callers cannot both slip past the cap. The
// counter's TTL is pinned to the mirror key's remaining TTL; a missing
// mirror means there is nothing left to count against, so the increment
// is skipped rather than leaving an unexpiring counter behind.
var incrUnderCapScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local max = tonumber(ARGV[1])

if count >= max then
	return {count, 0}
end

local ttl = redis.call("PTTL", KEYS[2])
if ttl == -2 then
	return {count, 0}
end

count = redis.call("INCR", KEYS[1])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end

return {count, 1}
`)

// IncrUnderCap atomically increments namespace:key unless the counter
// already reached max. It reports the stored count and whether the
// increment was applied.
func (c *Cache) IncrUnderCap(ctx context.Context, namespace, key, mirrorKey string, max int64) (int64, bool, error) {
	vals, err := incrUnderCapScript.Run(
		ctx,
		c.client,
		[]string{namespace + ":" + key, namespace + ":" + mirrorKey},
		max,
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(vals) != 2 {
		return 0, false, errors.New("cache: unexpected script reply")
	}
	return vals[0], vals[1] == 1, nil
}

// deleteIfEqualsScript compares and deletes in one server-side step, so
// two callers racing on the same value cannot both observe a match.
var deleteIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	for i = 1, #KEYS do
		redis.call("DEL", KEYS[i])
	end
	return 1
end
return 0
`)

// DeleteIfEquals atomically deletes namespace:key (and any extraKeys)
// when the stored value equals expected. It reports whether the match
// fired; a missing key is simply no match.
func (c *Cache) DeleteIfEquals(ctx context.Context, namespace, key, expected string, extraKeys ...string) (bool, error) {
	keys := make([]string, 0, 1+len(extraKeys))
	keys = append(keys, namespace+":"+key)
	for _, k := range extraKeys {
		keys = append(keys, namespace+":"+k)
	}

	n, err := deleteIfEqualsScript.Run(ctx, c.client, keys, expected).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
