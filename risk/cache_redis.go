package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// putIfNewerScript stores an aggregate only if no entry with a higher
// version is present, atomically in Redis.
// KEYS[1] = entry key (hash with "version" and "data" fields)
// ARGV[1] = version of the incoming entry
// ARGV[2] = JSON-encoded AggregateResult
// ARGV[3] = TTL in seconds (0 = no expiry)
var putIfNewerScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("HGET", key, "version"))
if current and current > version then
    return 0
end

redis.call("HSET", key, "version", version, "data", ARGV[2])
if ttl > 0 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`)

// RedisCacheStore implements CacheStore on a shared Redis instance, for
// deployments where several engine processes serve the same trees. Redis
// serializes commands per key, which provides the read-your-writes ordering
// the manager needs between Delete and Get.
type RedisCacheStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheStore creates a store backed by the Redis server at addr.
// A zero ttl keeps entries until invalidation.
func NewRedisCacheStore(addr, password string, db int, ttl time.Duration) *RedisCacheStore {
	return &RedisCacheStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "risksim:agg",
		ttl:    ttl,
	}
}

// Ping verifies connectivity; callers should check it at startup.
func (s *RedisCacheStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}

func (s *RedisCacheStore) key(treeID TreeID, nodeID NodeID) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, treeID, nodeID)
}

// Get implements CacheStore.
func (s *RedisCacheStore) Get(ctx context.Context, treeID TreeID, nodeID NodeID) (*AggregateResult, bool, error) {
	data, err := s.client.HGet(ctx, s.key(treeID, nodeID), "data").Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var res AggregateResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decoding cached aggregate: %w", err)
	}
	return &res, true, nil
}

// Put implements CacheStore; the version comparison runs atomically in Redis.
func (s *RedisCacheStore) Put(ctx context.Context, res *AggregateResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding aggregate: %w", err)
	}
	ttlSecs := int64(s.ttl / time.Second)
	err = putIfNewerScript.Run(ctx, s.client,
		[]string{s.key(res.TreeID, res.NodeID)},
		res.Version, data, ttlSecs,
	).Err()
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Delete implements CacheStore.
func (s *RedisCacheStore) Delete(ctx context.Context, treeID TreeID, nodeID NodeID) (bool, error) {
	n, err := s.client.Del(ctx, s.key(treeID, nodeID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete: %w", err)
	}
	return n > 0, nil
}
