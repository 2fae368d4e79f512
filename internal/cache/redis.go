package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/searchandising/internal/filter"
)

const redisKeyPrefix = "searchrule:"

// RedisTier stores compiled queries in Redis. Each tag is a set of the keys
// carrying it, so invalidation touches only the affected entries.
type RedisTier struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisTier creates a Redis tier. A zero ttl keeps entries until invalidated.
func NewRedisTier(client redis.Cmdable, ttl time.Duration) *RedisTier {
	return &RedisTier{client: client, ttl: ttl}
}

func queryKey(key string) string { return redisKeyPrefix + "q:" + key }

func tagKey(tag string) string { return redisKeyPrefix + "tag:" + tag }

// Get reads one compiled query.
func (t *RedisTier) Get(ctx context.Context, key string) (filter.Compiled, bool, error) {
	data, err := t.client.Get(ctx, queryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return filter.Compiled{}, false, nil
	}
	if err != nil {
		return filter.Compiled{}, false, fmt.Errorf("get cached query: %w", err)
	}

	var value filter.Compiled
	if err := json.Unmarshal(data, &value); err != nil {
		return filter.Compiled{}, false, fmt.Errorf("decode cached query: %w", err)
	}
	return value, true, nil
}

// Set writes one compiled query and registers it under its tags.
func (t *RedisTier) Set(ctx context.Context, key string, value filter.Compiled, tags []string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached query: %w", err)
	}

	qk := queryKey(key)
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, qk, data, t.ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagKey(tag), qk)
			if t.ttl > 0 {
				pipe.Expire(ctx, tagKey(tag), t.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set cached query: %w", err)
	}
	return nil
}

// InvalidateTags deletes every query registered under tags, and the tag sets.
func (t *RedisTier) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tk := tagKey(tag)
		keys, err := t.client.SMembers(ctx, tk).Result()
		if err != nil {
			return fmt.Errorf("read tag %s: %w", tag, err)
		}
		if err := t.client.Del(ctx, append(keys, tk)...).Err(); err != nil {
			return fmt.Errorf("delete tag %s: %w", tag, err)
		}
	}
	return nil
}
