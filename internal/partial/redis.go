package partial

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps artifacts as plain string keys with a TTL, so workers on
// different hosts can share one partial store. Retention is the key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(runID string, batchIndex int) string {
	return "partial:" + runID + ":" + artifactName(batchIndex)
}

func (s *RedisStore) Put(ctx context.Context, a Artifact) error {
	if err := checkRunID(a.RunID); err != nil {
		return err
	}
	data, err := a.Encode()
	if err != nil {
		return err
	}

	key := redisKey(a.RunID, a.BatchIndex)
	ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWritten, key)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, runID string) ([]Raw, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	prefix := "partial:" + runID + ":"
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN %s*: %w", prefix, err)
	}
	sort.Strings(keys)

	out := make([]Raw, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("redis GET %s: %w", key, err)
		}
		name := strings.TrimPrefix(key, prefix)
		out = append(out, Raw{Name: name, BatchIndex: parseArtifactName(name), Data: data})
	}
	return out, nil
}

// Purge is a no-op: Redis expires artifacts on its own.
func (s *RedisStore) Purge(context.Context, time.Duration) (int, error) {
	return 0, nil
}
