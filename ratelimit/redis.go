package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps windows in Redis hashes so counters survive instance
// churn. Windows are bucketed on epoch boundaries; the hash expires a
// little after the window ends.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "rl:"}
}

// ConnectRedis initializes a client from URL or host:port input.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func (s *RedisStore) bucketKey(key string, now time.Time, window time.Duration) (string, time.Time) {
	secs := int64(window.Seconds())
	bucket := now.Unix() / secs
	return s.prefix + key + ":" + strconv.FormatInt(bucket, 10), time.Unix(bucket*secs, 0)
}

func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration) (State, error) {
	redisKey, windowStart := s.bucketKey(key, now, window)

	count, err := s.client.HIncrBy(ctx, redisKey, "count", 1).Result()
	if err != nil {
		return State{}, err
	}
	if count == 1 {
		// First hit in this bucket: set TTL with a small buffer so the
		// hash never outlives its window by much.
		_ = s.client.Expire(ctx, redisKey, window+10*time.Second).Err()
	}

	tripped := false
	if raw, err := s.client.HGet(ctx, redisKey, "tripped").Result(); err == nil && raw == "1" {
		tripped = true
	}
	return State{Count: count, WindowStart: windowStart, Tripped: tripped}, nil
}

func (s *RedisStore) Trip(ctx context.Context, key string, now time.Time, window time.Duration) error {
	redisKey, _ := s.bucketKey(key, now, window)
	return s.client.HSet(ctx, redisKey, "tripped", "1").Err()
}
