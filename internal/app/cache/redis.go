package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a SessionCache backed by a Redis hash per session plus a per-user
// set of live session ids. Writes are pipelined and best-effort; a crash
// mid-write leaves at worst a partial record that the next unlock replaces
// wholesale and the TTL bounds regardless.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SessionCache = (*Redis)(nil)

// NewRedis creates a Redis cache whose reads slide expiry forward by ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string { return "vault:session:" + sessionID }
func userKey(userID string) string       { return "vault:user:" + userID + ":sessions" }

func (r *Redis) Put(ctx context.Context, userID, sessionID string, entries map[string]Entry, ttl time.Duration) error {
	key := sessionKey(sessionID)

	if len(entries) == 0 {
		pipe := r.client.Pipeline()
		pipe.Del(ctx, key)
		pipe.SRem(ctx, userKey(userID), sessionID)
		_, err := pipe.Exec(ctx)
		return err
	}

	fields := make(map[string]interface{}, len(entries))
	for name, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache entry %s: %w", name, err)
		}
		fields[name] = raw
	}

	pipe := r.client.Pipeline()
	// Full replace: del then hset so providers removed by an update do not
	// linger as stale fields.
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey(userID), sessionID)
	pipe.Expire(ctx, userKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Get(ctx context.Context, sessionID, providerLowercaseName string) (Entry, error) {
	key := sessionKey(sessionID)

	raw, err := r.client.HGet(ctx, key, providerLowercaseName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrCacheMiss
		}
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}

	// Sliding expiration: each hit extends the whole record.
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *Redis) Invalidate(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, sessionKey(sessionID)).Err()
}

func (r *Redis) InvalidateUser(ctx context.Context, userID string) error {
	sessions, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	for _, sessionID := range sessions {
		pipe.Del(ctx, sessionKey(sessionID))
	}
	pipe.Del(ctx, userKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
