// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "campaignguard:throttle:"

// extendLockScript raises locked_until to ARGV[1] when that is later than the
// stored value and stretches the key TTL to at least ARGV[2] milliseconds.
// Timestamps are decimal unix nanoseconds of equal magnitude, so a longer
// string is a later time. A key removed by a successful login in between is
// left alone.
var extendLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('HEXISTS', key, 'attempt_count') == 0 then
	return ''
end
local candidate = ARGV[1]
local current = redis.call('HGET', key, 'locked_until')
if not current then
	current = ''
end
if candidate ~= '' and (#candidate > #current or (#candidate == #current and candidate > current)) then
	redis.call('HSET', key, 'locked_until', candidate)
	current = candidate
end
local ttl = tonumber(ARGV[2])
if redis.call('PTTL', key) < ttl then
	redis.call('PEXPIRE', key, ttl)
end
return current
`)

// RedisStore keeps attempt records in Redis hashes so several service
// instances share lockout state. Records expire through key TTLs, which makes
// Sweep a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on client. ttl is how long an idle,
// unlocked record is kept.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultConfig().EntryTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, identifier string) (*Record, error) {
	data, err := s.client.HGetAll(ctx, redisKeyPrefix+identifier).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", identifier, err)
	}
	if len(data) == 0 {
		return nil, ErrRecordNotFound
	}

	record := &Record{Identifier: identifier}
	if raw, ok := data["attempt_count"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			record.AttemptCount = n
		}
	}
	record.FirstAttemptAt = parseUnixNano(data["first_attempt_at"])
	record.LastAttemptAt = parseUnixNano(data["last_attempt_at"])
	record.LockedUntil = parseUnixNano(data["locked_until"])
	return record, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	key := redisKeyPrefix + record.Identifier

	ttl := s.ttl
	if !record.LockedUntil.IsZero() {
		ttl += record.LockedUntil.Sub(record.LastAttemptAt)
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"attempt_count", record.AttemptCount,
			"first_attempt_at", formatUnixNano(record.FirstAttemptAt),
			"last_attempt_at", formatUnixNano(record.LastAttemptAt),
			"locked_until", formatUnixNano(record.LockedUntil),
		)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", record.Identifier, err)
	}
	return nil
}

// RecordFailure implements Store. The count is incremented with HINCRBY inside
// MULTI, so instances sharing the hash never lose an attempt; the lock is then
// raised by a script that only moves it forward.
func (s *RedisStore) RecordFailure(ctx context.Context, identifier string, now time.Time, lockFor func(int) time.Duration) (*Record, error) {
	key := redisKeyPrefix + identifier

	var (
		count  *redis.IntCmd
		fields *redis.SliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		count = p.HIncrBy(ctx, key, "attempt_count", 1)
		p.HSetNX(ctx, key, "first_attempt_at", formatUnixNano(now))
		p.HSet(ctx, key, "last_attempt_at", formatUnixNano(now))
		fields = p.HMGet(ctx, key, "first_attempt_at")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis record failure %s: %w", identifier, err)
	}

	record := &Record{
		Identifier:     identifier,
		AttemptCount:   int(count.Val()),
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	}
	if vals := fields.Val(); len(vals) == 1 {
		if raw, ok := vals[0].(string); ok {
			if first := parseUnixNano(raw); !first.IsZero() {
				record.FirstAttemptAt = first
			}
		}
	}

	candidate := ""
	ttl := s.ttl
	if d := lockFor(record.AttemptCount); d > 0 {
		candidate = formatUnixNano(now.Add(d))
		ttl += d
	}
	lockedUntil, err := extendLockScript.Run(ctx, s.client, []string{key}, candidate, ttl.Milliseconds()).Text()
	if err != nil {
		return nil, fmt.Errorf("redis extend lock %s: %w", identifier, err)
	}
	record.LockedUntil = parseUnixNano(lockedUntil)
	return record, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", identifier, err)
	}
	return nil
}

// Sweep implements Store. Redis expires idle records on its own.
func (s *RedisStore) Sweep(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

func formatUnixNano(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseUnixNano(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
