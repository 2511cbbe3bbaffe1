package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockpilot/internal/port"
)

const (
	tabKeyPrefix  = "tab:"
	DefaultTabTTL = 12 * time.Hour
)

// RedisSessionStorage keeps one tab's session storage in a single hash,
// tab:<id>. Every write refreshes the hash TTL, so all of the tab's keys,
// the redirect lock included, live and expire together.
type RedisSessionStorage struct {
	client *redis.Client
	tabID  string
	ttl    time.Duration
}

func NewRedisSessionStorage(client *redis.Client, tabID string, ttl time.Duration) *RedisSessionStorage {
	if ttl <= 0 {
		ttl = DefaultTabTTL
	}
	return &RedisSessionStorage{client: client, tabID: tabID, ttl: ttl}
}

func (r *RedisSessionStorage) key() string {
	return tabKeyPrefix + r.tabID
}

func (r *RedisSessionStorage) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key(), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisSessionStorage) Set(ctx context.Context, field, value string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(), field, value)
		pipe.Expire(ctx, r.key(), r.ttl)
		return nil
	})
	return err
}

func (r *RedisSessionStorage) SetIfAbsent(ctx context.Context, field, value string) (bool, error) {
	var set *redis.BoolCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.HSetNX(ctx, r.key(), field, value)
		pipe.Expire(ctx, r.key(), r.ttl)
		return nil
	})
	if err != nil {
		return false, err
	}

	return set.Val(), nil
}

// RedisTabs hands out a RedisSessionStorage per tab id over one client.
type RedisTabs struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTabs(client *redis.Client, ttl time.Duration) *RedisTabs {
	return &RedisTabs{client: client, ttl: ttl}
}

func (t *RedisTabs) ForTab(tabID string) port.SessionStorage {
	return NewRedisSessionStorage(t.client, tabID, t.ttl)
}
