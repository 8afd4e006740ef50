package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
}

// ValkeyClient backs the checkout guard and the webhook ledger with a shared
// Valkey/Redis instance so every API replica sees the same entries.
type ValkeyClient struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewValkeyClient(cfg RedisConfig, ttl time.Duration) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return NewValkeyClientFromRedis(rdb, cfg.Prefix, ttl), nil
}

func NewValkeyClientFromRedis(rdb *redis.Client, prefix string, ttl time.Duration) *ValkeyClient {
	if prefix == "" {
		prefix = "taquilla"
	}
	return &ValkeyClient{client: rdb, prefix: prefix, ttl: ttl}
}

func (v *ValkeyClient) key(namespace, id string) string {
	return v.prefix + ":" + namespace + ":" + id
}

// Guard returns the checkout guard view of the client.
func (v *ValkeyClient) Guard() *RedisGuard { return &RedisGuard{v: v} }

// Ledger returns the processed webhook events view of the client.
func (v *ValkeyClient) Ledger() *RedisLedger { return &RedisLedger{v: v} }

func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}

type RedisGuard struct {
	v *ValkeyClient
}

func (g *RedisGuard) Reserve(ctx context.Context, fingerprint string) (string, bool, error) {
	intentID, err := g.v.client.Get(ctx, g.v.key("checkout", fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("guard lookup error: %w", err)
	}
	return intentID, true, nil
}

func (g *RedisGuard) Record(ctx context.Context, fingerprint, intentID string) error {
	if err := g.v.client.Set(ctx, g.v.key("checkout", fingerprint), intentID, g.v.ttl).Err(); err != nil {
		return fmt.Errorf("guard record error: %w", err)
	}
	return nil
}

func (g *RedisGuard) Forget(ctx context.Context, fingerprint string) error {
	return g.v.client.Del(ctx, g.v.key("checkout", fingerprint)).Err()
}

type RedisLedger struct {
	v *ValkeyClient
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.v.client.Exists(ctx, l.v.key("webhook", eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup error: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, eventID string) error {
	if err := l.v.client.Set(ctx, l.v.key("webhook", eventID), time.Now().Unix(), l.v.ttl).Err(); err != nil {
		return fmt.Errorf("ledger record error: %w", err)
	}
	return nil
}
