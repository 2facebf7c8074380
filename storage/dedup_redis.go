package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "dedup:"

// RedisDedupWindow is a DedupWindow backed by Redis. Expiry is handled by
// Redis TTLs, and the window survives process restarts, which preserves
// intake idempotency across deployments. Key shape: "dedup:<event_id>" ->
// ack id.
type RedisDedupWindow struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisDedupWindow creates a Redis-backed dedup window.
func NewRedisDedupWindow(addr, password string, db int, ttl time.Duration, logger *zap.SugaredLogger) *RedisDedupWindow {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDedupWindow{client: client, ttl: ttl, logger: logger}
}

// NewRedisDedupWindowFromClient wraps an existing client, used in tests.
func NewRedisDedupWindowFromClient(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisDedupWindow {
	return &RedisDedupWindow{client: client, ttl: ttl, logger: logger}
}

// Ping tests the Redis connection.
func (w *RedisDedupWindow) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (w *RedisDedupWindow) Close() error {
	return w.client.Close()
}

// Check looks up the event id in Redis.
func (w *RedisDedupWindow) Check(ctx context.Context, eventID string) (string, bool, error) {
	ackID, err := w.client.Get(ctx, dedupKeyPrefix+eventID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return ackID, true, nil
}

// Remember records the event id with the window TTL. SetNX keeps the
// first-seen ack id if two submissions race; the loser reads the winning ack
// id back so its caller can return the original receipt.
func (w *RedisDedupWindow) Remember(ctx context.Context, eventID, ackID string) (string, bool, error) {
	key := dedupKeyPrefix + eventID
	ok, err := w.client.SetNX(ctx, key, ackID, w.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("dedup store failed: %w", err)
	}
	if ok {
		return ackID, false, nil
	}

	w.logger.Debugw("Dedup entry already present", "event_id", eventID)
	winner, err := w.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// The entry expired between the two calls; the id counts as fresh.
		return ackID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return winner, true, nil
}
