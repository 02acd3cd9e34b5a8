package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultDedupTTL is how long a delivered id is remembered.
	DefaultDedupTTL = 24 * time.Hour
	// pendingTTL bounds how long a claim survives a request that died mid-enqueue.
	pendingTTL = 2 * time.Minute

	dedupKeyPrefix = "inbound:webhook:seen:"

	claimValuePending = "pending"
	claimValueDone    = "done"
)

// ClaimState is the outcome of claiming a delivery id.
type ClaimState int

const (
	// ClaimNew means the caller owns the delivery and must Complete or Release it.
	ClaimNew ClaimState = iota
	// ClaimPending means another request holds the delivery and has not enqueued it yet.
	ClaimPending
	// ClaimDone means the delivery was already enqueued.
	ClaimDone
)

// DeliveryFilter suppresses repeated deliveries of the same webhook message.
// A delivery is only recorded as done after its task was enqueued.
type DeliveryFilter interface {
	Claim(ctx context.Context, deliveryID string) (ClaimState, error)
	// Complete records a claimed delivery as enqueued.
	Complete(ctx context.Context, deliveryID string) error
	// Release drops a claim so a retry of the delivery is processed.
	Release(ctx context.Context, deliveryID string) error
}

type redisSetter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeliveryFilter keeps one key per delivery id: SETNX "pending" on claim,
// overwritten with "done" and the full TTL once the task is enqueued.
type RedisDeliveryFilter struct {
	rdb redisSetter
	ttl time.Duration
}

// NewRedisDeliveryFilter creates a filter backed by Redis. ttl <= 0 uses DefaultDedupTTL.
func NewRedisDeliveryFilter(rdb *redis.Client, ttl time.Duration) *RedisDeliveryFilter {
	return newRedisFilter(rdb, ttl)
}

func newRedisFilter(rdb redisSetter, ttl time.Duration) *RedisDeliveryFilter {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeliveryFilter{rdb: rdb, ttl: ttl}
}

// Claim implements DeliveryFilter.
func (f *RedisDeliveryFilter) Claim(ctx context.Context, deliveryID string) (ClaimState, error) {
	key := dedupKeyPrefix + deliveryID
	set, err := f.rdb.SetNX(ctx, key, claimValuePending, pendingTTL).Result()
	if err != nil {
		return ClaimPending, fmt.Errorf("dedup SETNX: %w", err)
	}
	if set {
		return ClaimNew, nil
	}

	val, err := f.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired between SETNX and GET; let the sender retry.
		return ClaimPending, nil
	case err != nil:
		return ClaimPending, fmt.Errorf("dedup GET: %w", err)
	case val == claimValueDone:
		return ClaimDone, nil
	default:
		return ClaimPending, nil
	}
}

// Complete implements DeliveryFilter.
func (f *RedisDeliveryFilter) Complete(ctx context.Context, deliveryID string) error {
	if err := f.rdb.Set(ctx, dedupKeyPrefix+deliveryID, claimValueDone, f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}

// Release implements DeliveryFilter.
func (f *RedisDeliveryFilter) Release(ctx context.Context, deliveryID string) error {
	if err := f.rdb.Del(ctx, dedupKeyPrefix+deliveryID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

var _ DeliveryFilter = (*RedisDeliveryFilter)(nil)
