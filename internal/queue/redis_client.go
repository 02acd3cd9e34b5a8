package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisQueue = "attachments"
	redisBlockTimeout = 5 * time.Second
	processingSuffix  = ":processing:"
	deadSuffix        = ":dead"
	attemptsSuffix    = ":attempts"
)

type redisAPI interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// RedisOptions configures the Redis list backend.
type RedisOptions struct {
	Queue      string
	ConsumerID string
}

// RedisQueue is a reliable list queue: producers LPUSH onto the queue, consumers
// atomically move each item into a per-consumer processing list and LREM it on ack.
// Items left in a processing list by a crashed consumer are returned by Recover.
// Receive counts are kept per task id in the <queue>:attempts hash; DeadLetter parks
// a delivery on <queue>:dead.
type RedisQueue struct {
	rdb        redisAPI
	queue      string
	processing string
	dead       string
	attempts   string
}

// NewRedisQueue constructs a Redis-backed queue client and consumer.
func NewRedisQueue(rdb *redis.Client, opts RedisOptions) *RedisQueue {
	return newRedisWithClient(rdb, opts)
}

func newRedisWithClient(rdb redisAPI, opts RedisOptions) *RedisQueue {
	name := strings.TrimSpace(opts.Queue)
	if name == "" {
		name = defaultRedisQueue
	}
	consumer := strings.TrimSpace(opts.ConsumerID)
	if consumer == "" {
		consumer = "default"
	}
	return &RedisQueue{
		rdb:        rdb,
		queue:      name,
		processing: name + processingSuffix + consumer,
		dead:       name + deadSuffix,
		attempts:   name + attemptsSuffix,
	}
}

// Enqueue pushes a task onto the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, name string, args ...any) (TaskHandle, error) {
	task, payload, err := newTask(ctx, name, args)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("encode redis task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.queue, payload).Err(); err != nil {
		return TaskHandle{}, fmt.Errorf("redis LPUSH %s: %w", q.queue, err)
	}
	return TaskHandle{ID: task.ID}, nil
}

// Receive blocks for up to a few seconds waiting for one delivery.
func (q *RedisQueue) Receive(ctx context.Context) ([]Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", redisBlockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BLMOVE %s: %w", q.queue, err)
	}
	return []Delivery{q.delivery(ctx, raw)}, nil
}

// Ack removes the delivery from this consumer's processing list and forgets its attempts.
func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, d.receipt).Err(); err != nil {
		return fmt.Errorf("redis LREM %s: %w", q.processing, err)
	}
	q.forget(ctx, d)
	return nil
}

// DeadLetter pushes the delivery onto <queue>:dead and drops it from the processing list.
func (q *RedisQueue) DeadLetter(ctx context.Context, d Delivery) error {
	if err := q.rdb.LPush(ctx, q.dead, d.receipt).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s: %w", q.dead, err)
	}
	if err := q.rdb.LRem(ctx, q.processing, 1, d.receipt).Err(); err != nil {
		return fmt.Errorf("redis LREM %s: %w", q.processing, err)
	}
	q.forget(ctx, d)
	return nil
}

// Release pushes a failed delivery back onto the queue tail and drops it from the
// processing list. A crash between the two steps leaves a duplicate, never a loss.
func (q *RedisQueue) Release(ctx context.Context, d Delivery) error {
	if err := q.rdb.LPush(ctx, q.queue, d.receipt).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s: %w", q.queue, err)
	}
	if err := q.rdb.LRem(ctx, q.processing, 1, d.receipt).Err(); err != nil {
		return fmt.Errorf("redis LREM %s: %w", q.processing, err)
	}
	return nil
}

// Recover moves every item left in this consumer's processing list back onto the queue
// so it is redelivered. Call it at startup before the first Receive.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis LMOVE %s: %w", q.processing, err)
		}
		moved++
	}
}

// delivery bumps the attempt counter for the task. A body without a task id, or a failed
// HINCRBY, is reported as a first attempt.
func (q *RedisQueue) delivery(ctx context.Context, raw string) Delivery {
	d := Delivery{Body: []byte(raw), ReceiveCount: 1, receipt: raw}
	task, err := DecodeTask(d.Body)
	if err != nil || task.ID == "" {
		return d
	}
	d.ID = task.ID
	if n, err := q.rdb.HIncrBy(ctx, q.attempts, task.ID, 1).Result(); err == nil {
		d.ReceiveCount = int(n)
	}
	return d
}

// forget drops the attempt counter; a leftover field only inflates a later count.
func (q *RedisQueue) forget(ctx context.Context, d Delivery) {
	if d.ID == "" {
		return
	}
	_ = q.rdb.HDel(ctx, q.attempts, d.ID).Err()
}

var (
	_ Client       = (*RedisQueue)(nil)
	_ Consumer     = (*RedisQueue)(nil)
	_ Releaser     = (*RedisQueue)(nil)
	_ DeadLetterer = (*RedisQueue)(nil)
)
