package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cesargomez89/etude/internal/domain"
)

const keyPrefix = "etude:queue:"

// RedisQueue stores each stage as a Redis list. A dequeued task moves
// atomically into the consumer's processing list and leaves it on Ack, so a
// crashed consumer's tasks can be requeued with Recover.
type RedisQueue struct {
	rdb      goredis.UniversalClient
	consumer string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Consumer string
}

func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisQueueFromClient(rdb, opts.Consumer), nil
}

func NewRedisQueueFromClient(rdb goredis.UniversalClient, consumer string) *RedisQueue {
	if consumer == "" {
		consumer = "default"
	}
	return &RedisQueue{rdb: rdb, consumer: consumer}
}

func pendingKey(stage domain.Stage) string {
	return keyPrefix + string(stage)
}

func (q *RedisQueue) processingKey(stage domain.Stage) string {
	return keyPrefix + string(stage) + ":processing:" + q.consumer
}

func (q *RedisQueue) Enqueue(ctx context.Context, stage domain.Stage, task Task) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown queue %q", stage)
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, pendingKey(stage), raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s task: %w", stage, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, stage domain.Stage, wait time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, pendingKey(stage), q.processingKey(stage), "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s task: %w", stage, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// Unreadable payloads are dropped rather than redelivered forever.
		_ = q.rdb.LRem(ctx, q.processingKey(stage), 1, raw).Err()
		return nil, fmt.Errorf("decode %s task: %w", stage, err)
	}
	if task.Stage == "" {
		task.Stage = stage
	}
	return &Delivery{Task: task, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.raw == "" {
		return nil
	}
	return q.rdb.LRem(ctx, q.processingKey(d.Stage), 1, d.raw).Err()
}

// Recover moves tasks left in this consumer's processing list back onto the
// pending list, including tasks reserved by an earlier process that ran under
// the same consumer name. It returns how many were requeued.
func (q *RedisQueue) Recover(ctx context.Context, stage domain.Stage) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processingKey(stage), pendingKey(stage), "RIGHT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover %s tasks: %w", stage, err)
		}
		n++
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Client exposes the connection so other components can share it.
func (q *RedisQueue) Client() goredis.UniversalClient {
	return q.rdb
}

func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
