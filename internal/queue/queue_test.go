package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cesargomez89/etude/internal/domain"
)

func TestMemoryQueueRoutesByStage(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	if err := Submit(ctx, q, domain.StageFingering, "job-1"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if q.Len(domain.StageFingering) != 1 || q.Len(domain.StageOMR) != 0 {
		t.Fatalf("task landed on the wrong queue")
	}

	d, err := q.Dequeue(ctx, domain.StageOMR, 10*time.Millisecond)
	if err != nil || d != nil {
		t.Fatalf("expected empty omr queue, got %v %v", d, err)
	}

	d, err = q.Dequeue(ctx, domain.StageFingering, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if d.JobID != "job-1" || d.Stage != domain.StageFingering || d.ID == "" {
		t.Errorf("unexpected task: %+v", d.Task)
	}
	if err := q.Ack(ctx, d); err != nil {
		t.Errorf("Ack failed: %v", err)
	}
}

func TestMemoryQueueUnknownStage(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	if err := q.Enqueue(context.Background(), domain.Stage("mixing"), Task{}); err == nil {
		t.Error("expected error for unknown queue")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue()
	q.Close()
	q.Close()

	if err := Submit(context.Background(), q, domain.StageOMR, "j"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on enqueue, got %v", err)
	}
	if _, err := q.Dequeue(context.Background(), domain.StageOMR, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on dequeue, got %v", err)
	}
	if err := q.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail after close")
	}
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx, domain.StageOMR, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewTaskIDsAreUnique(t *testing.T) {
	a := NewTask(domain.StageOMR, "j")
	b := NewTask(domain.StageOMR, "j")
	if a.ID == b.ID {
		t.Error("task ids collided")
	}
}

// Runs against a real server when TEST_REDIS_ADDR is set.
func TestRedisQueueRecover(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	q, err := NewRedisQueue(ctx, RedisOptions{Addr: addr, Consumer: "test-" + NewTask(domain.StageOMR, "").ID})
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()
	q.Client().Del(ctx, pendingKey(domain.StageOMR))

	if err := Submit(ctx, q, domain.StageOMR, "job-r"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	d, err := q.Dequeue(ctx, domain.StageOMR, time.Second)
	if err != nil || d == nil {
		t.Fatalf("Dequeue failed: %v %v", d, err)
	}

	n, err := q.Recover(ctx, domain.StageOMR)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v; want 1", n, err)
	}
	again, err := q.Dequeue(ctx, domain.StageOMR, time.Second)
	if err != nil || again == nil || again.ID != d.ID {
		t.Fatalf("expected the same task redelivered, got %v %v", again, err)
	}
	if err := q.Ack(ctx, again); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if n, _ := q.Recover(ctx, domain.StageOMR); n != 0 {
		t.Errorf("acked task was recovered")
	}
}

func TestRedisProcessingKeyFollowsConsumer(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	before := NewRedisQueueFromClient(rdb, "worker-a")
	after := NewRedisQueueFromClient(rdb, "worker-a")
	other := NewRedisQueueFromClient(rdb, "worker-b")

	if before.processingKey(domain.StageOMR) != after.processingKey(domain.StageOMR) {
		t.Error("same consumer name must map to the same processing list")
	}
	if before.processingKey(domain.StageOMR) == other.processingKey(domain.StageOMR) {
		t.Error("different consumers must not share a processing list")
	}
	if got := NewRedisQueueFromClient(rdb, "").processingKey(domain.StageRendering); got != "etude:queue:rendering:processing:default" {
		t.Errorf("processing key = %q", got)
	}
}

// Runs against a real server when TEST_REDIS_ADDR is set.
func TestRedisQueueRecoverAfterRestart(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	consumer := "restart-" + NewTask(domain.StageFingering, "").ID

	crashed, err := NewRedisQueue(ctx, RedisOptions{Addr: addr, Consumer: consumer})
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	crashed.Client().Del(ctx, pendingKey(domain.StageFingering))
	if err := Submit(ctx, crashed, domain.StageFingering, "job-crash"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	d, err := crashed.Dequeue(ctx, domain.StageFingering, time.Second)
	if err != nil || d == nil {
		t.Fatalf("Dequeue failed: %v %v", d, err)
	}
	_ = crashed.Close()

	restarted, err := NewRedisQueue(ctx, RedisOptions{Addr: addr, Consumer: consumer})
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer restarted.Close()

	n, err := restarted.Recover(ctx, domain.StageFingering)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v; want 1", n, err)
	}
	again, err := restarted.Dequeue(ctx, domain.StageFingering, time.Second)
	if err != nil || again == nil || again.ID != d.ID {
		t.Fatalf("expected the reserved task after restart, got %v %v", again, err)
	}
	_ = restarted.Ack(ctx, again)
}
