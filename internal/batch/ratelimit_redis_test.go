package batch

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, context.Context) {
	t.Helper()
	addr := os.Getenv("CERTD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CERTD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	name := "test-" + time.Now().Format("150405.000000000")
	l := NewRedisLimiter(rdb, name, limit, window)
	t.Cleanup(func() { rdb.Del(ctx, l.key) })
	return l, ctx
}

func TestRedisLimiter(t *testing.T) {
	l, ctx := newTestRedisLimiter(t, 2, 2*time.Second)

	now := time.Now()
	r1, err := l.Reserve(ctx, now)
	if err != nil || r1.Quota.Remaining != 1 {
		t.Fatalf("reserve 1: %+v err %v", r1, err)
	}
	if _, err := l.Reserve(ctx, now); err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	r3, err := l.Reserve(ctx, now)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("reserve 3: %v", err)
	}
	if !r3.Quota.Exhausted() || !r3.Quota.ResetAt.After(now) {
		t.Fatalf("exhausted quota %+v", r3.Quota)
	}

	if err := l.Release(ctx, r1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Reserve(ctx, now); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestRedisLimiterRollingWindow(t *testing.T) {
	l, ctx := newTestRedisLimiter(t, 2, time.Second)

	// two at the end of one window must still block the start of the next
	base := time.Now()
	if _, err := l.Reserve(ctx, base.Add(900*time.Millisecond)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, base.Add(950*time.Millisecond)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, base.Add(1100*time.Millisecond)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("reserve across boundary: %v", err)
	}
	if _, err := l.Reserve(ctx, base.Add(1901*time.Millisecond)); err != nil {
		t.Fatalf("reserve after window: %v", err)
	}
}

func TestRedisLimiterConcurrentReserve(t *testing.T) {
	l, ctx := newTestRedisLimiter(t, 3, time.Minute)

	now := time.Now()
	var taken atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, now); err == nil {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := taken.Load(); n != 3 {
		t.Fatalf("%d reservations granted, want 3", n)
	}
}
