package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisLocker(t *testing.T, ttl, wait time.Duration) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisLocker(client, ttl, wait)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "chartreview:lock:patient:p-17", lockKey("p-17"))
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	mr, locker := newMiniredisLocker(t, time.Minute, 50*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, release)

	assert.True(t, mr.Exists(lockKey("p1")))
	assert.Equal(t, time.Minute, mr.TTL(lockKey("p1")))

	release()
	assert.False(t, mr.Exists(lockKey("p1")))
}

func TestRedisLockerContention(t *testing.T) {
	_, locker := newMiniredisLocker(t, time.Minute, 50*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "p1")
	assert.ErrorIs(t, err, ErrPatientLocked)

	other, err := locker.Acquire(ctx, "p2")
	require.NoError(t, err)
	other()

	release()

	again, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerConcurrentAcquire(t *testing.T) {
	_, locker := newMiniredisLocker(t, time.Minute, 30*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	defer release()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		locked int
		other  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := locker.Acquire(ctx, "p1")
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrPatientLocked) {
				locked++
			} else {
				other++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, locked)
	assert.Equal(t, 0, other)
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	_, locker := newMiniredisLocker(t, time.Minute, time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	time.AfterFunc(60*time.Millisecond, release)

	next, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	next()
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, locker := newMiniredisLocker(t, time.Minute, 50*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "p1")
	require.NoError(t, err)

	// Our TTL lapsed and another session took the patient over.
	require.NoError(t, mr.Set(lockKey("p1"), "other-session"))

	release()

	got, err := mr.Get(lockKey("p1"))
	require.NoError(t, err)
	assert.Equal(t, "other-session", got)
}

func TestRedisLockerExpiredLockIsReclaimed(t *testing.T) {
	mr, locker := newMiniredisLocker(t, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	release()
}

func TestRedisLockerCancelledContext(t *testing.T) {
	_, locker := newMiniredisLocker(t, time.Minute, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	release, err := locker.Acquire(ctx, "p1")
	require.NoError(t, err)
	defer release()

	cancel()
	_, err = locker.Acquire(ctx, "p1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLockerUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	defer client.Close()

	locker := NewRedisLocker(client, time.Minute, 100*time.Millisecond)
	release, err := locker.Acquire(context.Background(), "p1")
	require.Error(t, err)
	assert.Nil(t, release)
	assert.NotErrorIs(t, err, ErrPatientLocked)
}
