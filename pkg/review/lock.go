package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
)

var ErrPatientLocked = errors.New("patient is locked by another session")

// Locker grants exclusive access to one patient's adjudication state.
// The returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, patientID string) (func(), error)
}

const lockPollDelay = 25 * time.Millisecond

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot drop a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func lockKey(patientID string) string {
	return "chartreview:lock:patient:" + patientID
}

func (l *RedisLocker) Acquire(ctx context.Context, patientID string) (func(), error) {
	key := lockKey(patientID)
	token := uuid.NewString()
	started := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	var lastErr error
	poll := backoff.WithContext(backoff.NewConstantBackOff(lockPollDelay), waitCtx)
	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() == nil {
				lastErr = err
			}
			return err
		}
		if !ok {
			lastErr = ErrPatientLocked
			return ErrPatientLocked
		}
		return nil
	}, poll)
	metrics.ObserveLockWait(time.Since(started).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErr != nil && !errors.Is(lastErr, ErrPatientLocked) {
			return nil, fmt.Errorf("acquire lock for patient %s: %w", patientID, lastErr)
		}
		return nil, ErrPatientLocked
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			logger.WithPatient(patientID).WithError(err).Warn("failed to release patient lock")
		}
	}
	return release, nil
}
