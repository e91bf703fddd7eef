package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// New creates an HTTP client tuned for outbound service-to-service communication.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// ErrPermanent stops Retry early when wrapped into the returned error.
var ErrPermanent = errors.New("permanent failure")

// Backoff is the doubling policy shared by outbound calls and event handlers.
// A zero maxElapsed retries until the context ends.
func Backoff(baseDelay, maxDelay, maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return b
}

// Retry executes fn up to attempts times with exponential backoff capped at maxDelay.
func Retry(ctx context.Context, attempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if attempts <= 1 {
		return fn()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(Backoff(baseDelay, maxDelay, 0), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn()
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// IsRetriable determines if the error is worth retrying.
func IsRetriable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
