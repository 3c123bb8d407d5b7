package objstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryPolicy bounds how transient store faults are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// BreakerThreshold is the number of consecutive unavailable responses
	// after which every further call fails fast. Zero disables the breaker.
	BreakerThreshold uint32
	// BreakerTimeout is how long the breaker stays open before it lets
	// trial calls through. Zero means 30s.
	BreakerTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while the
	// breaker is half-open. It should match the number of concurrent callers.
	HalfOpenRequests uint32
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      5,
		BaseDelay:        200 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		BreakerThreshold: 20,
	}
}

// Retrier runs store calls with exponential backoff. Only errors of kind
// ErrStoreUnavailable are retried.
type Retrier struct {
	policy  RetryPolicy
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
	onRetry func(op string)
}

type RetrierOption func(*Retrier)

// WithRetryHook registers fn to be called before every retry.
func WithRetryHook(fn func(op string)) RetrierOption {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

func NewRetrier(policy RetryPolicy, log *zap.SugaredLogger, opts ...RetrierOption) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}

	r := &Retrier{policy: policy, log: log}
	for _, opt := range opts {
		opt(r)
	}

	if policy.BreakerTimeout <= 0 {
		policy.BreakerTimeout = 30 * time.Second
	}
	if policy.HalfOpenRequests < 1 {
		policy.HalfOpenRequests = 1
	}
	r.policy = policy

	if policy.BreakerThreshold > 0 {
		threshold := policy.BreakerThreshold
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "objstore",
			MaxRequests: policy.HalfOpenRequests,
			Timeout:     policy.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrStoreUnavailable)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("store circuit breaker changed state", "from", from.String(), "to", to.String())
			},
		})
	}
	return r
}

func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempt budget is spent or ctx is done.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.MaxInterval = r.policy.MaxDelay
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := r.call(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return backoff.Permanent(NewError(op, "", "", ErrStoreUnavailable, err))
		}
		// Half-open with its trial calls in flight: wait for their outcome.
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return NewError(op, "", "", ErrStoreUnavailable, err)
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.log.Warnw("retrying store call", "op", op, "attempt", attempt, "wait", wait, "error", err)
		if r.onRetry != nil {
			r.onRetry(op)
		}
	}

	return backoff.RetryNotify(operation, policy, notify)
}

func (r *Retrier) call(ctx context.Context, fn func(context.Context) error) error {
	if r.breaker == nil {
		return fn(ctx)
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
