package objstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func unavailable() error {
	return NewError("GetObject", "b", "k", ErrStoreUnavailable, errors.New("connection reset"))
}

func TestRetrierRetriesUnavailableUntilSuccess(t *testing.T) {
	retries := 0
	r := NewRetrier(fastPolicy(5), zap.NewNop().Sugar(), WithRetryHook(func(string) { retries++ }))

	calls := 0
	err := r.Do(context.Background(), "GetObject", func(context.Context) error {
		calls++
		if calls < 3 {
			return unavailable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetrierGivesUpAfterMaxAttempts(t *testing.T) {
	r := NewRetrier(fastPolicy(3), zap.NewNop().Sugar())

	calls := 0
	err := r.Do(context.Background(), "ListObjects", func(context.Context) error {
		calls++
		return unavailable()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryPermanentKinds(t *testing.T) {
	r := NewRetrier(fastPolicy(5), zap.NewNop().Sugar())

	for _, kind := range []error{ErrAccessDenied, ErrObjectMissing} {
		calls := 0
		err := r.Do(context.Background(), "GetObject", func(context.Context) error {
			calls++
			return NewError("GetObject", "b", "k", kind, errors.New("boom"))
		})
		assert.ErrorIs(t, err, kind)
		assert.Equal(t, 1, calls, kind.Error())
	}

	calls := 0
	err := r.Do(context.Background(), "GetObject", func(context.Context) error {
		calls++
		return errors.New("unclassified")
	})
	assert.EqualError(t, err, "unclassified")
	assert.Equal(t, 1, calls)
}

func TestRetrierStopsOnCancel(t *testing.T) {
	r := NewRetrier(RetryPolicy{MaxAttempts: 100, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "UploadPart", func(context.Context) error {
		calls++
		cancel()
		return unavailable()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetrierBreakerFailsFast(t *testing.T) {
	policy := fastPolicy(10)
	policy.BreakerThreshold = 2
	r := NewRetrier(policy, zap.NewNop().Sugar())

	calls := 0
	err := r.Do(context.Background(), "UploadPart", func(context.Context) error {
		calls++
		return unavailable()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, calls)

	err = r.Do(context.Background(), "UploadPart", func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, calls)
}

func TestRetrierBreakerIgnoresPermanentErrors(t *testing.T) {
	policy := fastPolicy(1)
	policy.BreakerThreshold = 1
	r := NewRetrier(policy, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		err := r.Do(context.Background(), "GetObject", func(context.Context) error {
			return NewError("GetObject", "b", "k", ErrObjectMissing, errors.New("gone"))
		})
		assert.ErrorIs(t, err, ErrObjectMissing)
	}

	err := r.Do(context.Background(), "GetObject", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRetrierHalfOpenAdmitsConcurrentCallers(t *testing.T) {
	policy := fastPolicy(1)
	policy.BreakerThreshold = 1
	policy.BreakerTimeout = 10 * time.Millisecond
	policy.HalfOpenRequests = 2
	r := NewRetrier(policy, zap.NewNop().Sugar())

	err := r.Do(context.Background(), "UploadPart", func(context.Context) error { return unavailable() })
	require.ErrorIs(t, err, ErrStoreUnavailable)
	time.Sleep(3 * policy.BreakerTimeout)

	// Two trial calls overlap while the breaker is half-open.
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- r.Do(context.Background(), "UploadPart", func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started
	close(release)
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestRetrierRetriesHalfOpenRejection(t *testing.T) {
	policy := fastPolicy(3)
	policy.BreakerThreshold = 5
	r := NewRetrier(policy, zap.NewNop().Sugar())

	calls := 0
	err := r.Do(context.Background(), "UploadPart", func(context.Context) error {
		calls++
		if calls == 1 {
			return gobreaker.ErrTooManyRequests
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
