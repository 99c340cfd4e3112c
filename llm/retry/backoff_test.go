package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/types"
)

func transientErr() error {
	return types.NewError(types.ErrNetwork, "connection reset").WithRetryable(true)
}

func TestBackoffRetryer_Success(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return transientErr() // 前两次失败
		}
		return nil // 第三次成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_AttemptsExhausted(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return transientErr() // 始终失败
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
	// 耗尽后透传最后一次分类过的错误，不再额外包装
	assert.Equal(t, types.ErrNetwork, types.GetErrorCode(err))
}

func TestBackoffRetryer_NonRetryableReturnsImmediately(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	retries := 0
	policy.OnRetry = func(int, error, time.Duration) { retries++ }

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	for _, code := range []types.ErrorCode{types.ErrUnauthorized, types.ErrMalformedResponse} {
		callCount := 0
		err := retryer.Do(context.Background(), func() error {
			callCount++
			return types.NewError(code, "terminal")
		})

		require.Error(t, err)
		assert.Equal(t, 1, callCount, "不可重试错误只调用一次")
		assert.Equal(t, 0, retries, "不可重试错误零次重试")
		assert.Equal(t, code, types.GetErrorCode(err))
	}
}

func TestBackoffRetryer_DelaysStrictlyIncreaseUntilCap(t *testing.T) {
	var delays []time.Duration
	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())
	_ = retryer.Do(context.Background(), func() error { return transientErr() })

	require.Len(t, delays, 4)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1], "退避延迟应严格递增")
		assert.LessOrEqual(t, delays[i], policy.MaxDelay)
	}
}

func TestBackoffRetryer_DelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	policy := &Policy{
		MaxAttempts:  6,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())
	_ = retryer.Do(context.Background(), func() error { return transientErr() })

	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.LessOrEqual(t, d, policy.MaxDelay)
	}
	assert.Equal(t, policy.MaxDelay, delays[len(delays)-1])
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return transientErr()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, callCount, 1, "至少调用一次")
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(&Policy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}, zap.NewNop())

	calls := 0
	got, err := DoWithResultTyped(retryer, context.Background(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", transientErr()
		}
		return "reply", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "reply", got)
	assert.Equal(t, 2, calls)
}
