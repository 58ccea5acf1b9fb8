package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(3), func() error {
		attempts++
		if attempts < 3 {
			return lberrors.ProviderError("transient", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(2), func() error {
		attempts++
		return lberrors.ProviderError("still down", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, lberrors.ErrCodeProviderUnavailable, lberrors.GetCode(err))
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), fastRetry(3), func() error {
		attempts++
		return lberrors.DimensionError(768, 512)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, lberrors.ErrCodeDimensionMismatch, lberrors.GetCode(err))
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, fastRetry(3), func() error {
		return lberrors.ProviderError("down", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
