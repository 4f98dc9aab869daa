package aria

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPolicy() retryPolicy {
	return retryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	attempts := 0
	err := testPolicy().do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &TransientError{Status: 503}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	attempts := 0
	err := testPolicy().do(context.Background(), func() error {
		attempts++
		return &TransientError{Status: 500}
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)

	var te *TransientError
	require.ErrorAs(t, err, &te)
}

func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client error", &ClientError{Status: 404, Endpoint: "/x"}},
		{"auth error", &AuthError{Reason: "bad credentials"}},
		{"plain error", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := testPolicy().do(context.Background(), func() error {
				attempts++
				return tt.err
			})
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, 1, attempts)
		})
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := retryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.do(ctx, func() error {
			attempts++
			return &TransientError{Status: 500}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not honor context cancellation")
	}
}
