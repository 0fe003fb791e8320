package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, retry.Attempts(5), retry.Delay(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryReturnsLastErrorAfterExhaustion(t *testing.T) {
	err := Retry(context.Background(), func() error {
		return errors.New("permanent")
	}, retry.Attempts(2), retry.Delay(time.Millisecond))
	require.Error(t, err)
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	v, err := RetryWithResult(context.Background(), func() (int, error) {
		return 42, nil
	}, retry.Attempts(1))
	require.NoError(t, err)
	require.Equal(t, 42, v)
}
