package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfAndIs(t *testing.T) {
	err := CasConflict("k", "r", 3, 5)
	require.True(t, errors.Is(err, ErrCasConflict))
	require.False(t, errors.Is(err, ErrReadWriteConflict))
	require.Equal(t, KindCasConflict, KindOf(err))
	require.True(t, IsConflict(err))
}

func TestRetryControllerStopsOnNonConflict(t *testing.T) {
	rc := &RetryController{MaxAttempts: 5, InitialDelay: 0, MaxDelay: 0}
	attempts := 0
	err := rc.Do(func(attempt int) error {
		attempts++
		return InvalidInput("nope")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryControllerRetriesConflicts(t *testing.T) {
	rc := &RetryController{MaxAttempts: 5, InitialDelay: 0, MaxDelay: 0}
	attempts := 0
	err := rc.Do(func(attempt int) error {
		attempts++
		if attempt < 2 {
			return ReadWriteConflict("k", "r")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}
