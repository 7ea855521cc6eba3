package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "locked", err: errors.New("database is locked"), expected: true},
		{name: "busy", err: fmt.Errorf("begin: %w", errors.New("SQLITE_BUSY")), expected: true},
		{name: "storage wrapping busy", err: errclass.ErrStorage.Wrap(errors.New("database is locked")), expected: true},
		{name: "versioning failure", err: errclass.ErrVersioningFailure.Wrap(errors.New("database is locked")), expected: false},
		{name: "duplicate version", err: errclass.ErrDuplicateVersion, expected: false},
		{name: "cancelled", err: context.Canceled, expected: false},
		{name: "other", err: errors.New("no such table"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isTransient(tt.err))
		})
	}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := fastRetry().retry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnFatal(t *testing.T) {
	calls := 0
	err := fastRetry().retry(context.Background(), "op", func() error {
		calls++
		return errclass.ErrDuplicateVersion
	})
	assert.ErrorIs(t, err, errclass.ErrDuplicateVersion)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := fastRetry().retry(context.Background(), "op", func() error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")
	assert.Equal(t, 4, calls)
}

func TestRetry_Backoff(t *testing.T) {
	cfg := &RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 20*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 50*time.Millisecond, cfg.backoff(5))
}
