package lock

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerIsSafe(t *testing.T) {
	var l *Locker
	require.Nil(t, NewLocker(nil))

	token, ok, err := l.TryLock(context.Background(), "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "sweep", "token"))
}

func TestTryLockValidatesBeforeCallingRedis(t *testing.T) {
	// Unreachable address: validation must fail before any network call.
	l := NewLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))

	_, _, err := l.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = l.TryLock(context.Background(), "sweep", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	assert.NoError(t, l.Release(context.Background(), "sweep", ""))
}
