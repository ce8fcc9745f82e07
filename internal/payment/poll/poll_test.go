package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePoller(cfg Config) (*Poller, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC))
	return New(cfg,
		WithClock(clk),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			clk.Advance(d)
			return nil
		}),
	), clk
}

func TestRunStopsAfterMaxAttemptsWhilePending(t *testing.T) {
	p, _ := fakePoller(DefaultConfig())
	calls := 0
	res, err := p.Run(context.Background(), func(context.Context) (string, error) {
		calls++
		return "PENDING", nil
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Settled())
	assert.Equal(t, 15, res.Attempts)
	assert.Equal(t, 15, calls)
	assert.Equal(t, 42*time.Second, res.Elapsed)
	assert.LessOrEqual(t, res.Elapsed, 45*time.Second)
}

func TestRunStopsAtWallClockBudget(t *testing.T) {
	p, _ := fakePoller(Config{Interval: 10 * time.Second, MaxAttempts: 15, MaxDuration: 45 * time.Second})
	res, err := p.Run(context.Background(), func(context.Context) (string, error) {
		return "PENDING", nil
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 40*time.Second, res.Elapsed)
}

func TestRunCountsSlowChecksAgainstBudget(t *testing.T) {
	p, clk := fakePoller(DefaultConfig())
	res, err := p.Run(context.Background(), func(context.Context) (string, error) {
		clk.Advance(7 * time.Second)
		return "PENDING", nil
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 5, res.Attempts)
}

func TestRunReturnsSettledState(t *testing.T) {
	p, _ := fakePoller(DefaultConfig())
	states := []string{"PENDING", "PENDING", "COMPLETED"}
	res, err := p.Run(context.Background(), func(context.Context) (string, error) {
		s := states[0]
		states = states[1:]
		return s, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Settled())
	assert.Equal(t, "COMPLETED", res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 6*time.Second, res.Elapsed)
}

func TestRunRetriesErrorsAndStopsOnErrStop(t *testing.T) {
	p, _ := fakePoller(DefaultConfig())
	calls := 0
	res, err := p.Run(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "", fmt.Errorf("order not found: %w", ErrStop)
	})
	assert.ErrorIs(t, err, ErrStop)
	assert.Equal(t, 2, res.Attempts)
	assert.False(t, res.Settled())
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{Interval: time.Second, MaxDuration: time.Hour})
	cancel()
	res, err := p.Run(ctx, func(context.Context) (string, error) { return "PENDING", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}
