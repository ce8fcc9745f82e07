// Package poll implements the status page polling contract: check once, then
// re-check a pending order on a fixed interval until the state settles or the
// attempt or wall-clock budget runs out.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
)

const statePending = "PENDING"

// ErrStop ends polling early when wrapped into a CheckFunc error.
var ErrStop = errors.New("poll_stop")

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    3 * time.Second,
		MaxAttempts: 15,
		MaxDuration: 45 * time.Second,
	}
}

// CheckFunc returns the current order state.
type CheckFunc func(ctx context.Context) (string, error)

type Result struct {
	State    string
	Attempts int
	Elapsed  time.Duration
	// TimedOut is set when the budget ran out while the order was still pending.
	TimedOut bool
	LastErr  error
}

// Settled reports whether polling ended on a non-pending state.
func (r Result) Settled() bool {
	return !r.TimedOut && r.LastErr == nil && r.State != "" && r.State != statePending
}

type Poller struct {
	cfg   Config
	clock clock.Clock
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

func New(cfg Config, opts ...Option) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	p := &Poller{cfg: cfg, clock: clock.New(), sleep: sleepContext}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls check until it reports a non-pending state, returns an error
// wrapping ErrStop, or the budget is spent. Other errors are retried.
func (p *Poller) Run(ctx context.Context, check CheckFunc) (Result, error) {
	start := p.clock.Now()
	deadline := start.Add(p.cfg.MaxDuration)
	var res Result

	for {
		state, err := check(ctx)
		res.Attempts++
		res.Elapsed = p.clock.Now().Sub(start)
		res.LastErr = err
		if err == nil {
			res.State = state
			if state != statePending {
				return res, nil
			}
		} else if errors.Is(err, ErrStop) {
			return res, err
		}

		if res.Attempts >= p.cfg.MaxAttempts || p.clock.Now().Add(p.cfg.Interval).After(deadline) {
			res.TimedOut = true
			return res, nil
		}
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			return res, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
