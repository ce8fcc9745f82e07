package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	"github.com/smallbiznis/racepay/internal/gateway"
	"github.com/smallbiznis/racepay/internal/lock"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	transactiondomain "github.com/smallbiznis/racepay/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockKey = "reconcile:sweep"

var ErrInvalidConfig = errors.New("reconcile_invalid_config")

// Reconciler mirrors the gateway state of one order onto the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, merchantOrderID string) (gateway.OrderStatus, error)
}

type leaser interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Ledger     transactiondomain.Repository
	Reconciler Reconciler
	Locker     *lock.Locker        `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Sweeper periodically re-checks PENDING transactions whose webhook never arrived.
type Sweeper struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.ReconcileConfig
	ledger     transactiondomain.Repository
	reconciler Reconciler
	locker     leaser
	metrics    *obsmetrics.Metrics
}

// Summary counts the outcome of one sweep.
type Summary struct {
	Checked int
	Skipped bool
	States  map[string]int
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Ledger == nil || p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	s := &Sweeper{
		db:         p.DB,
		log:        p.Log.Named("reconcile.sweeper"),
		clock:      p.Clock,
		cfg:        withDefaults(p.Config.Reconcile),
		ledger:     p.Ledger,
		reconciler: p.Reconciler,
		metrics:    p.Metrics,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func withDefaults(cfg config.ReconcileConfig) config.ReconcileConfig {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	return cfg
}

// RunOnce reconciles one batch. Per-order failures are joined into the
// returned error and do not stop the batch.
func (s *Sweeper) RunOnce(parent context.Context) (Summary, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	summary := Summary{States: map[string]int{}}

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.RunTimeout)
		if err != nil {
			return summary, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			summary.Skipped = true
			s.log.Debug("sweep skipped, another replica holds the lock")
			return summary, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.log.Warn("release sweep lock failed", zap.Error(err))
			}
		}()
	}

	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.ledger.ListStalePending(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("list stale transactions: %w", err)
	}

	var errs []error
	for _, txn := range stale {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		status, err := s.reconciler.Reconcile(ctx, txn.MerchantOrderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", txn.MerchantOrderID, err))
			// Record the attempt so the row rotates behind unchecked ones.
			if markErr := s.ledger.MarkObserved(ctx, s.db, txn.MerchantOrderID, transactiondomain.ObservedStatusCheck, s.clock.Now()); markErr != nil {
				s.log.Warn("record sweep attempt failed", zap.String("merchant_order_id", txn.MerchantOrderID), zap.Error(markErr))
			}
			continue
		}
		summary.Checked++
		summary.States[string(status.State)]++
	}

	for state, n := range summary.States {
		s.metrics.RecordReconciled(ctx, state, n)
	}
	if len(stale) > 0 {
		s.log.Info("sweep finished",
			zap.Int("stale", len(stale)),
			zap.Int("checked", summary.Checked),
			zap.Int("failed", len(errs)),
		)
	}
	return summary, errors.Join(errs...)
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
