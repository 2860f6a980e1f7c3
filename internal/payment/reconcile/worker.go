package reconcile

import (
	"context"
	"time"

	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/ratelimit"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WorkerConfig controls the background reconciliation sweep.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	// GracePeriod is how long past the next billing date a subscription may
	// sit before the sweep pulls remote state. Webhooks normally arrive
	// well within this window.
	GracePeriod time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    25,
		PollInterval: time.Hour,
		RunTimeout:   5 * time.Minute,
		GracePeriod:  6 * time.Hour,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	defaults := DefaultWorkerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaults.GracePeriod
	}
	return c
}

type WorkerParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Subs       subdomain.Repository
	Reconciler *Reconciler
	Clock      clock.Clock
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
	Config     WorkerConfig              `optional:"true"`
}

// Worker periodically resyncs subscriptions whose renewal is overdue,
// catching payments whose webhooks were lost.
type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	subs       subdomain.Repository
	reconciler *Reconciler
	clock      clock.Clock
	limiter    *ratelimit.WebhookLimiter
	cfg        WorkerConfig
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("reconcile.worker"),
		subs:       p.Subs,
		reconciler: p.Reconciler,
		clock:      p.Clock,
		limiter:    p.Limiter,
		cfg:        p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("reconciliation sweep failed", zap.Error(err))
		}
	}
}

// RunOnce resyncs one batch of overdue subscriptions. Individual failures
// are logged and skipped so one broken subscription cannot stall the sweep.
func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	// With multiple gateway instances only one may sweep at a time.
	token, acquired, err := w.limiter.TryLockSweep(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		w.log.Debug("sweep lock held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := w.limiter.ReleaseSweep(ctx, token); err != nil {
			w.log.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	cutoff := w.clock.Now().Add(-w.cfg.GracePeriod)
	due, err := w.subs.ListDueForResync(ctx, w.db, cutoff, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		sub := due[i]
		if err := w.reconciler.Resync(ctx, &sub); err != nil {
			w.log.Warn("resync failed",
				zap.String("subscription_uuid", sub.UUID),
				zap.Error(err),
			)
		}
	}

	if len(due) > 0 {
		w.log.Info("reconciliation sweep completed", zap.Int("subscriptions", len(due)))
	}
	return nil
}

// WorkerModule starts the sweep with the fx lifecycle.
var WorkerModule = fx.Module("reconcile.worker",
	fx.Provide(DefaultWorkerConfig),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
