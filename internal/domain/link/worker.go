package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/metrics"
)

// TenantScope returns a context bound to one tenant's schema. release must
// be called when done. db.AcquireTenant has this shape once bound to a pool.
type TenantScope func(ctx context.Context, tenantID string) (context.Context, func(), error)

// Locker guards a sweep against other instances running it at the same time.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, func(context.Context) error, error)
}

// ExpiryWorker runs CleanupExpired for each configured tenant.
type ExpiryWorker struct {
	svc      *Service
	tenants  []string
	interval time.Duration
	scope    TenantScope
	locker   Locker
	logger   zerolog.Logger
}

func NewExpiryWorker(svc *Service, tenants []string, interval time.Duration, scope TenantScope, logger zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		svc:      svc,
		tenants:  tenants,
		interval: interval,
		scope:    scope,
		logger:   logger.With().Str("worker", "link-expiry").Logger(),
	}
}

// SetLocker enables cross-instance locking. Without it every instance sweeps,
// which is safe but redundant.
func (w *ExpiryWorker) SetLocker(l Locker) { w.locker = l }

func (w *ExpiryWorker) Name() string { return "link-expiry-sweep" }

func (w *ExpiryWorker) Interval() time.Duration { return w.interval }

// Run sweeps every tenant. One tenant failing does not stop the others.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	var errs []error
	for _, tenant := range w.tenants {
		if _, err := w.SweepTenant(ctx, tenant); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}
	return errors.Join(errs...)
}

// SweepTenant expires the due links of one tenant and returns how many were
// moved. A sweep skipped because another instance holds the lock returns 0.
func (w *ExpiryWorker) SweepTenant(ctx context.Context, tenant string) (int, error) {
	logger := w.logger.With().Str("tenant", tenant).Logger()

	if w.locker != nil {
		ok, release, err := w.locker.TryLock(ctx, "link-sweep:"+tenant, w.interval)
		if err != nil {
			logger.Warn().Err(err).Msg("sweep lock unavailable, sweeping anyway")
		} else if !ok {
			logger.Debug().Msg("sweep already running elsewhere")
			return 0, nil
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					logger.Warn().Err(err).Msg("failed to release sweep lock")
				}
			}()
		}
	}

	start := time.Now()
	defer func() {
		metrics.LinkSweepDuration.WithLabelValues(tenant).Observe(time.Since(start).Seconds())
	}()

	tctx, release, err := w.scope(ctx, tenant)
	if err != nil {
		metrics.LinkSweepFailures.WithLabelValues(tenant).Inc()
		return 0, err
	}
	defer release()

	n, err := w.svc.CleanupExpired(tctx)
	metrics.LinkSweepExpired.WithLabelValues(tenant).Add(float64(n))
	if err != nil {
		metrics.LinkSweepFailures.WithLabelValues(tenant).Inc()
		logger.Error().Err(err).Int("expired", n).Msg("link sweep finished with errors")
		return n, err
	}
	if n > 0 {
		logger.Info().Int("expired", n).Msg("expired links")
	}
	return n, nil
}
