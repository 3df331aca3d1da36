package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/logging"
)

type SweeperOptions struct {
	Interval time.Duration
	Logger   *logrus.Entry
	Now      func() time.Time
}

// RetentionSweeper periodically purges expired audit events, one tenant scope at a time.
type RetentionSweeper struct {
	pipeline *Pipeline
	tenants  tenant.Repository
	opts     SweeperOptions
}

func NewRetentionSweeper(pipeline *Pipeline, tenants tenant.Repository, opts SweeperOptions) *RetentionSweeper {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RetentionSweeper{pipeline: pipeline, tenants: tenants, opts: opts}
}

func (s *RetentionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := s.SweepOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.opts.Logger.WithError(err).Warn("audit: retention sweep failed")
		}
	}
}

// SweepOnce purges expired events of every active tenant and returns how many were removed.
// A failing tenant does not stop the others.
func (s *RetentionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	tenants, err := s.tenants.List(ctx, &tenant.FindParams{ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	job := principal.NewSystemPrincipal("audit-retention", principal.RoleSystemJob)
	ctx = composables.WithPrincipal(ctx, job)
	now := s.opts.Now()

	var (
		total int64
		errs  []error
	)
	for _, t := range tenants {
		n, err := composables.RunScopedResult(ctx, t, func(ctx context.Context) (int64, error) {
			return s.pipeline.PurgeExpired(ctx, t.ID(), now)
		})
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			errs = append(errs, err)
			s.opts.Logger.WithError(err).WithField("tenant_id", t.ID().String()).Warn("audit: purge failed")
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}
