package partition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/repo"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

var (
	ErrPartitionNotFound = serrors.NewError(serrors.CodePartitionNotFound, "tenant partition not found", "Errors.PartitionNotFound")
	ErrNoMigrator        = errors.New("partition: no migrator configured")
)

var tracer = otel.Tracer("tenantcore-partition")

// Migrator owns the schema objects inside a partition.
type Migrator interface {
	Up(ctx context.Context, h Handle) (int, error)
	// Missing lists migrations known to the source but not applied to h.
	Missing(ctx context.Context, h Handle) ([]string, error)
}

type Options struct {
	Migrator Migrator
	Logger   *logrus.Entry
}

// Router pins every unit of tenant work to the tenant's partition.
type Router struct {
	db       repo.Beginner
	migrator Migrator
	logger   *logrus.Entry

	mu    sync.RWMutex
	known map[string]struct{}
}

func NewRouter(db repo.Beginner, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Router{
		db:       db,
		migrator: opts.Migrator,
		logger:   opts.Logger,
		known:    make(map[string]struct{}),
	}
}

// WithPartition runs fn inside a transaction whose search_path is pinned to t's partition, with t
// as the current tenant. Inside an existing scope it reuses the open transaction, switches the
// search_path and switches it back once fn returns, fails or panics.
func (r *Router) WithPartition(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) (err error) {
	if t == nil {
		return composables.ErrNoTenant
	}
	h := PartitionFor(t)
	prev, nested := UseHandle(ctx)

	ctx, span := tracer.Start(ctx, "partition.scope", trace.WithAttributes(
		attribute.String("tenant.id", t.ID().String()),
		attribute.String("partition", h.Key()),
		attribute.Bool("nested", nested),
	))
	start := time.Now()
	defer func() {
		m := getMetrics()
		m.scopesTotal.WithLabelValues(strconv.FormatBool(nested), resultLabel(err)).Inc()
		m.scopeDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if nested {
		if tx, txErr := composables.UseOpenTx(ctx); txErr == nil {
			return r.switchPartition(ctx, tx, prev, h, t, fn)
		}
	}

	// Audit events emitted inside the scope only become final with the transaction outcome.
	ctx, release := event.Hold(ctx)
	defer func() {
		if p := recover(); p != nil {
			release(fmt.Errorf("panic: %v", p))
			panic(p)
		}
		release(err)
	}()

	return composables.RunInTx(ctx, r.db, func(txCtx context.Context) error {
		tx, err := composables.UseOpenTx(txCtx)
		if err != nil {
			return err
		}
		if err := r.pin(txCtx, tx, h); err != nil {
			return err
		}
		return fn(composables.PushTenant(withHandle(txCtx, h), t))
	})
}

func (r *Router) switchPartition(ctx context.Context, tx repo.Tx, prev, h Handle, t *tenant.Tenant, fn func(context.Context) error) (err error) {
	if prev == h {
		return fn(composables.PushTenant(ctx, t))
	}
	if err := r.pin(ctx, tx, h); err != nil {
		return err
	}
	defer func() {
		// The caller may already be cancelled; the outer scope still needs its partition back.
		if rErr := setSearchPath(context.WithoutCancel(ctx), tx, prev); rErr != nil {
			err = errors.Join(err, fmt.Errorf("restore partition %s: %w", prev, rErr))
		}
	}()
	return fn(composables.PushTenant(withHandle(ctx, h), t))
}

func (r *Router) pin(ctx context.Context, tx repo.Tx, h Handle) error {
	ok, err := r.exists(ctx, tx, h)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPartitionNotFound.WithMessage(fmt.Sprintf("partition %s not found", h))
	}
	return setSearchPath(ctx, tx, h)
}

func setSearchPath(ctx context.Context, tx repo.Tx, h Handle) error {
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", h.Identifier()))
	return err
}

func (r *Router) exists(ctx context.Context, tx repo.Tx, h Handle) (bool, error) {
	r.mu.RLock()
	_, ok := r.known[h.key]
	r.mu.RUnlock()
	if ok {
		getMetrics().existenceChecks.WithLabelValues("cache").Inc()
		return true, nil
	}

	getMetrics().existenceChecks.WithLabelValues("catalog").Inc()
	var found bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, h.key).Scan(&found); err != nil {
		return false, fmt.Errorf("check partition %s: %w", h, err)
	}
	if found {
		r.remember(h)
	}
	return found, nil
}

func (r *Router) remember(h Handle) {
	r.mu.Lock()
	r.known[h.key] = struct{}{}
	r.mu.Unlock()
}

// Forget drops h from the existence cache.
func (r *Router) Forget(h Handle) {
	r.mu.Lock()
	delete(r.known, h.key)
	r.mu.Unlock()
}

// PartitionExists consults the catalog, bypassing the cache.
func (r *Router) PartitionExists(ctx context.Context, t *tenant.Tenant) (bool, error) {
	h := PartitionFor(t)
	r.Forget(h)
	var found bool
	err := r.inTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		found, err = r.exists(ctx, tx, h)
		return err
	})
	return found, err
}

// EnsurePartitionExists creates t's partition if it is missing. Only provisioning should call it.
func (r *Router) EnsurePartitionExists(ctx context.Context, t *tenant.Tenant) (err error) {
	h := PartitionFor(t)
	defer func() { getMetrics().ddlTotal.WithLabelValues("create", resultLabel(err)).Inc() }()

	err = r.inTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", h.Identifier()))
		return err
	})
	if err != nil {
		return fmt.Errorf("create partition %s: %w", h, err)
	}
	r.remember(h)
	r.logger.WithFields(logrus.Fields{"tenant_id": t.ID().String(), "partition": h.Key()}).Info("partition ensured")
	return nil
}

// Migrate applies pending partition migrations and returns how many ran.
func (r *Router) Migrate(ctx context.Context, t *tenant.Tenant) (n int, err error) {
	if r.migrator == nil {
		return 0, ErrNoMigrator
	}
	h := PartitionFor(t)
	defer func() { getMetrics().ddlTotal.WithLabelValues("migrate", resultLabel(err)).Inc() }()

	n, err = r.migrator.Up(ctx, h)
	if err != nil {
		return n, fmt.Errorf("migrate partition %s: %w", h, err)
	}
	r.logger.WithFields(logrus.Fields{"tenant_id": t.ID().String(), "partition": h.Key(), "applied": n}).Info("partition migrated")
	return n, nil
}

// MissingMigrations lists partition migrations not yet applied for t.
func (r *Router) MissingMigrations(ctx context.Context, t *tenant.Tenant) ([]string, error) {
	if r.migrator == nil {
		return nil, ErrNoMigrator
	}
	return r.migrator.Missing(ctx, PartitionFor(t))
}

// DropPartition removes t's partition and everything in it.
func (r *Router) DropPartition(ctx context.Context, t *tenant.Tenant) (err error) {
	h := PartitionFor(t)
	defer func() { getMetrics().ddlTotal.WithLabelValues("drop", resultLabel(err)).Inc() }()

	r.Forget(h)
	err = r.inTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", h.Identifier()))
		return err
	})
	if err != nil {
		return fmt.Errorf("drop partition %s: %w", h, err)
	}
	r.logger.WithFields(logrus.Fields{"tenant_id": t.ID().String(), "partition": h.Key()}).Warn("partition dropped")
	return nil
}

func (r *Router) inTx(ctx context.Context, fn func(context.Context, repo.Tx) error) error {
	if tx, err := composables.UseOpenTx(ctx); err == nil {
		return fn(ctx, tx)
	}
	return composables.RunInTx(ctx, r.db, func(txCtx context.Context) error {
		tx, err := composables.UseOpenTx(txCtx)
		if err != nil {
			return err
		}
		return fn(txCtx, tx)
	})
}
