package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	auditpersistence "github.com/iota-uz/tenantcore/modules/audit/infrastructure/persistence"
	auditservices "github.com/iota-uz/tenantcore/modules/audit/services"
	clinicpersistence "github.com/iota-uz/tenantcore/modules/clinic/infrastructure/persistence"
	complianceservices "github.com/iota-uz/tenantcore/modules/compliance/services"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	tenancypersistence "github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/configuration"
	"github.com/iota-uz/tenantcore/pkg/eventbus"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/keyring"
	"github.com/iota-uz/tenantcore/pkg/partition"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

const connectTimeout = 10 * time.Second

// app holds the services one command invocation needs.
type app struct {
	conf   *configuration.Configuration
	logger *logrus.Entry

	pool   *pgxpool.Pool
	redis  *redis.Client
	sink   *auditservices.BufferedSink
	cancel context.CancelFunc

	tenants      tenant.Repository
	users        adminuser.Repository
	router       *partition.Router
	audit        *auditservices.Pipeline
	keys         *keyring.Service
	provisioning *services.ProvisioningService
	lifecycle    *services.TenantService
	restore      *services.RestoreService
}

func newApp(ctx context.Context) (*app, error) {
	conf := configuration.Use()
	logger := logrus.NewEntry(conf.Logger()).WithField("cmd", "tenantctl")

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := partition.NewPool(connectCtx, conf.Database.Opts, conf.Database.MaxConns)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("connect db: %w", err))
	}

	a := &app{conf: conf, logger: logger, pool: pool}

	a.tenants = tenancypersistence.NewTenantRepository()
	if conf.RedisURL != "" {
		opts, err := redis.ParseURL(conf.RedisURL)
		if err != nil {
			pool.Close()
			return nil, withCode(exitUsage, fmt.Errorf("parse REDIS_URL: %w", err))
		}
		a.redis = redis.NewClient(opts)
		a.tenants = tenancypersistence.NewCachedTenantRepository(a.tenants, a.redis, conf.Tenancy.RegistryCacheTTL, logger)
	}
	a.users = tenancypersistence.NewAdminUserRepository()

	a.router = partition.NewRouter(pool, partition.Options{
		Migrator: partition.NewSQLMigrator(partition.OpenerFromDSN(conf.Database.Opts)),
		Logger:   logger,
	})

	events := auditpersistence.NewEventRepository(pool)
	var sink auditservices.Sink = events
	if conf.Audit.BufferSize > 0 {
		a.sink = auditservices.NewBufferedSink(events, auditservices.BufferOptions{
			Size:          conf.Audit.BufferSize,
			FlushInterval: conf.Audit.FlushInterval,
			Logger:        logger,
		})
		sink = a.sink
		runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		a.cancel = stop
		go a.sink.Run(runCtx)
	}
	a.audit = auditservices.NewPipeline(sink, events, auditservices.PipelineOptions{
		RetentionDays: conf.Audit.RetentionDays,
		Logger:        logger,
	})

	secret, err := conf.Encryption.Secret()
	if err != nil {
		a.close(ctx)
		return nil, withCode(exitUsage, fmt.Errorf("resolve master secret: %w", err))
	}
	a.keys, err = keyring.New(secret, a.tenants, keyring.Options{
		Iterations:  conf.Encryption.KDFIterations,
		CacheTTL:    conf.Encryption.KeyCacheTTL,
		Development: conf.IsDevelopment(),
		Recorder:    a.audit,
		Logger:      logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, withCode(exitUsage, err)
	}

	store := tenantrepo.NewPgStore()
	codec := fieldcrypt.New(a.keys, fieldcrypt.Options{Development: conf.IsDevelopment(), Logger: logger})
	opts := tenantrepo.Options{Scoper: a.router, Codec: codec, Recorder: a.audit, Logger: logger}
	consents := complianceservices.NewConsentService(store, opts)
	opts.Codec = codec.WithConsent(consents)
	repos := clinicpersistence.NewRepositories(store, opts)

	bus := eventbus.NewEventPublisher(logger)
	services.EvictKeysOnLifecycle(bus, a.keys)

	a.provisioning = services.NewProvisioningService(a.tenants, a.users, a.router, repos.Services, services.ProvisioningOptions{
		Publisher: bus,
		Logger:    logger,
	})
	a.lifecycle = services.NewTenantService(a.tenants, a.users, a.router, a.keys, bus, logger)
	a.restore = services.NewRestoreService(a.router, repos, logger)
	return a, nil
}

// operatorContext carries the operator principal, the pool and the logger.
func (a *app) operatorContext(ctx context.Context) context.Context {
	ctx = composables.WithPrincipal(ctx, principal.NewSystemPrincipal("tenantctl", principal.RoleSystemOperator))
	ctx = composables.WithPool(ctx, a.pool)
	return composables.WithLogger(ctx, a.logger)
}

func (a *app) close(ctx context.Context) {
	if a.sink != nil {
		if err := a.sink.Flush(context.WithoutCancel(ctx)); err != nil {
			a.logger.WithError(err).Error("flush audit buffer")
		}
		a.cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("close redis")
		}
	}
	a.pool.Close()
}

// withApp builds the app, runs fn with an operator context and releases everything afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(a.operatorContext(ctx), a)
}

func (a *app) deactivate(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	return a.lifecycle.Deactivate(ctx, t.ID())
}

func (a *app) activate(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	return a.lifecycle.Activate(ctx, t.ID())
}
