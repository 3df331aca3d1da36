package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence/models"
	"github.com/iota-uz/tenantcore/pkg/logging"
)

const cachePrefix = "tenantcore:tenant:"

// CachedTenantRepository keeps registry lookups in Redis. Every write goes to the underlying
// repository first and then evicts the cached entries. Cache failures fall through to the source.
type CachedTenantRepository struct {
	tenant.Repository
	client redis.UniversalClient
	ttl    time.Duration
	logger *logrus.Entry
}

func NewCachedTenantRepository(next tenant.Repository, client redis.UniversalClient, ttl time.Duration, logger *logrus.Entry) *CachedTenantRepository {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CachedTenantRepository{Repository: next, client: client, ttl: ttl, logger: logger}
}

func idKey(id uuid.UUID) string          { return cachePrefix + "id:" + id.String() }
func identifierKey(ident string) string { return cachePrefix + "ident:" + ident }

func (r *CachedTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if t, ok := r.load(ctx, idKey(id)); ok {
		return t, nil
	}
	t, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, t)
	return t, nil
}

func (r *CachedTenantRepository) GetByIdentifier(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	identifier = tenant.NormalizeIdentifier(identifier)
	if t, ok := r.load(ctx, identifierKey(identifier)); ok {
		return t, nil
	}
	t, err := r.Repository.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	r.store(ctx, t)
	return t, nil
}

func (r *CachedTenantRepository) Update(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	updated, err := r.Repository.Update(ctx, t)
	if err != nil {
		return nil, err
	}
	r.Invalidate(ctx, updated)
	return updated, nil
}

func (r *CachedTenantRepository) BumpKeyVersion(ctx context.Context, id uuid.UUID) (int, error) {
	v, err := r.Repository.BumpKeyVersion(ctx, id)
	if err != nil {
		return 0, err
	}
	if t, err := r.Repository.GetByID(ctx, id); err == nil {
		r.Invalidate(ctx, t)
	} else {
		r.evict(ctx, idKey(id))
	}
	return v, nil
}

func (r *CachedTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	t, lookupErr := r.Repository.GetByID(ctx, id)
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	if lookupErr == nil {
		r.Invalidate(ctx, t)
	} else {
		r.evict(ctx, idKey(id))
	}
	return nil
}

// Invalidate drops every cached entry of t.
func (r *CachedTenantRepository) Invalidate(ctx context.Context, t *tenant.Tenant) {
	r.evict(ctx, idKey(t.ID()), identifierKey(t.Identifier()))
}

func (r *CachedTenantRepository) evict(ctx context.Context, keys ...string) {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.WithError(err).Warn("tenant cache eviction failed")
	}
}

func (r *CachedTenantRepository) load(ctx context.Context, key string) (*tenant.Tenant, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WithError(err).Warn("tenant cache read failed")
		}
		return nil, false
	}
	var m models.Tenant
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	t, err := toDomainTenant(&m)
	if err != nil {
		return nil, false
	}
	return t, true
}

func (r *CachedTenantRepository) store(ctx context.Context, t *tenant.Tenant) {
	m, err := toDBTenant(t)
	if err != nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, idKey(t.ID()), data, r.ttl)
	pipe.Set(ctx, identifierKey(t.Identifier()), data, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithError(err).Warn("tenant cache write failed")
	}
}
