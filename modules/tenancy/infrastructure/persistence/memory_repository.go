package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
)

// MemoryTenantRepository is a registry held in memory. It stores copies so callers cannot mutate
// registry state behind its back.
type MemoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenant.Tenant

	// FailCreate, when set, is returned by Create.
	FailCreate error
}

func NewMemoryTenantRepository(seed ...*tenant.Tenant) *MemoryTenantRepository {
	r := &MemoryTenantRepository{tenants: make(map[uuid.UUID]*tenant.Tenant)}
	for _, t := range seed {
		r.tenants[t.ID()] = clone(t, t.KeyVersion())
	}
	return r
}

func clone(t *tenant.Tenant, keyVersion int) *tenant.Tenant {
	return tenant.New(t.Identifier(),
		tenant.WithID(t.ID()),
		tenant.WithName(t.Name()),
		tenant.WithPartitionKey(t.PartitionKey()),
		tenant.WithIsActive(t.IsActive()),
		tenant.WithPlanLimits(t.PlanLimits()),
		tenant.WithKeyVersion(keyVersion),
		tenant.WithCreatedAt(t.CreatedAt()),
		tenant.WithUpdatedAt(t.UpdatedAt()),
	)
}

func (r *MemoryTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return clone(t, t.KeyVersion()), nil
}

func (r *MemoryTenantRepository) GetByIdentifier(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	identifier = tenant.NormalizeIdentifier(identifier)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.Identifier() == identifier {
			return clone(t, t.KeyVersion()), nil
		}
	}
	return nil, tenant.ErrNotFound
}

func (r *MemoryTenantRepository) List(ctx context.Context, params *tenant.FindParams) ([]*tenant.Tenant, error) {
	r.mu.RLock()
	out := make([]*tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if params != nil && params.ActiveOnly && !t.IsActive() {
			continue
		}
		out = append(out, clone(t, t.KeyVersion()))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	if params != nil {
		if params.Offset > 0 {
			if params.Offset >= len(out) {
				return nil, nil
			}
			out = out[params.Offset:]
		}
		if params.Limit > 0 && params.Limit < len(out) {
			out = out[:params.Limit]
		}
	}
	return out, nil
}

func (r *MemoryTenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	if r.FailCreate != nil {
		return nil, r.FailCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Identifier() == t.Identifier() || existing.PartitionKey() == t.PartitionKey() {
			return nil, tenant.ErrIdentifierTaken
		}
	}
	r.tenants[t.ID()] = clone(t, t.KeyVersion())
	return clone(t, t.KeyVersion()), nil
}

func (r *MemoryTenantRepository) Update(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tenants[t.ID()]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	next := tenant.New(cur.Identifier(),
		tenant.WithID(cur.ID()),
		tenant.WithName(t.Name()),
		tenant.WithPartitionKey(cur.PartitionKey()),
		tenant.WithIsActive(t.IsActive()),
		tenant.WithPlanLimits(t.PlanLimits()),
		tenant.WithKeyVersion(cur.KeyVersion()),
		tenant.WithCreatedAt(cur.CreatedAt()),
		tenant.WithUpdatedAt(t.UpdatedAt()),
	)
	r.tenants[t.ID()] = next
	return clone(next, next.KeyVersion()), nil
}

func (r *MemoryTenantRepository) BumpKeyVersion(ctx context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tenants[id]
	if !ok {
		return 0, tenant.ErrNotFound
	}
	next := clone(cur, cur.KeyVersion()+1)
	r.tenants[id] = next
	return next.KeyVersion(), nil
}

func (r *MemoryTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, id)
	return nil
}

// MemoryAdminUserRepository keeps admin users in memory.
type MemoryAdminUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]adminuser.User

	// FailCreate, when set, is returned by Create.
	FailCreate error
}

func NewMemoryAdminUserRepository() *MemoryAdminUserRepository {
	return &MemoryAdminUserRepository{users: make(map[uuid.UUID]adminuser.User)}
}

func (r *MemoryAdminUserRepository) Create(ctx context.Context, u *adminuser.User) error {
	if r.FailCreate != nil {
		return r.FailCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryAdminUserRepository) GetByEmail(ctx context.Context, email string) (*adminuser.User, error) {
	email = adminuser.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, adminuser.ErrNotFound
}

func (r *MemoryAdminUserRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]*adminuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*adminuser.User
	for _, u := range r.users {
		if u.TenantID != tenantID || (activeOnly && !u.Active) {
			continue
		}
		cp := u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAdminUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

