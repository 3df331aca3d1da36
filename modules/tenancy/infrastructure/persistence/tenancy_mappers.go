package persistence

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence/models"
)

func toDBTenant(t *tenant.Tenant) (*models.Tenant, error) {
	limits, err := json.Marshal(t.PlanLimits())
	if err != nil {
		return nil, err
	}
	return &models.Tenant{
		ID:           t.ID().String(),
		Identifier:   t.Identifier(),
		PartitionKey: t.PartitionKey(),
		Name:         t.Name(),
		IsActive:     t.IsActive(),
		PlanLimits:   limits,
		KeyVersion:   t.KeyVersion(),
		CreatedAt:    t.CreatedAt(),
		UpdatedAt:    t.UpdatedAt(),
	}, nil
}

func toDomainTenant(t *models.Tenant) (*tenant.Tenant, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return nil, err
	}
	var limits tenant.PlanLimits
	if len(t.PlanLimits) > 0 {
		if err := json.Unmarshal(t.PlanLimits, &limits); err != nil {
			return nil, err
		}
	}
	return tenant.New(t.Identifier,
		tenant.WithID(id),
		tenant.WithName(t.Name),
		tenant.WithPartitionKey(t.PartitionKey),
		tenant.WithIsActive(t.IsActive),
		tenant.WithPlanLimits(limits),
		tenant.WithKeyVersion(t.KeyVersion),
		tenant.WithCreatedAt(t.CreatedAt),
		tenant.WithUpdatedAt(t.UpdatedAt),
	), nil
}

func toDomainUser(u *models.User) (*adminuser.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(u.TenantID)
	if err != nil {
		return nil, err
	}
	return &adminuser.User{
		ID:           id,
		TenantID:     tenantID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Active:       u.IsActive,
		CreatedAt:    u.CreatedAt,
	}, nil
}
