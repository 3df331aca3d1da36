package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/eventbus"
	"github.com/iota-uz/tenantcore/pkg/constants"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

// KeyRotator is the part of the keyring the tenant service drives.
type KeyRotator interface {
	RotateKey(ctx context.Context, tenantID uuid.UUID) (int, error)
	Evict(tenantID uuid.UUID)
}

// PartitionDropper removes a tenant's partition.
type PartitionDropper interface {
	DropPartition(ctx context.Context, t *tenant.Tenant) error
}

// TenantService manages the lifecycle of registered tenants.
type TenantService struct {
	repo       tenant.Repository
	users      adminuser.Repository
	partitions PartitionDropper
	keys       KeyRotator
	publisher  eventbus.EventBus
	logger     *logrus.Entry
}

func NewTenantService(
	repo tenant.Repository,
	users adminuser.Repository,
	partitions PartitionDropper,
	keys KeyRotator,
	publisher eventbus.EventBus,
	logger *logrus.Entry,
) *TenantService {
	if logger == nil {
		logger = logging.Nop()
	}
	if publisher == nil {
		publisher = eventbus.NewEventPublisher(logger)
	}
	return &TenantService{
		repo:       repo,
		users:      users,
		partitions: partitions,
		keys:       keys,
		publisher:  publisher,
		logger:     logger.WithField("component", "tenancy"),
	}
}

func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TenantService) GetByIdentifier(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	return s.repo.GetByIdentifier(ctx, tenant.NormalizeIdentifier(identifier))
}

// Lookup accepts either a tenant id or an identifier.
func (s *TenantService) Lookup(ctx context.Context, ref string) (*tenant.Tenant, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.GetByID(ctx, id)
	}
	return s.GetByIdentifier(ctx, ref)
}

func (s *TenantService) List(ctx context.Context, params *tenant.FindParams) ([]*tenant.Tenant, error) {
	return s.repo.List(ctx, params)
}

// NewAdmin describes an additional administrator for an existing tenant.
type NewAdmin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"-" validate:"required,strong_password"`
}

// AddAdmin creates another administrator for tenant id, within the tenant's MaxUsers limit.
func (s *TenantService) AddAdmin(ctx context.Context, id uuid.UUID, in NewAdmin) (*adminuser.User, error) {
	if err := authorize(ctx, principal.CapabilityProvision); err != nil {
		return nil, err
	}
	in.Email = adminuser.NormalizeEmail(in.Email)
	if err := constants.Validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "invalid administrator")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, adminuser.ErrNotFound) {
		return nil, err
	}
	u, err := createAdmin(ctx, s.users, t, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("tenant_id", id.String()).Info("administrator added")
	return u, nil
}

// createAdmin is the only path that stores administrators, so the plan's user cap holds everywhere.
func createAdmin(ctx context.Context, users adminuser.Repository, t *tenant.Tenant, email, password string) (*adminuser.User, error) {
	if limit, ok := t.PlanLimits().UserLimit(); ok {
		existing, err := users.ListByTenant(ctx, t.ID(), false)
		if err != nil {
			return nil, err
		}
		if len(existing) >= limit {
			return nil, tenantrepo.ErrPlanLimitExceeded.WithMessage(fmt.Sprintf("administrator limit of %d reached", limit))
		}
	}
	u, err := adminuser.New(t.ID(), email, password)
	if err != nil {
		return nil, err
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Deactivate stops the tenant from resolving. Its data and keys stay in place.
func (s *TenantService) Deactivate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.setActive(ctx, id, false)
}

func (s *TenantService) Activate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.setActive(ctx, id, true)
}

func (s *TenantService) setActive(ctx context.Context, id uuid.UUID, active bool) (*tenant.Tenant, error) {
	if err := authorize(ctx, principal.CapabilityProvision); err != nil {
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsActive() == active {
		return t, nil
	}
	action := "deactivate"
	if active {
		t.Activate()
		action = "activate"
	} else {
		t.Deactivate()
	}
	updated, err := s.repo.Update(ctx, t)
	if err != nil {
		return nil, errors.Wrapf(err, "%s tenant %s", action, id)
	}
	getMetrics().lifecycle.WithLabelValues(action).Inc()
	s.logger.WithField("tenant_id", id.String()).Infof("tenant %sd", action)
	if active {
		s.publisher.Publish(tenant.NewActivatedEvent(updated))
	} else {
		s.publisher.Publish(tenant.NewDeactivatedEvent(updated))
	}
	return updated, nil
}

// HardDelete removes the tenant's partition, its administrators and its registry row. The tenant
// must be deactivated first.
func (s *TenantService) HardDelete(ctx context.Context, id uuid.UUID) error {
	if err := authorize(ctx, principal.CapabilityProvision); err != nil {
		return err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.IsActive() {
		return ErrTenantActive
	}
	if err := s.partitions.DropPartition(ctx, t); err != nil {
		return errors.Wrapf(err, "drop partition of %s", t.Identifier())
	}

	var result *multierror.Error
	users, err := s.users.ListByTenant(ctx, id, false)
	if err != nil {
		result = multierror.Append(result, err)
	}
	for _, u := range users {
		if err := s.users.Delete(ctx, u.ID); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "delete user %s", u.ID))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete tenant %s", id)
	}

	getMetrics().lifecycle.WithLabelValues("delete").Inc()
	s.logger.WithField("tenant_id", id.String()).Warn("tenant hard deleted")
	s.publisher.Publish(tenant.NewDeletedEvent(t))
	return nil
}

// RotateKey moves the tenant to a new key version. Data sealed under the previous key becomes
// unreadable.
func (s *TenantService) RotateKey(ctx context.Context, id uuid.UUID) (int, error) {
	if err := authorize(ctx, principal.CapabilityKeyRotate); err != nil {
		return 0, err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	v, err := s.keys.RotateKey(ctx, id)
	if err != nil {
		return 0, err
	}
	getMetrics().lifecycle.WithLabelValues("rotate_key").Inc()
	s.publisher.Publish(tenant.NewKeyRotatedEvent(t, v))
	return v, nil
}

// EvictKeysOnLifecycle drops cached keys of tenants as soon as they are deactivated or deleted.
func EvictKeysOnLifecycle(bus eventbus.EventBus, keys KeyRotator) {
	bus.Subscribe(func(e *tenant.DeactivatedEvent) {
		keys.Evict(e.Tenant.ID())
	})
	bus.Subscribe(func(e *tenant.DeletedEvent) {
		keys.Evict(e.Tenant.ID())
	})
}
