package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/serviceitem"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/constants"
	"github.com/iota-uz/tenantcore/pkg/eventbus"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

func init() {
	constants.RegisterIdentifierRule(tenant.ValidIdentifier)
}

const (
	StepValidate  = "validate"
	StepRegistry  = "registry"
	StepPartition = "partition"
	StepMigrate   = "migrate"
	StepAdmin     = "admin"
	StepSeed      = "seed"
)

// Partitioner is what provisioning needs from the partition router.
type Partitioner interface {
	PartitionExists(ctx context.Context, t *tenant.Tenant) (bool, error)
	EnsurePartitionExists(ctx context.Context, t *tenant.Tenant) error
	Migrate(ctx context.Context, t *tenant.Tenant) (int, error)
	MissingMigrations(ctx context.Context, t *tenant.Tenant) ([]string, error)
	DropPartition(ctx context.Context, t *tenant.Tenant) error
	WithPartition(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) error
}

// Spec describes a tenant to provision.
type Spec struct {
	Identifier    string            `json:"identifier" validate:"required,tenant_identifier"`
	Name          string            `json:"name" validate:"omitempty,max=255"`
	AdminEmail    string            `json:"admin_email" validate:"required,email"`
	AdminPassword string            `json:"-" validate:"required,strong_password"`
	PlanLimits    tenant.PlanLimits `json:"plan_limits"`
}

func (s *Spec) Normalize() {
	s.Identifier = tenant.NormalizeIdentifier(s.Identifier)
	s.Name = strings.TrimSpace(s.Name)
	s.AdminEmail = adminuser.NormalizeEmail(s.AdminEmail)
}

type StepStatus string

const (
	StepDone               StepStatus = "done"
	StepFailed             StepStatus = "failed"
	StepCompensated        StepStatus = "compensated"
	StepCompensationFailed StepStatus = "compensation_failed"
)

type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Report lists what provisioning did and, on failure, what it undid.
type Report struct {
	TenantID       string       `json:"tenant_id,omitempty"`
	Steps          []StepResult `json:"steps"`
	RollbackErrors []string     `json:"rollback_errors,omitempty"`
}

func (r *Report) add(name string, status StepStatus, err error) {
	res := StepResult{Name: name, Status: status}
	if err != nil {
		res.Error = err.Error()
	}
	r.Steps = append(r.Steps, res)
}

func (r *Report) set(name string, status StepStatus, err error) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Name == name {
			r.Steps[i].Status = status
			if err != nil {
				r.Steps[i].Error = err.Error()
			}
			return
		}
	}
}

// Step returns the result recorded for name.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// ProvisioningError is returned when provisioning fails. It matches ErrProvisioningFailed and the
// original cause under errors.Is.
type ProvisioningError struct {
	Step   string
	Err    error
	Report *Report
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
	if e.Report != nil && len(e.Report.RollbackErrors) > 0 {
		msg += fmt.Sprintf(" (rollback incomplete: %s)", strings.Join(e.Report.RollbackErrors, "; "))
	}
	return msg
}

func (e *ProvisioningError) Unwrap() []error {
	return []error{ErrProvisioningFailed, e.Err}
}

type ProvisioningOptions struct {
	Publisher eventbus.EventBus
	Logger    *logrus.Entry
}

// ProvisioningService creates tenants as a saga: every completed step is undone in reverse order
// when a later one fails.
type ProvisioningService struct {
	tenants    tenant.Repository
	users      adminuser.Repository
	partitions Partitioner
	catalog    *tenantrepo.Repository[*serviceitem.ServiceItem]
	publisher  eventbus.EventBus
	logger     *logrus.Entry
}

func NewProvisioningService(
	tenants tenant.Repository,
	users adminuser.Repository,
	partitions Partitioner,
	catalog *tenantrepo.Repository[*serviceitem.ServiceItem],
	opts ProvisioningOptions,
) *ProvisioningService {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.NewEventPublisher(opts.Logger)
	}
	return &ProvisioningService{
		tenants:    tenants,
		users:      users,
		partitions: partitions,
		catalog:    catalog,
		publisher:  opts.Publisher,
		logger:     opts.Logger.WithField("component", "provisioning"),
	}
}

type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// CreateTenant validates spec, then registers the tenant, creates and migrates its partition,
// creates its first administrator and seeds reference data. On failure everything already done is
// compensated once and the error wraps ErrProvisioningFailed.
func (s *ProvisioningService) CreateTenant(ctx context.Context, spec Spec) (*tenant.Tenant, *Report, error) {
	start := time.Now()
	m := getMetrics()
	defer func() { m.provisionTime.Observe(time.Since(start).Seconds()) }()

	report := &Report{}
	if err := authorize(ctx, principal.CapabilityProvision); err != nil {
		return nil, report, err
	}

	spec.Normalize()
	if err := s.validate(ctx, spec); err != nil {
		report.add(StepValidate, StepFailed, err)
		m.provisioning.WithLabelValues("invalid").Inc()
		return nil, report, &ProvisioningError{Step: StepValidate, Err: err, Report: report}
	}
	report.add(StepValidate, StepDone, nil)

	name := spec.Name
	if name == "" {
		name = spec.Identifier
	}
	t := tenant.New(spec.Identifier, tenant.WithName(name), tenant.WithPlanLimits(spec.PlanLimits))
	report.TenantID = t.ID().String()
	var admin *adminuser.User

	steps := []sagaStep{
		{
			name: StepRegistry,
			run: func(ctx context.Context) error {
				created, err := s.tenants.Create(ctx, t)
				if err != nil {
					return err
				}
				t = created
				return nil
			},
			compensate: func(ctx context.Context) error { return s.tenants.Delete(ctx, t.ID()) },
		},
		{
			name:       StepPartition,
			run:        func(ctx context.Context) error { return s.partitions.EnsurePartitionExists(ctx, t) },
			compensate: func(ctx context.Context) error { return s.partitions.DropPartition(ctx, t) },
		},
		{
			// Migrated objects live inside the partition and go with it.
			name: StepMigrate,
			run: func(ctx context.Context) error {
				n, err := s.partitions.Migrate(ctx, t)
				if err == nil {
					s.logger.WithField("tenant_id", t.ID().String()).Infof("applied %d partition migrations", n)
				}
				return err
			},
		},
		{
			name: StepAdmin,
			run: func(ctx context.Context) error {
				u, err := createAdmin(ctx, s.users, t, spec.AdminEmail, spec.AdminPassword)
				if err != nil {
					return err
				}
				admin = u
				return nil
			},
			compensate: func(ctx context.Context) error { return s.users.Delete(ctx, admin.ID) },
		},
		{
			// Seed rows live inside the partition and go with it.
			name: StepSeed,
			run: func(ctx context.Context) error {
				return s.partitions.WithPartition(ctx, t, func(ctx context.Context) error {
					_, err := s.catalog.BulkCreate(ctx, serviceitem.DefaultCatalog())
					return err
				})
			},
		},
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, report, s.rollback(ctx, steps[:i], report, step.name, err)
		}
		if err := step.run(ctx); err != nil {
			report.add(step.name, StepFailed, err)
			return nil, report, s.rollback(ctx, steps[:i], report, step.name, err)
		}
		report.add(step.name, StepDone, nil)
	}

	m.provisioning.WithLabelValues("success").Inc()
	s.logger.WithFields(logrus.Fields{
		"tenant_id": t.ID().String(),
		"partition": t.PartitionKey(),
	}).Info("tenant provisioned")
	s.publisher.Publish(tenant.NewCreatedEvent(t))
	return t, report, nil
}

// rollback compensates done in reverse order. Each compensation runs exactly once; its failure is
// recorded and does not stop the remaining ones.
func (s *ProvisioningService) rollback(ctx context.Context, done []sagaStep, report *Report, failed string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var result *multierror.Error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			report.set(step.name, StepCompensated, nil)
			continue
		}
		if err := step.compensate(ctx); err != nil {
			err = errors.Wrapf(err, "compensate %s", step.name)
			result = multierror.Append(result, err)
			report.set(step.name, StepCompensationFailed, err)
			continue
		}
		report.set(step.name, StepCompensated, nil)
	}

	outcome := "rolled_back"
	if err := result.ErrorOrNil(); err != nil {
		outcome = "rollback_failed"
		for _, e := range result.Errors {
			report.RollbackErrors = append(report.RollbackErrors, e.Error())
		}
		s.logger.WithError(err).WithField("tenant_id", report.TenantID).Error("provisioning rollback incomplete")
	}
	getMetrics().provisioning.WithLabelValues(outcome).Inc()
	s.logger.WithError(cause).WithFields(logrus.Fields{
		"tenant_id": report.TenantID,
		"step":      failed,
	}).Warn("tenant provisioning failed")
	return &ProvisioningError{Step: failed, Err: cause, Report: report}
}

func (s *ProvisioningService) validate(ctx context.Context, spec Spec) error {
	if err := constants.Validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return errors.Errorf("invalid tenant spec: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if _, err := s.tenants.GetByIdentifier(ctx, spec.Identifier); err == nil {
		return tenant.ErrIdentifierTaken
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, spec.AdminEmail); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, adminuser.ErrNotFound) {
		return err
	}
	return nil
}

// Check is one line of a provisioning validation.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type ValidationReport struct {
	TenantID string  `json:"tenant_id"`
	Checks   []Check `json:"checks"`
}

func (r *ValidationReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// ValidateProvisioning reports whether t has a partition, all partition migrations, an active
// administrator and its seed data.
func (s *ProvisioningService) ValidateProvisioning(ctx context.Context, t *tenant.Tenant) (*ValidationReport, error) {
	if err := authorize(ctx, principal.CapabilityProvision); err != nil {
		return nil, err
	}
	report := &ValidationReport{TenantID: t.ID().String()}
	add := func(name string, ok bool, detail string) {
		report.Checks = append(report.Checks, Check{Name: name, OK: ok, Detail: detail})
	}

	exists, err := s.partitions.PartitionExists(ctx, t)
	if err != nil {
		return nil, err
	}
	add("partition_exists", exists, t.PartitionKey())
	if !exists {
		add("migrations_applied", false, "partition missing")
		add("seed_data", false, "partition missing")
	} else {
		missing, err := s.partitions.MissingMigrations(ctx, t)
		if err != nil {
			return nil, err
		}
		add("migrations_applied", len(missing) == 0, strings.Join(missing, ","))

		var seeded int64
		err = s.partitions.WithPartition(ctx, t, func(ctx context.Context) error {
			var cerr error
			seeded, cerr = s.catalog.Count(ctx, tenantrepo.Filter{})
			return cerr
		})
		if err != nil {
			return nil, err
		}
		add("seed_data", seeded > 0, fmt.Sprintf("%d %s rows", seeded, s.catalog.Table()))
	}

	admins, err := s.users.ListByTenant(ctx, t.ID(), true)
	if err != nil {
		return nil, err
	}
	add("active_admin", len(admins) > 0, fmt.Sprintf("%d active", len(admins)))
	return report, nil
}
