package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenantcore/modules/compliance/domain/entities/datarequest"
	"github.com/iota-uz/tenantcore/modules/compliance/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

type DataRequestService struct {
	repo *tenantrepo.Repository[*datarequest.Request]
	sla  time.Duration
	now  func() time.Time
}

// NewDataRequestService builds the service. A non-positive sla uses datarequest.DefaultSLA.
func NewDataRequestService(store tenantrepo.Store, opts tenantrepo.Options, sla time.Duration) *DataRequestService {
	if sla <= 0 {
		sla = datarequest.DefaultSLA
	}
	return &DataRequestService{
		repo: tenantrepo.New[*datarequest.Request](store, persistence.DataRequestMapper{}, opts),
		sla:  sla,
		now:  time.Now,
	}
}

// Open files a new pending request for subject.
func (s *DataRequestService) Open(ctx context.Context, subject fieldcrypt.Subject, kind datarequest.Kind) (*datarequest.Request, error) {
	if err := authorize(ctx, principal.CapabilityConsentManage); err != nil {
		return nil, err
	}
	if subject.IsZero() {
		return nil, errors.New("data subject is required")
	}
	r, err := datarequest.New(subject.Type, subject.ID, kind, s.now(), s.sla)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, r)
}

// Transition moves request id to next, enforcing the request state machine.
func (s *DataRequestService) Transition(ctx context.Context, id uuid.UUID, next datarequest.Status, notes string) (*datarequest.Request, error) {
	if err := authorize(ctx, principal.CapabilityConsentManage); err != nil {
		return nil, err
	}
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Transition(next, s.now()); err != nil {
		return nil, err
	}
	if notes != "" {
		r.Notes = notes
	}
	updated, err := s.repo.Update(ctx, r)
	if err != nil {
		return nil, errors.Wrapf(err, "transition data subject request %s", id)
	}
	return updated, nil
}

// Overdue lists open requests of the current tenant past their due date.
func (s *DataRequestService) Overdue(ctx context.Context) ([]*datarequest.Request, error) {
	all, err := s.repo.FindAll(ctx, tenantrepo.Filter{OrderBy: "due_date"})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*datarequest.Request, 0)
	for _, r := range all {
		if r.Overdue(now) {
			out = append(out, r)
		}
	}
	return out, nil
}
