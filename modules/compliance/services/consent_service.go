package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/compliance/domain/entities/consent"
	"github.com/iota-uz/tenantcore/modules/compliance/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

// ConsentService manages consent records and answers consent checks for the field codec.
type ConsentService struct {
	repo *tenantrepo.Repository[*consent.Consent]
	now  func() time.Time
}

// NewConsentService builds the service on store. Mutations of consent records reach opts.Recorder
// as consent_change events.
func NewConsentService(store tenantrepo.Store, opts tenantrepo.Options) *ConsentService {
	if opts.Recorder != nil {
		opts.Recorder = consentChanges(opts.Recorder)
	}
	return &ConsentService{
		repo: tenantrepo.New[*consent.Consent](store, persistence.ConsentMapper{}, opts),
		now:  time.Now,
	}
}

func consentChanges(next event.Recorder) event.Recorder {
	return event.RecorderFunc(func(ctx context.Context, e event.Event) {
		switch e.Type {
		case event.TypeCreate, event.TypeUpdate, event.TypeDelete:
			e.Type = event.TypeConsentChange
		}
		next.Record(ctx, e)
	})
}

// Grant records a new active consent of subject for purpose covering categories.
func (s *ConsentService) Grant(ctx context.Context, subject fieldcrypt.Subject, purpose string, categories []string) (*consent.Consent, error) {
	if err := authorize(ctx, principal.CapabilityConsentManage); err != nil {
		return nil, err
	}
	if subject.IsZero() {
		return nil, errors.New("consent subject is required")
	}
	if len(categories) == 0 {
		return nil, errors.New("consent must cover at least one data category")
	}
	c := consent.New(subject.Type, subject.ID, purpose, categories)
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	c.GrantedAt = &c.CreatedAt
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "grant consent")
	}
	return created, nil
}

// Revoke withdraws consent id. Revoking twice is a no-op.
func (s *ConsentService) Revoke(ctx context.Context, id uuid.UUID) (*consent.Consent, error) {
	if err := authorize(ctx, principal.CapabilityConsentManage); err != nil {
		return nil, err
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return c, nil
	}
	c.Revoke(s.now())
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "revoke consent")
	}
	return updated, nil
}

// ListFor returns every consent of subject, active or not.
func (s *ConsentService) ListFor(ctx context.Context, subject fieldcrypt.Subject) ([]*consent.Consent, error) {
	return s.repo.FindAll(ctx, tenantrepo.Filter{
		Where:   map[string]any{"subject_type": subject.Type, "subject_id": subject.ID},
		OrderBy: "created_at",
	})
}

// ActiveFor returns the active consents of subject covering category.
func (s *ConsentService) ActiveFor(ctx context.Context, subject fieldcrypt.Subject, category string) ([]*consent.Consent, error) {
	all, err := s.ListFor(ctx, subject)
	if err != nil {
		return nil, err
	}
	out := make([]*consent.Consent, 0, len(all))
	for _, c := range all {
		if c.Covers(category) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *ConsentService) HasConsent(ctx context.Context, subject fieldcrypt.Subject, category string) (bool, error) {
	active, err := s.ActiveFor(ctx, subject, category)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// Require fails with fieldcrypt.ErrConsentMissing unless subject has an active consent for category.
func (s *ConsentService) Require(ctx context.Context, subject fieldcrypt.Subject, category string) error {
	ok, err := s.HasConsent(ctx, subject, category)
	if err != nil {
		return err
	}
	if !ok {
		return fieldcrypt.ErrConsentMissing
	}
	return nil
}
