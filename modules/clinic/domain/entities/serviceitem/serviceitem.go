package serviceitem

import (
	"time"

	"github.com/google/uuid"
)

// ServiceItem is a catalogue entry seeded into every new tenant.
type ServiceItem struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func New(code, name string, priceCents int64) *ServiceItem {
	now := time.Now()
	return &ServiceItem{
		ID:         uuid.New(),
		Code:       code,
		Name:       name,
		PriceCents: priceCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *ServiceItem) GetID() uuid.UUID       { return s.ID }
func (s *ServiceItem) GetTenantID() uuid.UUID { return s.TenantID }
func (s *ServiceItem) SetTenantID(id uuid.UUID) {
	s.TenantID = id
}

// DefaultCatalog is the reference data every tenant starts with.
func DefaultCatalog() []*ServiceItem {
	return []*ServiceItem{
		New("consult", "General consultation", 8000),
		New("vaccine", "Vaccination", 6000),
		New("grooming", "Grooming", 5000),
	}
}
