package animal

import (
	"time"

	"github.com/google/uuid"
)

type Animal struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	Name         string    `json:"name"`
	Species      string    `json:"species"`
	MedicalNotes string    `json:"medical_notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func New(customerID uuid.UUID, name, species string) *Animal {
	now := time.Now()
	return &Animal{
		ID:         uuid.New(),
		CustomerID: customerID,
		Name:       name,
		Species:    species,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (a *Animal) GetID() uuid.UUID       { return a.ID }
func (a *Animal) GetTenantID() uuid.UUID { return a.TenantID }
func (a *Animal) SetTenantID(id uuid.UUID) {
	a.TenantID = id
}
