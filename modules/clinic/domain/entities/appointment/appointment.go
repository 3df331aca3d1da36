package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	AnimalID    uuid.UUID `json:"animal_id"`
	ServiceID   uuid.UUID `json:"service_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New(customerID, animalID uuid.UUID, scheduledAt time.Time) *Appointment {
	now := time.Now()
	return &Appointment{
		ID:          uuid.New(),
		CustomerID:  customerID,
		AnimalID:    animalID,
		ScheduledAt: scheduledAt,
		Status:      StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (a *Appointment) GetID() uuid.UUID       { return a.ID }
func (a *Appointment) GetTenantID() uuid.UUID { return a.TenantID }
func (a *Appointment) SetTenantID(id uuid.UUID) {
	a.TenantID = id
}
