package customer

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a pet owner. Email, Phone and Notes are stored encrypted.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(name string) *Customer {
	now := time.Now()
	return &Customer{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Customer) GetID() uuid.UUID       { return c.ID }
func (c *Customer) GetTenantID() uuid.UUID { return c.TenantID }
func (c *Customer) SetTenantID(id uuid.UUID) {
	c.TenantID = id
}
