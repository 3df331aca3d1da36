package tenant

import "time"

type CreatedEvent struct {
	Tenant    *Tenant
	Timestamp time.Time
}

type DeactivatedEvent struct {
	Tenant    *Tenant
	Timestamp time.Time
}

type ActivatedEvent struct {
	Tenant    *Tenant
	Timestamp time.Time
}

// DeletedEvent follows a hard delete; the tenant's partition is already gone.
type DeletedEvent struct {
	Tenant    *Tenant
	Timestamp time.Time
}

type KeyRotatedEvent struct {
	Tenant     *Tenant
	KeyVersion int
	Timestamp  time.Time
}

func NewCreatedEvent(t *Tenant) *CreatedEvent {
	return &CreatedEvent{Tenant: t, Timestamp: time.Now()}
}

func NewDeactivatedEvent(t *Tenant) *DeactivatedEvent {
	return &DeactivatedEvent{Tenant: t, Timestamp: time.Now()}
}

func NewActivatedEvent(t *Tenant) *ActivatedEvent {
	return &ActivatedEvent{Tenant: t, Timestamp: time.Now()}
}

func NewDeletedEvent(t *Tenant) *DeletedEvent {
	return &DeletedEvent{Tenant: t, Timestamp: time.Now()}
}

func NewKeyRotatedEvent(t *Tenant, version int) *KeyRotatedEvent {
	return &KeyRotatedEvent{Tenant: t, KeyVersion: version, Timestamp: time.Now()}
}
