package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeCreate        Type = "create"
	TypeRead          Type = "read"
	TypeUpdate        Type = "update"
	TypeDelete        Type = "delete"
	TypeLogin         Type = "login"
	TypeLogout        Type = "logout"
	TypeExport        Type = "export"
	TypeSecurityEvent Type = "security_event"
	TypeConsentChange Type = "consent_change"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCreate, TypeRead, TypeUpdate, TypeDelete, TypeLogin, TypeLogout,
		TypeExport, TypeSecurityEvent, TypeConsentChange:
		return true
	}
	return false
}

// Event is an append-only audit record. TenantID is always taken from the recording context.
type Event struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ActorID       *uuid.UUID
	Type          Type
	ResourceType  string
	ResourceID    string
	Timestamp     time.Time
	Success       bool
	Before        map[string]any
	After         map[string]any
	Changes       json.RawMessage
	IsSensitive   bool
	RetentionDays int
	IP            string
	UserAgent     string
	ErrorMessage  string
}

// ExpiresAt is the moment the event becomes eligible for purging. Zero retention never expires.
func (e Event) ExpiresAt() time.Time {
	if e.RetentionDays <= 0 {
		return time.Time{}
	}
	return e.Timestamp.AddDate(0, 0, e.RetentionDays)
}

// Recorder accepts events. Implementations never fail the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Event)

func (f RecorderFunc) Record(ctx context.Context, e Event) {
	f(ctx, e)
}

// NopRecorder discards events.
var NopRecorder Recorder = RecorderFunc(func(context.Context, Event) {})

type FindParams struct {
	Types        []Type
	ResourceType string
	ResourceID   string
	ActorID      *uuid.UUID
	From         time.Time
	To           time.Time
	SuccessOnly  *bool
	Limit        int
	Offset       int
}

// Repository stores events. Every method is scoped to exactly one tenant.
type Repository interface {
	Append(ctx context.Context, events ...Event) error
	List(ctx context.Context, tenantID uuid.UUID, params *FindParams) ([]Event, error)
	Count(ctx context.Context, tenantID uuid.UUID, params *FindParams) (int64, error)
	PurgeOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error)
	PurgeExpired(ctx context.Context, tenantID uuid.UUID, now time.Time) (int64, error)
}
