package datarequest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSLA is how long a tenant has to close a request.
const DefaultSLA = 15 * 24 * time.Hour

type Kind string

const (
	KindAccess        Kind = "access"
	KindRectification Kind = "rectification"
	KindErasure       Kind = "erasure"
	KindPortability   Kind = "portability"
	KindObjection     Kind = "objection"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRectification, KindErasure, KindPortability, KindObjection:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusRejected, StatusCancelled},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// CanTransition reports whether a request in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Request struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	SubjectType string     `json:"subject_type"`
	SubjectID   uuid.UUID  `json:"subject_id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	DueDate     time.Time  `json:"due_date"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New opens a pending request due sla after now. A non-positive sla uses DefaultSLA.
func New(subjectType string, subjectID uuid.UUID, kind Kind, now time.Time, sla time.Duration) (*Request, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown data subject request kind %q", kind)
	}
	if sla <= 0 {
		sla = DefaultSLA
	}
	return &Request{
		ID:          uuid.New(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Kind:        kind,
		Status:      StatusPending,
		DueDate:     now.Add(sla),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *Request) GetID() uuid.UUID       { return r.ID }
func (r *Request) GetTenantID() uuid.UUID { return r.TenantID }
func (r *Request) SetTenantID(id uuid.UUID) {
	r.TenantID = id
}

// Transition moves the request to next, stamping ClosedAt when next is terminal.
func (r *Request) Transition(next Status, now time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("data subject request %s: cannot move from %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	if next.Terminal() {
		r.ClosedAt = &now
	}
	return nil
}

// Overdue reports whether the request is still open past its due date.
func (r *Request) Overdue(now time.Time) bool {
	return !r.Status.Terminal() && now.After(r.DueDate)
}
