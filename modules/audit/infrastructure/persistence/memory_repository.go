package persistence

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
)

// MemoryRepository keeps events per tenant in memory. It backs tests and offline tooling.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]event.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[uuid.UUID][]event.Event)}
}

func (r *MemoryRepository) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.events[e.TenantID] = append(r.events[e.TenantID], e)
	}
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) ([]event.Event, error) {
	if params == nil {
		params = &event.FindParams{}
	}
	r.mu.RLock()
	var out []event.Event
	for _, e := range r.events[tenantID] {
		if matches(e, params) {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Count(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) (int64, error) {
	if params == nil {
		params = &event.FindParams{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, e := range r.events[tenantID] {
		if matches(e, params) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) PurgeOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	return r.purge(tenantID, func(e event.Event) bool { return e.Timestamp.Before(cutoff) })
}

func (r *MemoryRepository) PurgeExpired(ctx context.Context, tenantID uuid.UUID, now time.Time) (int64, error) {
	return r.purge(tenantID, func(e event.Event) bool {
		exp := e.ExpiresAt()
		return !exp.IsZero() && exp.Before(now)
	})
}

func (r *MemoryRepository) purge(tenantID uuid.UUID, drop func(event.Event) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.events[tenantID])
	r.events[tenantID] = slices.DeleteFunc(r.events[tenantID], drop)
	return int64(before - len(r.events[tenantID])), nil
}

func matches(e event.Event, p *event.FindParams) bool {
	if len(p.Types) > 0 && !slices.Contains(p.Types, e.Type) {
		return false
	}
	if p.ResourceType != "" && e.ResourceType != p.ResourceType {
		return false
	}
	if p.ResourceID != "" && e.ResourceID != p.ResourceID {
		return false
	}
	if p.ActorID != nil && (e.ActorID == nil || *e.ActorID != *p.ActorID) {
		return false
	}
	if !p.From.IsZero() && e.Timestamp.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !e.Timestamp.Before(p.To) {
		return false
	}
	if p.SuccessOnly != nil && e.Success != *p.SuccessOnly {
		return false
	}
	return true
}
