package tenantrepo

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/logging"
)

type Options struct {
	Scoper   Scoper
	Codec    *fieldcrypt.Codec
	Recorder event.Recorder
	Logger   *logrus.Entry
}

// Repository is the only way tenant-owned rows are read or written. Every call is filtered by,
// stamped with and audited against the tenant in ctx.
type Repository[T Entity] struct {
	store    Store
	mapper   Mapper[T]
	scoper   Scoper
	codec    *fieldcrypt.Codec
	recorder event.Recorder
	logger   *logrus.Entry

	sensitive  []fieldcrypt.Field
	refs       []Reference
	auditReads bool
	subjectOf  func(map[string]any) fieldcrypt.Subject
}

func New[T Entity](store Store, mapper Mapper[T], opts Options) *Repository[T] {
	if opts.Scoper == nil {
		opts.Scoper = DirectScope{}
	}
	if opts.Recorder == nil {
		opts.Recorder = event.NopRecorder
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	r := &Repository[T]{
		store:     store,
		mapper:    mapper,
		scoper:    opts.Scoper,
		codec:     opts.Codec,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		subjectOf: func(map[string]any) fieldcrypt.Subject { return fieldcrypt.Subject{} },
	}
	if s, ok := any(mapper).(Sensitive); ok {
		r.sensitive = s.SensitiveFields()
	}
	if s, ok := any(mapper).(SubjectResolver); ok {
		r.subjectOf = s.SubjectOf
	}
	if ref, ok := any(mapper).(Referencing); ok {
		r.refs = ref.References()
	}
	if ra, ok := any(mapper).(ReadAudited); ok {
		r.auditReads = ra.AuditReads()
	}
	return r
}

// WithCodec returns a repository sharing r's configuration with a different codec, typically one
// bound to a consent checker.
func (r *Repository[T]) WithCodec(codec *fieldcrypt.Codec) *Repository[T] {
	cp := *r
	cp.codec = codec
	return &cp
}

func (r *Repository[T]) Table() string {
	return r.mapper.Table()
}

// FindAll returns the current tenant's rows matching f. Without a tenant it returns nothing.
func (r *Repository[T]) FindAll(ctx context.Context, f Filter) ([]T, error) {
	t, err := composables.UseTenant(ctx)
	if err != nil {
		r.logger.WithField("resource", r.mapper.Table()).Debug("FindAll without tenant; returning no rows")
		return nil, nil
	}
	var out []T
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		rows, err := r.store.Select(ctx, r.mapper.Table(), r.mapper.Columns(), t.ID(), f)
		if err != nil {
			return err
		}
		out = make([]T, 0, len(rows))
		for _, row := range rows {
			e, err := r.decode(ctx, t, row)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID returns the current tenant's row id. Rows of other tenants are reported as ErrNotFound.
func (r *Repository[T]) FindByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	t, err := composables.UseTenant(ctx)
	if err != nil {
		return zero, ErrTenantContextRequired
	}
	var out T
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		row, err := r.store.Get(ctx, r.mapper.Table(), r.mapper.Columns(), t.ID(), id)
		if err != nil {
			return err
		}
		out, err = r.decode(ctx, t, row)
		return err
	})
	if r.auditReads {
		r.record(ctx, event.TypeRead, id, nil, nil, err)
	}
	if err != nil {
		return zero, err
	}
	return out, nil
}

// Count returns how many rows of the current tenant match f. Without a tenant it returns zero.
func (r *Repository[T]) Count(ctx context.Context, f Filter) (int64, error) {
	t, err := composables.UseTenant(ctx)
	if err != nil {
		return 0, nil
	}
	var n int64
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		var err error
		n, err = r.store.Count(ctx, r.mapper.Table(), t.ID(), f)
		return err
	})
	return n, err
}

// Create stamps e with the current tenant and inserts it.
func (r *Repository[T]) Create(ctx context.Context, e T) (T, error) {
	var zero T
	t, err := composables.UseTenant(ctx)
	if err != nil {
		r.record(ctx, event.TypeCreate, e.GetID(), nil, nil, ErrTenantContextRequired)
		return zero, ErrTenantContextRequired
	}
	if err := stamp(e, t); err != nil {
		r.record(ctx, event.TypeCreate, e.GetID(), nil, nil, err)
		return zero, err
	}

	row := r.mapper.ToRow(e)
	after := fieldcrypt.MaskRow(r.sensitive, row)
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		if err := r.checkPlanLimit(ctx, t, 1); err != nil {
			return err
		}
		stored, err := r.prepare(ctx, t, row)
		if err != nil {
			return err
		}
		return r.store.Insert(ctx, r.mapper.Table(), stored)
	})
	r.record(ctx, event.TypeCreate, e.GetID(), nil, after, err)
	if err != nil {
		return zero, err
	}
	return e, nil
}

// BulkCreate inserts every entity or none. Ownership of all elements is checked before anything
// is written.
func (r *Repository[T]) BulkCreate(ctx context.Context, entities []T) ([]T, error) {
	t, err := composables.UseTenant(ctx)
	if err != nil {
		for _, e := range entities {
			r.record(ctx, event.TypeCreate, e.GetID(), nil, nil, ErrTenantContextRequired)
		}
		return nil, ErrTenantContextRequired
	}
	if len(entities) == 0 {
		return entities, nil
	}

	var stampErr error
	for i, e := range entities {
		if err := stamp(e, t); err != nil {
			stampErr = fmt.Errorf("element %d: %w", i, err)
			break
		}
	}
	rows := make([]map[string]any, len(entities))
	snapshots := make([]map[string]any, len(entities))
	if stampErr == nil {
		for i, e := range entities {
			rows[i] = r.mapper.ToRow(e)
			snapshots[i] = fieldcrypt.MaskRow(r.sensitive, rows[i])
		}
	}

	err = stampErr
	if err == nil {
		err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
			if err := r.checkPlanLimit(ctx, t, len(entities)); err != nil {
				return err
			}
			stored := make([]map[string]any, len(rows))
			for i, row := range rows {
				s, err := r.prepare(ctx, t, row)
				if err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
				stored[i] = s
			}
			return r.store.Insert(ctx, r.mapper.Table(), stored...)
		})
	}
	for i, e := range entities {
		r.record(ctx, event.TypeCreate, e.GetID(), nil, snapshots[i], err)
	}
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// Update replaces the stored row of e after confirming the current tenant owns it.
func (r *Repository[T]) Update(ctx context.Context, e T) (T, error) {
	var zero T
	t, err := composables.UseTenant(ctx)
	if err != nil {
		r.record(ctx, event.TypeUpdate, e.GetID(), nil, nil, ErrTenantContextRequired)
		return zero, ErrTenantContextRequired
	}

	var before, after map[string]any
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		prev, err := r.owned(ctx, t, e.GetID())
		if err != nil {
			return err
		}
		before = fieldcrypt.MaskRow(r.sensitive, prev)
		if e.GetTenantID() != uuid.Nil && e.GetTenantID() != t.ID() {
			return ErrCrossTenantViolation
		}
		e.SetTenantID(t.ID())

		row := r.mapper.ToRow(e)
		after = fieldcrypt.MaskRow(r.sensitive, row)
		redacted := r.redactedFields(row)
		stored, err := r.prepare(ctx, t, row)
		if err != nil {
			return err
		}
		// A redacted value was never seen by the caller; keep the stored ciphertext.
		for _, name := range redacted {
			stored[name] = prev[name]
		}
		n, err := r.store.Update(ctx, r.mapper.Table(), t.ID(), e.GetID(), stored)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	r.record(ctx, event.TypeUpdate, e.GetID(), before, after, err)
	if err != nil {
		return zero, err
	}
	return e, nil
}

// Delete removes row id after confirming the current tenant owns it.
func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := composables.UseTenant(ctx)
	if err != nil {
		r.record(ctx, event.TypeDelete, id, nil, nil, ErrTenantContextRequired)
		return ErrTenantContextRequired
	}

	var before map[string]any
	err = r.scoper.WithPartition(ctx, t, func(ctx context.Context) error {
		prev, err := r.owned(ctx, t, id)
		if err != nil {
			return err
		}
		before = fieldcrypt.MaskRow(r.sensitive, prev)
		n, err := r.store.Delete(ctx, r.mapper.Table(), t.ID(), id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	r.record(ctx, event.TypeDelete, id, before, nil, err)
	return err
}

// owned re-reads the persisted owner of id before any mutation.
func (r *Repository[T]) owned(ctx context.Context, t *tenant.Tenant, id uuid.UUID) (map[string]any, error) {
	owner, found, err := r.store.Owner(ctx, r.mapper.Table(), id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if owner != t.ID() {
		r.logger.WithFields(logrus.Fields{
			"tenant_id": t.ID().String(),
			"resource":  r.mapper.Table(),
		}).Warn("cross-tenant mutation rejected")
		return nil, ErrCrossTenantViolation
	}
	return r.store.Get(ctx, r.mapper.Table(), r.mapper.Columns(), t.ID(), id)
}

// prepare validates references and encrypts sensitive columns on a copy of row.
func (r *Repository[T]) prepare(ctx context.Context, t *tenant.Tenant, row map[string]any) (map[string]any, error) {
	if err := r.checkReferences(ctx, t, row); err != nil {
		return nil, err
	}
	stored := maps.Clone(row)
	if len(r.sensitive) == 0 {
		return stored, nil
	}
	if r.codec == nil {
		return nil, fmt.Errorf("tenantrepo: %s has sensitive fields but no codec", r.mapper.Table())
	}
	if err := r.codec.SealRow(ctx, r.sensitive, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Repository[T]) redactedFields(row map[string]any) []string {
	var names []string
	for _, f := range r.sensitive {
		if v, ok := row[f.Name].(string); ok && v == fieldcrypt.Redacted {
			names = append(names, f.Name)
		}
	}
	return names
}

func (r *Repository[T]) decode(ctx context.Context, t *tenant.Tenant, row map[string]any) (T, error) {
	var zero T
	owner, err := UUIDValue(row["tenant_id"])
	if err != nil {
		return zero, err
	}
	if owner != t.ID() {
		// The store returned a row it should have filtered out.
		return zero, ErrNotFound
	}
	if len(r.sensitive) > 0 {
		if r.codec == nil {
			return zero, fmt.Errorf("tenantrepo: %s has sensitive fields but no codec", r.mapper.Table())
		}
		row = maps.Clone(row)
		if err := r.codec.OpenRow(ctx, r.subjectOf(row), r.sensitive, row); err != nil {
			return zero, err
		}
	}
	return r.mapper.FromRow(row)
}

func (r *Repository[T]) checkReferences(ctx context.Context, t *tenant.Tenant, row map[string]any) error {
	for _, ref := range r.refs {
		raw := row[ref.Column]
		id, err := UUIDValue(raw)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.mapper.Table(), ref.Column, err)
		}
		if id == uuid.Nil {
			if ref.Optional {
				continue
			}
			return ErrTenantMismatch.WithMessage(fmt.Sprintf("%s.%s is required", r.mapper.Table(), ref.Column))
		}
		ok, err := r.store.Exists(ctx, ref.Table, t.ID(), id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTenantMismatch.WithMessage(fmt.Sprintf("%s.%s references a %s row outside the current tenant", r.mapper.Table(), ref.Column, ref.Table))
		}
	}
	return nil
}

func (r *Repository[T]) checkPlanLimit(ctx context.Context, t *tenant.Tenant, adding int) error {
	limit, ok := t.PlanLimits().EntityLimit(r.mapper.Table())
	if !ok {
		return nil
	}
	n, err := r.store.Count(ctx, r.mapper.Table(), t.ID(), Filter{})
	if err != nil {
		return err
	}
	if n+int64(adding) > int64(limit) {
		return ErrPlanLimitExceeded.WithMessage(fmt.Sprintf("%s limit of %d reached", r.mapper.Table(), limit))
	}
	return nil
}

func (r *Repository[T]) record(ctx context.Context, typ event.Type, id uuid.UUID, before, after map[string]any, err error) {
	e := event.Event{
		Type:         typ,
		ResourceType: r.mapper.Table(),
		ResourceID:   id.String(),
		Success:      err == nil,
		Before:       before,
		After:        after,
		IsSensitive:  len(r.sensitive) > 0,
	}
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	event.Emit(ctx, r.recorder, e)
}

func stamp(e Entity, t *tenant.Tenant) error {
	switch e.GetTenantID() {
	case uuid.Nil:
		e.SetTenantID(t.ID())
		return nil
	case t.ID():
		return nil
	default:
		return ErrCrossTenantViolation
	}
}
