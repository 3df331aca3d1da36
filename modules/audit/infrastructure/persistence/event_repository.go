package persistence

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/pkg/repo"
)

const eventsTable = "public.audit_events"

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	eventColumns = []string{
		"id", "tenant_id", "actor_id", "event_type", "resource_type", "resource_id",
		"occurred_at", "success", "before_data", "after_data", "changes",
		"is_sensitive", "retention_days", "expires_at", "ip", "user_agent", "error_message",
	}
)

// EventRepository writes to the global audit_events table through its own connection pool, so
// audit rows survive the rollback of the transaction whose outcome they describe.
type EventRepository struct {
	db repo.Tx
}

func NewEventRepository(db repo.Tx) event.Repository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	b := psql.Insert(eventsTable).Columns(eventColumns...)
	for _, e := range events {
		before, err := marshalSnapshot(e.Before)
		if err != nil {
			return errors.Wrap(err, "marshal before snapshot")
		}
		after, err := marshalSnapshot(e.After)
		if err != nil {
			return errors.Wrap(err, "marshal after snapshot")
		}
		var changes any
		if len(e.Changes) > 0 {
			changes = []byte(e.Changes)
		}
		var expiresAt any
		if exp := e.ExpiresAt(); !exp.IsZero() {
			expiresAt = exp
		}
		b = b.Values(
			e.ID, e.TenantID, e.ActorID, string(e.Type), e.ResourceType, e.ResourceID,
			e.Timestamp, e.Success, before, after, changes,
			e.IsSensitive, e.RetentionDays, expiresAt, nullString(e.IP), nullString(e.UserAgent), nullString(e.ErrorMessage),
		)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to insert audit events")
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) ([]event.Event, error) {
	if params == nil {
		params = &event.FindParams{}
	}
	b := filtered(psql.Select(eventColumns...).From(eventsTable), tenantID, params).
		OrderBy("occurred_at DESC", "id")
	if params.Limit > 0 {
		b = b.Limit(uint64(params.Limit))
	}
	if params.Offset > 0 {
		b = b.Offset(uint64(params.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan audit event")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return out, nil
}

func (r *EventRepository) Count(ctx context.Context, tenantID uuid.UUID, params *event.FindParams) (int64, error) {
	if params == nil {
		params = &event.FindParams{}
	}
	query, args, err := filtered(psql.Select("COUNT(*)").From(eventsTable), tenantID, params).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count audit events")
	}
	return n, nil
}

func (r *EventRepository) PurgeOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	return r.purge(ctx, sq.And{sq.Eq{"tenant_id": tenantID}, sq.Lt{"occurred_at": cutoff}})
}

func (r *EventRepository) PurgeExpired(ctx context.Context, tenantID uuid.UUID, now time.Time) (int64, error) {
	return r.purge(ctx, sq.And{
		sq.Eq{"tenant_id": tenantID},
		sq.NotEq{"expires_at": nil},
		sq.Lt{"expires_at": now},
	})
}

func (r *EventRepository) purge(ctx context.Context, where sq.Sqlizer) (int64, error) {
	query, args, err := psql.Delete(eventsTable).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge audit events")
	}
	return tag.RowsAffected(), nil
}

func filtered(b sq.SelectBuilder, tenantID uuid.UUID, p *event.FindParams) sq.SelectBuilder {
	b = b.Where(sq.Eq{"tenant_id": tenantID})
	if len(p.Types) > 0 {
		types := make([]string, len(p.Types))
		for i, t := range p.Types {
			types[i] = string(t)
		}
		b = b.Where(sq.Eq{"event_type": types})
	}
	if p.ResourceType != "" {
		b = b.Where(sq.Eq{"resource_type": p.ResourceType})
	}
	if p.ResourceID != "" {
		b = b.Where(sq.Eq{"resource_id": p.ResourceID})
	}
	if p.ActorID != nil {
		b = b.Where(sq.Eq{"actor_id": *p.ActorID})
	}
	if !p.From.IsZero() {
		b = b.Where(sq.GtOrEq{"occurred_at": p.From})
	}
	if !p.To.IsZero() {
		b = b.Where(sq.Lt{"occurred_at": p.To})
	}
	if p.SuccessOnly != nil {
		b = b.Where(sq.Eq{"success": *p.SuccessOnly})
	}
	return b
}

func scanEvent(row pgx.Row) (event.Event, error) {
	var (
		e                       event.Event
		typ                     string
		before, after, changes  []byte
		expiresAt               *time.Time
		ip, userAgent, errorMsg *string
	)
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.ActorID, &typ, &e.ResourceType, &e.ResourceID,
		&e.Timestamp, &e.Success, &before, &after, &changes,
		&e.IsSensitive, &e.RetentionDays, &expiresAt, &ip, &userAgent, &errorMsg,
	); err != nil {
		return event.Event{}, err
	}
	e.Type = event.Type(typ)
	if err := unmarshalSnapshot(before, &e.Before); err != nil {
		return event.Event{}, err
	}
	if err := unmarshalSnapshot(after, &e.After); err != nil {
		return event.Event{}, err
	}
	if len(changes) > 0 {
		e.Changes = json.RawMessage(changes)
	}
	e.IP = deref(ip)
	e.UserAgent = deref(userAgent)
	e.ErrorMessage = deref(errorMsg)
	return e, nil
}

func marshalSnapshot(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalSnapshot(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
