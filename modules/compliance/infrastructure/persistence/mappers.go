package persistence

import (
	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/compliance/domain/entities/consent"
	"github.com/iota-uz/tenantcore/modules/compliance/domain/entities/datarequest"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

const (
	ConsentTable     = "consent_records"
	DataRequestTable = "data_subject_requests"
)

type ConsentMapper struct{}

func (ConsentMapper) Table() string { return ConsentTable }

func (ConsentMapper) Columns() []string {
	return []string{
		"id", "tenant_id", "subject_type", "subject_id", "purpose", "data_categories",
		"granted", "granted_at", "revoked_at", "created_at", "updated_at",
	}
}

func (ConsentMapper) ToRow(c *consent.Consent) map[string]any {
	categories := c.DataCategories
	if categories == nil {
		categories = []string{}
	}
	return map[string]any{
		"id":              c.ID,
		"tenant_id":       c.TenantID,
		"subject_type":    c.SubjectType,
		"subject_id":      c.SubjectID,
		"purpose":         c.Purpose,
		"data_categories": categories,
		"granted":         c.Granted,
		"granted_at":      tenantrepo.TimeOrNil(c.GrantedAt),
		"revoked_at":      tenantrepo.TimeOrNil(c.RevokedAt),
		"created_at":      c.CreatedAt,
		"updated_at":      c.UpdatedAt,
	}
}

func (ConsentMapper) FromRow(row map[string]any) (*consent.Consent, error) {
	ids, err := uuids(row, "id", "tenant_id", "subject_id")
	if err != nil {
		return nil, err
	}
	categories, err := tenantrepo.StringSliceValue(row["data_categories"])
	if err != nil {
		return nil, err
	}
	return &consent.Consent{
		ID:             ids[0],
		TenantID:       ids[1],
		SubjectType:    tenantrepo.StringValue(row["subject_type"]),
		SubjectID:      ids[2],
		Purpose:        tenantrepo.StringValue(row["purpose"]),
		DataCategories: categories,
		Granted:        tenantrepo.BoolValue(row["granted"]),
		GrantedAt:      tenantrepo.NullableTime(row["granted_at"]),
		RevokedAt:      tenantrepo.NullableTime(row["revoked_at"]),
		CreatedAt:      tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt:      tenantrepo.TimeValue(row["updated_at"]),
	}, nil
}

type DataRequestMapper struct{}

func (DataRequestMapper) Table() string { return DataRequestTable }

func (DataRequestMapper) Columns() []string {
	return []string{
		"id", "tenant_id", "subject_type", "subject_id", "kind", "status",
		"due_date", "closed_at", "notes", "created_at", "updated_at",
	}
}

func (DataRequestMapper) ToRow(r *datarequest.Request) map[string]any {
	return map[string]any{
		"id":           r.ID,
		"tenant_id":    r.TenantID,
		"subject_type": r.SubjectType,
		"subject_id":   r.SubjectID,
		"kind":         string(r.Kind),
		"status":       string(r.Status),
		"due_date":     r.DueDate,
		"closed_at":    tenantrepo.TimeOrNil(r.ClosedAt),
		"notes":        r.Notes,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
	}
}

func (DataRequestMapper) FromRow(row map[string]any) (*datarequest.Request, error) {
	ids, err := uuids(row, "id", "tenant_id", "subject_id")
	if err != nil {
		return nil, err
	}
	return &datarequest.Request{
		ID:          ids[0],
		TenantID:    ids[1],
		SubjectType: tenantrepo.StringValue(row["subject_type"]),
		SubjectID:   ids[2],
		Kind:        datarequest.Kind(tenantrepo.StringValue(row["kind"])),
		Status:      datarequest.Status(tenantrepo.StringValue(row["status"])),
		DueDate:     tenantrepo.TimeValue(row["due_date"]),
		ClosedAt:    tenantrepo.NullableTime(row["closed_at"]),
		Notes:       tenantrepo.StringValue(row["notes"]),
		CreatedAt:   tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt:   tenantrepo.TimeValue(row["updated_at"]),
	}, nil
}

// Register makes the compliance tables known to a PgStore.
func Register(pg *tenantrepo.PgStore) {
	pg.Register(ConsentTable, ConsentMapper{}.Columns()).
		Register(DataRequestTable, DataRequestMapper{}.Columns())
}

func uuids(row map[string]any, keys ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(keys))
	for i, k := range keys {
		id, err := tenantrepo.UUIDValue(row[k])
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
