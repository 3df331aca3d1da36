package persistence

import (
	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/animal"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/appointment"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/customer"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/serviceitem"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

const (
	CustomersTable    = "customers"
	AnimalsTable      = "animals"
	AppointmentsTable = "appointments"
	ServiceTable      = "service_catalog"

	SubjectCustomer = "customer"
)

type CustomerMapper struct{}

func (CustomerMapper) Table() string { return CustomersTable }

func (CustomerMapper) Columns() []string {
	return []string{"id", "tenant_id", "name", "email", "phone", "notes", "created_at", "updated_at"}
}

func (CustomerMapper) ToRow(c *customer.Customer) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"tenant_id":  c.TenantID,
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Phone,
		"notes":      c.Notes,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}

func (CustomerMapper) FromRow(row map[string]any) (*customer.Customer, error) {
	id, err := tenantrepo.UUIDValue(row["id"])
	if err != nil {
		return nil, err
	}
	tenantID, err := tenantrepo.UUIDValue(row["tenant_id"])
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		ID:        id,
		TenantID:  tenantID,
		Name:      tenantrepo.StringValue(row["name"]),
		Email:     tenantrepo.StringValue(row["email"]),
		Phone:     tenantrepo.StringValue(row["phone"]),
		Notes:     tenantrepo.StringValue(row["notes"]),
		CreatedAt: tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt: tenantrepo.TimeValue(row["updated_at"]),
	}, nil
}

func (CustomerMapper) SensitiveFields() []fieldcrypt.Field {
	return []fieldcrypt.Field{
		{Name: "email"},
		{Name: "phone"},
		{Name: "notes", Category: "personal_notes", RequiresConsent: true},
	}
}

func (CustomerMapper) SubjectOf(row map[string]any) fieldcrypt.Subject {
	id, _ := tenantrepo.UUIDValue(row["id"])
	return fieldcrypt.Subject{Type: SubjectCustomer, ID: id}
}

func (CustomerMapper) AuditReads() bool { return true }

type AnimalMapper struct{}

func (AnimalMapper) Table() string { return AnimalsTable }

func (AnimalMapper) Columns() []string {
	return []string{"id", "tenant_id", "customer_id", "name", "species", "medical_notes", "created_at", "updated_at"}
}

func (AnimalMapper) ToRow(a *animal.Animal) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"tenant_id":     a.TenantID,
		"customer_id":   a.CustomerID,
		"name":          a.Name,
		"species":       a.Species,
		"medical_notes": a.MedicalNotes,
		"created_at":    a.CreatedAt,
		"updated_at":    a.UpdatedAt,
	}
}

func (AnimalMapper) FromRow(row map[string]any) (*animal.Animal, error) {
	ids, err := uuids(row, "id", "tenant_id", "customer_id")
	if err != nil {
		return nil, err
	}
	return &animal.Animal{
		ID:           ids[0],
		TenantID:     ids[1],
		CustomerID:   ids[2],
		Name:         tenantrepo.StringValue(row["name"]),
		Species:      tenantrepo.StringValue(row["species"]),
		MedicalNotes: tenantrepo.StringValue(row["medical_notes"]),
		CreatedAt:    tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt:    tenantrepo.TimeValue(row["updated_at"]),
	}, nil
}

func (AnimalMapper) SensitiveFields() []fieldcrypt.Field {
	return []fieldcrypt.Field{{Name: "medical_notes", Category: "health", RequiresConsent: true}}
}

// SubjectOf attributes an animal's health data to its owner.
func (AnimalMapper) SubjectOf(row map[string]any) fieldcrypt.Subject {
	id, _ := tenantrepo.UUIDValue(row["customer_id"])
	return fieldcrypt.Subject{Type: SubjectCustomer, ID: id}
}

func (AnimalMapper) References() []tenantrepo.Reference {
	return []tenantrepo.Reference{{Column: "customer_id", Table: CustomersTable}}
}

type AppointmentMapper struct{}

func (AppointmentMapper) Table() string { return AppointmentsTable }

func (AppointmentMapper) Columns() []string {
	return []string{"id", "tenant_id", "customer_id", "animal_id", "service_id", "scheduled_at", "status", "notes", "created_at", "updated_at"}
}

func (AppointmentMapper) ToRow(a *appointment.Appointment) map[string]any {
	return map[string]any{
		"id":           a.ID,
		"tenant_id":    a.TenantID,
		"customer_id":  a.CustomerID,
		"animal_id":    a.AnimalID,
		"service_id":   tenantrepo.NullableUUID(a.ServiceID),
		"scheduled_at": a.ScheduledAt,
		"status":       a.Status,
		"notes":        a.Notes,
		"created_at":   a.CreatedAt,
		"updated_at":   a.UpdatedAt,
	}
}

func (AppointmentMapper) FromRow(row map[string]any) (*appointment.Appointment, error) {
	ids, err := uuids(row, "id", "tenant_id", "customer_id", "animal_id", "service_id")
	if err != nil {
		return nil, err
	}
	return &appointment.Appointment{
		ID:          ids[0],
		TenantID:    ids[1],
		CustomerID:  ids[2],
		AnimalID:    ids[3],
		ServiceID:   ids[4],
		ScheduledAt: tenantrepo.TimeValue(row["scheduled_at"]),
		Status:      tenantrepo.StringValue(row["status"]),
		Notes:       tenantrepo.StringValue(row["notes"]),
		CreatedAt:   tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt:   tenantrepo.TimeValue(row["updated_at"]),
	}, nil
}

func (AppointmentMapper) References() []tenantrepo.Reference {
	return []tenantrepo.Reference{
		{Column: "customer_id", Table: CustomersTable},
		{Column: "animal_id", Table: AnimalsTable},
		{Column: "service_id", Table: ServiceTable, Optional: true},
	}
}

type ServiceItemMapper struct{}

func (ServiceItemMapper) Table() string { return ServiceTable }

func (ServiceItemMapper) Columns() []string {
	return []string{"id", "tenant_id", "code", "name", "price_cents", "created_at", "updated_at"}
}

func (ServiceItemMapper) ToRow(s *serviceitem.ServiceItem) map[string]any {
	return map[string]any{
		"id":          s.ID,
		"tenant_id":   s.TenantID,
		"code":        s.Code,
		"name":        s.Name,
		"price_cents": s.PriceCents,
		"created_at":  s.CreatedAt,
		"updated_at":  s.UpdatedAt,
	}
}

func (ServiceItemMapper) FromRow(row map[string]any) (*serviceitem.ServiceItem, error) {
	ids, err := uuids(row, "id", "tenant_id")
	if err != nil {
		return nil, err
	}
	price, err := tenantrepo.Int64Value(row["price_cents"])
	if err != nil {
		return nil, err
	}
	return &serviceitem.ServiceItem{
		ID:         ids[0],
		TenantID:   ids[1],
		Code:       tenantrepo.StringValue(row["code"]),
		Name:       tenantrepo.StringValue(row["name"]),
		PriceCents: price,
		CreatedAt:  tenantrepo.TimeValue(row["created_at"]),
		UpdatedAt:  tenantrepo.TimeValue(row["updated_at"]),
	}, nil
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
