package persistence

import (
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/animal"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/appointment"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/customer"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/serviceitem"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

// Repositories groups the tenant-scoped repositories of the clinic records.
type Repositories struct {
	Customers    *tenantrepo.Repository[*customer.Customer]
	Animals      *tenantrepo.Repository[*animal.Animal]
	Appointments *tenantrepo.Repository[*appointment.Appointment]
	Services     *tenantrepo.Repository[*serviceitem.ServiceItem]
}

func NewRepositories(store tenantrepo.Store, opts tenantrepo.Options) *Repositories {
	if pg, ok := store.(*tenantrepo.PgStore); ok {
		Register(pg)
	}
	return &Repositories{
		Customers:    tenantrepo.New[*customer.Customer](store, CustomerMapper{}, opts),
		Animals:      tenantrepo.New[*animal.Animal](store, AnimalMapper{}, opts),
		Appointments: tenantrepo.New[*appointment.Appointment](store, AppointmentMapper{}, opts),
		Services:     tenantrepo.New[*serviceitem.ServiceItem](store, ServiceItemMapper{}, opts),
	}
}

// Register makes the clinic tables known to a PgStore.
func Register(pg *tenantrepo.PgStore) {
	pg.Register(CustomersTable, CustomerMapper{}.Columns()).
		Register(AnimalsTable, AnimalMapper{}.Columns()).
		Register(AppointmentsTable, AppointmentMapper{}.Columns()).
		Register(ServiceTable, ServiceItemMapper{}.Columns())
}
