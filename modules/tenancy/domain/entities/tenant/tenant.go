package tenant

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const partitionPrefix = "tenant_"

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// PlanLimits caps what a tenant may hold. A zero or missing limit means unlimited.
type PlanLimits struct {
	MaxUsers    int            `json:"max_users"`
	MaxEntities map[string]int `json:"max_entities,omitempty"`
}

// EntityLimit returns the cap for the given resource table and whether one is set.
func (p PlanLimits) EntityLimit(resource string) (int, bool) {
	n, ok := p.MaxEntities[resource]
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

// UserLimit returns the administrator cap and whether one is set.
func (p PlanLimits) UserLimit() (int, bool) {
	if p.MaxUsers <= 0 {
		return 0, false
	}
	return p.MaxUsers, true
}

type Tenant struct {
	id           uuid.UUID
	identifier   string
	partitionKey string
	name         string
	isActive     bool
	planLimits   PlanLimits
	keyVersion   int
	createdAt    time.Time
	updatedAt    time.Time
}

type Option func(*Tenant)

func WithID(id uuid.UUID) Option {
	return func(t *Tenant) {
		t.id = id
	}
}

func WithName(name string) Option {
	return func(t *Tenant) {
		t.name = name
	}
}

// WithPartitionKey overrides the derived partition key. Used when loading persisted rows.
func WithPartitionKey(key string) Option {
	return func(t *Tenant) {
		t.partitionKey = key
	}
}

func WithIsActive(isActive bool) Option {
	return func(t *Tenant) {
		t.isActive = isActive
	}
}

func WithPlanLimits(limits PlanLimits) Option {
	return func(t *Tenant) {
		t.planLimits = limits
	}
}

func WithKeyVersion(v int) Option {
	return func(t *Tenant) {
		t.keyVersion = v
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(t *Tenant) {
		t.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(t *Tenant) {
		t.updatedAt = updatedAt
	}
}

// New builds an active tenant. The identifier is normalised; the partition key is derived from it
// unless WithPartitionKey is given.
func New(identifier string, opts ...Option) *Tenant {
	identifier = NormalizeIdentifier(identifier)
	now := time.Now()
	t := &Tenant{
		id:         uuid.New(),
		identifier: identifier,
		name:       identifier,
		isActive:   true,
		keyVersion: 1,
		createdAt:  now,
		updatedAt:  now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.partitionKey == "" {
		t.partitionKey = PartitionKeyFor(identifier)
	}
	return t
}

func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func ValidIdentifier(identifier string) bool {
	if !identifierPattern.MatchString(identifier) {
		return false
	}
	return !strings.HasSuffix(identifier, "-") && identifier != "www" && identifier != "public"
}

// PartitionKeyFor derives the storage namespace name for an identifier.
func PartitionKeyFor(identifier string) string {
	return partitionPrefix + strings.ReplaceAll(NormalizeIdentifier(identifier), "-", "_")
}

func (t *Tenant) ID() uuid.UUID {
	return t.id
}

func (t *Tenant) Identifier() string {
	return t.identifier
}

func (t *Tenant) PartitionKey() string {
	return t.partitionKey
}

func (t *Tenant) Name() string {
	return t.name
}

func (t *Tenant) IsActive() bool {
	return t.isActive
}

func (t *Tenant) PlanLimits() PlanLimits {
	return t.planLimits
}

func (t *Tenant) KeyVersion() int {
	return t.keyVersion
}

func (t *Tenant) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Tenant) UpdatedAt() time.Time {
	return t.updatedAt
}

func (t *Tenant) Activate() {
	t.isActive = true
	t.updatedAt = time.Now()
}

func (t *Tenant) Deactivate() {
	t.isActive = false
	t.updatedAt = time.Now()
}

func (t *Tenant) SetName(name string) {
	t.name = name
	t.updatedAt = time.Now()
}

func (t *Tenant) SetPlanLimits(limits PlanLimits) {
	t.planLimits = limits
	t.updatedAt = time.Now()
}
