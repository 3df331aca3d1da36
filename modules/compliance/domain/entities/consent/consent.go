package consent

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Consent records a data subject's permission for a purpose covering a set of data categories.
type Consent struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	SubjectType    string     `json:"subject_type"`
	SubjectID      uuid.UUID  `json:"subject_id"`
	Purpose        string     `json:"purpose"`
	DataCategories []string   `json:"data_categories"`
	Granted        bool       `json:"granted"`
	GrantedAt      *time.Time `json:"granted_at,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func New(subjectType string, subjectID uuid.UUID, purpose string, categories []string) *Consent {
	now := time.Now()
	return &Consent{
		ID:             uuid.New(),
		SubjectType:    subjectType,
		SubjectID:      subjectID,
		Purpose:        purpose,
		DataCategories: normalize(categories),
		Granted:        true,
		GrantedAt:      &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func normalize(categories []string) []string {
	out := slices.Clone(categories)
	slices.Sort(out)
	return slices.Compact(out)
}

func (c *Consent) GetID() uuid.UUID       { return c.ID }
func (c *Consent) GetTenantID() uuid.UUID { return c.TenantID }
func (c *Consent) SetTenantID(id uuid.UUID) {
	c.TenantID = id
}

// Active reports whether the consent is granted and not revoked.
func (c *Consent) Active() bool {
	return c.Granted && c.RevokedAt == nil
}

// Covers reports whether the consent is active and includes category.
func (c *Consent) Covers(category string) bool {
	return c.Active() && slices.Contains(c.DataCategories, category)
}

func (c *Consent) Revoke(now time.Time) {
	c.Granted = false
	c.RevokedAt = &now
	c.UpdatedAt = now
}
