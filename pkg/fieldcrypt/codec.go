package fieldcrypt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

// Redacted replaces values whose subject has not consented to their exposure.
const Redacted = "[REDACTED]"

// Masked stands in for sensitive values in audit snapshots.
const Masked = "<encrypted>"

var (
	ErrTenantContextRequired = serrors.NewError(serrors.CodeTenantContextRequired, "field encryption requires a tenant in context", "Errors.TenantContextRequired")
	ErrConsentMissing        = serrors.NewError(serrors.CodeConsentMissing, "no active consent for this data category", "Errors.ConsentMissing")
)

// Field describes one sensitive attribute.
type Field struct {
	Name string
	// Category is the consent data category covering the field. Defaults to Name.
	Category        string
	RequiresConsent bool
}

func (f Field) category() string {
	if f.Category != "" {
		return f.Category
	}
	return f.Name
}

// Subject identifies the person a sensitive value belongs to.
type Subject struct {
	Type string
	ID   uuid.UUID
}

func (s Subject) IsZero() bool {
	return s.Type == "" || s.ID == uuid.Nil
}

// Cipher is implemented by keyring.Service.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte, tenantID uuid.UUID) (string, error)
	Decrypt(ctx context.Context, blob string, tenantID uuid.UUID) ([]byte, error)
}

// ConsentChecker answers whether subject currently consents to exposing category in the current tenant.
type ConsentChecker interface {
	HasConsent(ctx context.Context, subject Subject, category string) (bool, error)
}

type Options struct {
	Consent     ConsentChecker
	Development bool
	Logger      *logrus.Entry
}

type Codec struct {
	cipher      Cipher
	consent     ConsentChecker
	development bool
	logger      *logrus.Entry
}

func New(cipher Cipher, opts Options) *Codec {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Codec{
		cipher:      cipher,
		consent:     opts.Consent,
		development: opts.Development,
		logger:      opts.Logger,
	}
}

// WithConsent returns a codec sharing c's cipher that gates consent-bound fields with checker.
func (c *Codec) WithConsent(checker ConsentChecker) *Codec {
	cp := *c
	cp.consent = checker
	return &cp
}

func (c *Codec) tenantID(ctx context.Context) (uuid.UUID, error) {
	id, err := composables.UseTenantID(ctx)
	if err == nil {
		return id, nil
	}
	if c.development {
		panic(ErrTenantContextRequired)
	}
	return uuid.Nil, ErrTenantContextRequired
}

// Seal encrypts value for the current tenant. Empty values stay empty.
func (c *Codec) Seal(ctx context.Context, field Field, value string) (string, error) {
	tenantID, err := c.tenantID(ctx)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", nil
	}
	blob, err := c.cipher.Encrypt(ctx, []byte(value), tenantID)
	if err != nil {
		return "", fmt.Errorf("seal %s: %w", field.Name, err)
	}
	return blob, nil
}

// Open decrypts blob for the current tenant. Consent-bound fields come back as Redacted unless the
// subject has an active consent covering the field's category.
func (c *Codec) Open(ctx context.Context, subject Subject, field Field, blob string) (string, error) {
	tenantID, err := c.tenantID(ctx)
	if err != nil {
		return "", err
	}
	if blob == "" {
		return "", nil
	}
	if field.RequiresConsent && !c.consented(ctx, subject, field) {
		return Redacted, nil
	}
	plaintext, err := c.cipher.Decrypt(ctx, blob, tenantID)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Codec) consented(ctx context.Context, subject Subject, field Field) bool {
	if c.consent == nil || subject.IsZero() {
		return false
	}
	ok, err := c.consent.HasConsent(ctx, subject, field.category())
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"field":        field.Name,
			"subject_type": subject.Type,
		}).Warn("consent lookup failed; redacting")
		return false
	}
	return ok
}
