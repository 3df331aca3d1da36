package serrors

import (
	"errors"
	"maps"
)

// BaseError is a coded error. Two BaseErrors match under errors.Is when their codes are equal,
// so sentinel values can be wrapped with extra context and still be recognised.
type BaseError struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	LocaleKey    string            `json:"locale_key,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

// WithTemplateData returns a copy of the error carrying data for message templates.
func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	cp := *e
	cp.TemplateData = maps.Clone(data)
	return &cp
}

// WithMessage returns a copy of the error with a more specific message and the same code.
func (e *BaseError) WithMessage(msg string) *BaseError {
	cp := *e
	cp.Message = msg
	return &cp
}

// Code returns the code of the first BaseError in err's chain, or "" if there is none.
func Code(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Codes shared across packages. Sentinels declared in different packages with the same code
// match each other under errors.Is.
const (
	CodeTenantRequired        = "TENANT_REQUIRED"
	CodeTenantContextRequired = "TENANT_CONTEXT_REQUIRED"
	CodeTenantNotFound        = "TENANT_NOT_FOUND"
	CodePartitionNotFound     = "PARTITION_NOT_FOUND"
	CodeCrossTenantViolation  = "CROSS_TENANT_VIOLATION"
	CodeTenantMismatch        = "TENANT_MISMATCH"
	CodeNotFound              = "NOT_FOUND"
	CodeDecryptionFailed      = "DECRYPTION_FAILED"
	CodeConsentMissing        = "CONSENT_MISSING"
	CodeProvisioningFailed    = "PROVISIONING_FAILED"
	CodePlanLimitExceeded     = "PLAN_LIMIT_EXCEEDED"
	CodeAuditForbidden        = "AUDIT_FORBIDDEN"
)
