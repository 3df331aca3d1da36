package services

import "github.com/iota-uz/tenantcore/pkg/serrors"

var (
	ErrTenantRequired     = serrors.NewError(serrors.CodeTenantRequired, "this operation requires a tenant", "Errors.TenantRequired")
	ErrTenantNotFound     = serrors.NewError(serrors.CodeTenantNotFound, "tenant not found", "Errors.TenantNotFound")
	ErrProvisioningFailed = serrors.NewError(serrors.CodeProvisioningFailed, "tenant provisioning failed", "Errors.ProvisioningFailed")
	ErrForbidden          = serrors.NewError("FORBIDDEN", "principal lacks the required capability", "Errors.Forbidden")
)

var ErrEmailTaken = serrors.NewError("ADMIN_EMAIL_TAKEN", "administrator email is already in use", "Errors.AdminEmailTaken")

var ErrTenantActive = serrors.NewError("TENANT_ACTIVE", "tenant must be deactivated first", "Errors.TenantActive")
