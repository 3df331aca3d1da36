package services

import "github.com/iota-uz/tenantcore/pkg/serrors"

var ErrForbidden = serrors.NewError("FORBIDDEN", "principal lacks the required capability", "Errors.Forbidden")
