package main

import (
	"errors"
	"os"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

// report prints res as JSON and turns a failed result into the command's error.
func report(res *services.OperationResult, err error) error {
	if werr := res.Write(os.Stdout); werr != nil {
		return werr
	}
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	return withCode(classify(err), err)
}

func classify(err error) int {
	var be *serrors.BaseError
	switch {
	case errors.Is(err, services.ErrProvisioningFailed):
		var perr *services.ProvisioningError
		if errors.As(err, &perr) && perr.Step == services.StepValidate {
			return exitValidation
		}
		return exitFailed
	case errors.As(err, &be):
		return exitValidation
	default:
		return exitFailed
	}
}

type tenantView struct {
	ID         string            `json:"id"`
	Identifier string            `json:"identifier"`
	Name       string            `json:"name"`
	Active     bool              `json:"active"`
	KeyVersion int               `json:"key_version"`
	PlanLimits tenant.PlanLimits `json:"plan_limits"`
}

func viewOf(t *tenant.Tenant) *tenantView {
	if t == nil {
		return nil
	}
	return &tenantView{
		ID:         t.ID().String(),
		Identifier: t.Identifier(),
		Name:       t.Name(),
		Active:     t.IsActive(),
		KeyVersion: t.KeyVersion(),
		PlanLimits: t.PlanLimits(),
	}
}
