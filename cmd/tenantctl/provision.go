package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
)

const adminPasswordEnv = "TENANTCTL_ADMIN_PASSWORD"

type provisionResult struct {
	Tenant *tenantView      `json:"tenant,omitempty"`
	Report *services.Report `json:"report"`
}

func newProvisionCmd() *cobra.Command {
	var (
		spec     services.Spec
		maxUsers int
		limits   map[string]int
	)
	cmd := &cobra.Command{
		Use:   "provision-tenant",
		Short: "Create a tenant with its partition, schema, administrator and seed data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if spec.AdminPassword == "" {
				spec.AdminPassword = os.Getenv(adminPasswordEnv)
			}
			spec.PlanLimits = tenant.PlanLimits{MaxUsers: maxUsers, MaxEntities: limits}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, rep, err := a.provisioning.CreateTenant(ctx, spec)
				res := &provisionResult{Tenant: viewOf(t), Report: rep}
				if err != nil {
					out := services.Failed(err, res)
					var perr *services.ProvisioningError
					if errors.As(err, &perr) && perr.Report != nil && len(perr.Report.RollbackErrors) > 0 {
						out.Warn("rollback incomplete; clean up the listed steps by hand before retrying")
					}
					return report(out, err)
				}
				return report(services.Succeeded(res), nil)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Identifier, "identifier", "", "tenant identifier, also its subdomain")
	f.StringVar(&spec.Name, "name", "", "display name")
	f.StringVar(&spec.AdminEmail, "admin-email", "", "initial administrator email")
	f.StringVar(&spec.AdminPassword, "admin-password", "", "initial administrator password (defaults to $"+adminPasswordEnv+")")
	f.IntVar(&maxUsers, "max-users", 0, "administrator limit, 0 for unlimited")
	f.StringToIntVar(&limits, "limit", nil, "per-table record limits, e.g. customers=500")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("admin-email")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-tenant <id|identifier>",
		Short: "Check that a tenant is fully provisioned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := a.lifecycle.Lookup(ctx, args[0])
				if err != nil {
					return report(services.Failed(err, nil), err)
				}
				rep, err := a.provisioning.ValidateProvisioning(ctx, t)
				if err != nil {
					return report(services.Failed(err, rep), err)
				}
				if !rep.OK() {
					err := errors.New("tenant is not fully provisioned")
					return report(services.Failed(err, rep), withCode(exitValidation, err))
				}
				return report(services.Succeeded(rep), nil)
			})
		},
	}
}
