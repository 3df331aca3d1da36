package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
)

func lookup(ctx context.Context, a *app, ref string) (*tenant.Tenant, error) {
	t, err := a.lifecycle.Lookup(ctx, ref)
	if err != nil {
		return nil, report(services.Failed(err, nil), err)
	}
	return t, nil
}

func newLifecycleCmd(use, short string, fn func(*app, context.Context, *tenant.Tenant) (*tenant.Tenant, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|identifier>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := lookup(ctx, a, args[0])
				if err != nil {
					return err
				}
				t, err = fn(a, ctx, t)
				if err != nil {
					return report(services.Failed(err, nil), err)
				}
				return report(services.Succeeded(viewOf(t)), nil)
			})
		},
	}
}

func newHardDeleteCmd() *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "hard-delete-tenant <id|identifier>",
		Short: "Permanently remove a deactivated tenant, its partition and its administrators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := lookup(ctx, a, args[0])
				if err != nil {
					return err
				}
				if confirm != t.Identifier() {
					err := fmt.Errorf("--confirm must repeat the tenant identifier %q", t.Identifier())
					return report(services.Failed(err, nil), withCode(exitUsage, err))
				}
				if err := a.lifecycle.HardDelete(ctx, t.ID()); err != nil {
					return report(services.Failed(err, viewOf(t)), err)
				}
				return report(services.Succeeded(viewOf(t)), nil)
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "the tenant identifier, repeated")
	return cmd
}

type rotateResult struct {
	Tenant     string `json:"tenant"`
	KeyVersion int    `json:"key_version"`
}

func newRotateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <id|identifier>",
		Short: "Move a tenant to a new encryption key version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := lookup(ctx, a, args[0])
				if err != nil {
					return err
				}
				v, err := a.lifecycle.RotateKey(ctx, t.ID())
				if err != nil {
					return report(services.Failed(err, nil), err)
				}
				out := services.Succeeded(&rotateResult{Tenant: t.Identifier(), KeyVersion: v})
				out.Warn("values encrypted under earlier key versions no longer decrypt; re-encrypt them before discarding backups")
				return report(out, nil)
			})
		},
	}
}

type purgeResult struct {
	Tenant string `json:"tenant"`
	Purged int64  `json:"purged"`
}

func newPurgeAuditCmd() *cobra.Command {
	var (
		olderThan time.Duration
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "purge-audit [id|identifier]",
		Short: "Delete audit events past their retention, or older than --older-than",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				err := errors.New("name one tenant or pass --all")
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				var targets []*tenant.Tenant
				if all {
					ts, err := a.tenants.List(ctx, &tenant.FindParams{})
					if err != nil {
						return report(services.Failed(err, nil), err)
					}
					targets = ts
				} else {
					t, err := lookup(ctx, a, args[0])
					if err != nil {
						return err
					}
					targets = []*tenant.Tenant{t}
				}

				now := time.Now()
				results := make([]purgeResult, 0, len(targets))
				for _, t := range targets {
					var n int64
					var err error
					if olderThan > 0 {
						n, err = a.audit.PurgeOlderThan(ctx, t.ID(), now.Add(-olderThan))
					} else {
						n, err = a.audit.PurgeExpired(ctx, t.ID(), now)
					}
					if err != nil {
						return report(services.Failed(err, results), err)
					}
					results = append(results, purgeResult{Tenant: t.Identifier(), Purged: n})
				}
				return report(services.Succeeded(results), nil)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "purge everything older than this age instead of expired events")
	cmd.Flags().BoolVar(&all, "all", false, "purge every tenant")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "restore-tenant <id|identifier>",
		Short: "Load a plaintext snapshot into a tenant's partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer f.Close()
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := lookup(ctx, a, args[0])
				if err != nil {
					return err
				}
				summary, err := a.restore.Restore(ctx, t, f)
				if err != nil {
					return report(services.Failed(err, nil), err)
				}
				return report(services.Succeeded(summary), nil)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "snapshot JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type adminResult struct {
	Tenant string `json:"tenant"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func newAddAdminCmd() *cobra.Command {
	var in services.NewAdmin
	cmd := &cobra.Command{
		Use:   "add-admin <id|identifier>",
		Short: "Create another administrator for a tenant, within its user limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = os.Getenv(adminPasswordEnv)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				t, err := lookup(ctx, a, args[0])
				if err != nil {
					return err
				}
				u, err := a.lifecycle.AddAdmin(ctx, t.ID(), in)
				if err != nil {
					return report(services.Failed(err, nil), err)
				}
				return report(services.Succeeded(&adminResult{Tenant: t.Identifier(), UserID: u.ID.String(), Email: u.Email}), nil)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "administrator email")
	f.StringVar(&in.Password, "password", "", "administrator password (defaults to $"+adminPasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
