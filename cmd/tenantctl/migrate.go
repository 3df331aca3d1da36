package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantcore/migrations"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/configuration"
)

type partitionMigration struct {
	Tenant  string `json:"tenant"`
	Applied int    `json:"applied"`
	Error   string `json:"error,omitempty"`
}

type migrateResult struct {
	Global     []int64              `json:"global"`
	Partitions []partitionMigration `json:"partitions,omitempty"`
}

func newMigrateCmd() *cobra.Command {
	var partitions bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply global migrations, and optionally every tenant partition's migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			global, err := migrateGlobal(ctx, configuration.Use().Database.Opts)
			if err != nil {
				return report(services.Failed(err, nil), withCode(exitDB, err))
			}
			res := &migrateResult{Global: global}
			if !partitions {
				return report(services.Succeeded(res), nil)
			}
			return withApp(ctx, func(ctx context.Context, a *app) error {
				tenants, err := a.tenants.List(ctx, &tenant.FindParams{})
				if err != nil {
					return report(services.Failed(err, res), err)
				}
				var failed error
				for _, t := range tenants {
					n, err := a.router.Migrate(ctx, t)
					pm := partitionMigration{Tenant: t.Identifier(), Applied: n}
					if err != nil {
						pm.Error = err.Error()
						failed = fmt.Errorf("migrate partition of %s: %w", t.Identifier(), err)
					}
					res.Partitions = append(res.Partitions, pm)
				}
				if failed != nil {
					return report(services.Failed(failed, res), failed)
				}
				return report(services.Succeeded(res), nil)
			})
		},
	}
	cmd.Flags().BoolVar(&partitions, "partitions", false, "also migrate every tenant partition")
	return cmd
}

func migrateGlobal(ctx context.Context, dsn string) ([]int64, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cfg)
	defer db.Close()
	return migrations.Up(ctx, db)
}
