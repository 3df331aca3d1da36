package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operate tenants: provisioning, lifecycle, keys, audit retention and restore",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newProvisionCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newRotateKeyCmd())
	cmd.AddCommand(newPurgeAuditCmd())
	cmd.AddCommand(newRetentionCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newLifecycleCmd("deactivate-tenant", "Stop a tenant from resolving; data and keys are kept", (*app).deactivate))
	cmd.AddCommand(newLifecycleCmd("activate-tenant", "Let a deactivated tenant resolve again", (*app).activate))
	cmd.AddCommand(newHardDeleteCmd())
	cmd.AddCommand(newAddAdminCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
