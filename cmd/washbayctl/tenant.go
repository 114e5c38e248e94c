package main

import (
	"encoding/json"
	"fmt"

	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/spf13/cobra"
)

func newTenantCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	cmd.AddCommand(
		newTenantCreateCmd(opts),
		newTenantStatusCmd(opts),
	)
	return cmd
}

func newTenantCreateCmd(opts *rootOptions) *cobra.Command {
	var req tenantdomain.CreateTenantRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant with its owner membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tenants tenantdomain.Service
			return opts.withApp(cmd.Context(), func() error {
				tenant, err := tenants.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tenant.ID, tenant.Slug)
				return nil
			}, &tenants)
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "business name")
	cmd.Flags().StringVar(&req.OwnerUserID, "owner", "", "user id of the owner")
	cmd.Flags().StringVar(&req.BillingEmail, "email", "", "billing email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTenantStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <slug>",
		Short: "Print the plan status of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants tenantdomain.Service
				billing billingdomain.Service
			)
			return opts.withApp(cmd.Context(), func() error {
				tc, _, err := tenants.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				status, err := billing.PlanStatus(cmd.Context(), tc.TenantID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}, &tenants, &billing)
		},
	}
}
