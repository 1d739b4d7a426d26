package main

import (
	"context"

	"github.com/erp/agreementclone/internal/application/clone"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/spf13/cobra"
)

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var agreementID, listingID, licenseeID string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Save the source agreement, its subscriptions and the worksheet",
		Long: `Saves the source agreement, the payload of the new agreement, one file
per active subscription and subscriptions.xlsx.

The new agreement either moves to another listing (--listing-id) or to
another licensee on the same listing (--licensee-id).`,
		Example: `  agreementclone dump --agreement-id AGR-1234-5678-9012 --listing-id LST-9279-6638
  agreementclone dump --agreement-id AGR-1234-5678-9012 --licensee-id LCE-1234-5678-9012`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRequest(dumpRequest{
				AgreementID: agreementID,
				ListingID:   listingID,
				LicenseeID:  licenseeID,
			}); err != nil {
				return err
			}

			var target clone.DumpTarget = clone.LicenseeTarget{LicenseeID: licenseeID}
			if listingID != "" {
				target = clone.ListingTarget{ListingID: listingID}
			}

			return runStage(cmd, opts, agreementID, pipeline.StageDump, stageAPI, func(ctx context.Context, svc *clone.Service) error {
				_, err := svc.Dump(ctx, target)
				return err
			})
		},
	}

	agreementFlag(cmd, &agreementID)
	cmd.Flags().StringVar(&listingID, "listing-id", "", "listing of the new agreement (LST-...)")
	cmd.Flags().StringVar(&licenseeID, "licensee-id", "", "licensee of the new agreement (LCE-...)")
	cmd.MarkFlagsMutuallyExclusive("listing-id", "licensee-id")
	cmd.MarkFlagsOneRequired("listing-id", "licensee-id")
	return cmd
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		agreementID       string
		platformSync      bool
		keepPurchasePrice bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the new agreement and its subscriptions from the dump",
		Long: `Creates the new agreement from new_agreement_object.json, restores the
fields the platform ignores on creation and then either recreates every
subscription of the worksheet or, with --platform-sync, asks the vendor
platform to synchronise the customer.

--platform-sync needs CSP_URL_TUNNEL and CSP_TOKEN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, api := pipeline.CreateWorksheet, stageAPI
			if platformSync {
				mode, api = pipeline.CreatePlatformSync, syncAPI
			}

			return runStage(cmd, opts, agreementID, pipeline.StageCreate, api, func(ctx context.Context, svc *clone.Service) error {
				_, err := svc.Create(ctx, clone.CreateOptions{Mode: mode, KeepPurchasePrice: keepPurchasePrice})
				return err
			})
		},
	}

	agreementFlag(cmd, &agreementID)
	cmd.Flags().BoolVar(&platformSync, "platform-sync", false, "synchronise the customer instead of creating subscriptions")
	cmd.Flags().BoolVar(&keepPurchasePrice, "keep-purchase-price", false, "send the dumped purchase and sales prices instead of the markup")
	cmd.MarkFlagsMutuallyExclusive("platform-sync", "keep-purchase-price")
	return cmd
}

func newRepriceCmd(opts *rootOptions) *cobra.Command {
	var (
		agreementID       string
		noDryRun          bool
		keepPurchasePrice bool
	)

	cmd := &cobra.Command{
		Use:   "reprice",
		Short: "Apply the worksheet prices to the cloned subscriptions",
		Long: `Matches the subscriptions of the new agreement with the worksheet by
vendor subscription id and updates their active lines.

Runs as a dry run unless --no-dry-run is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, opts, agreementID, pipeline.StageReprice, stageAPI, func(ctx context.Context, svc *clone.Service) error {
				_, err := svc.Reprice(ctx, clone.RepriceOptions{Live: noDryRun, KeepPurchasePrice: keepPurchasePrice})
				return err
			})
		},
	}

	agreementFlag(cmd, &agreementID)
	cmd.Flags().BoolVar(&noDryRun, "no-dry-run", false, "send the updates")
	cmd.Flags().BoolVar(&keepPurchasePrice, "keep-purchase-price", false, "set unit prices from the worksheet instead of the markup")
	return cmd
}

func newTerminateCmd(opts *rootOptions) *cobra.Command {
	var agreementID string

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Terminate the active subscriptions of the source agreement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, opts, agreementID, pipeline.StageTerminate, stageAPI, func(ctx context.Context, svc *clone.Service) error {
				_, err := svc.Terminate(ctx)
				return err
			})
		},
	}

	agreementFlag(cmd, &agreementID)
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var agreementID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Record the clone on both agreements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, opts, agreementID, pipeline.StageAudit, stageAPI, func(ctx context.Context, svc *clone.Service) error {
				_, err := svc.Audit(ctx)
				return err
			})
		},
	}

	agreementFlag(cmd, &agreementID)
	return cmd
}
