package main

import (
	"github.com/erp/agreementclone/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags and the configuration loaded from them.
type rootOptions struct {
	debug      bool
	envFile    string
	configFile string
	outputDir  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agreementclone",
		Short: "Clone a commerce agreement together with its subscriptions",
		Long: `agreementclone copies an agreement to a new listing or licensee.

The work is split into stages that checkpoint their results under
<output-dir>/<agreement-id>/ so each one can be reviewed and resumed:

  dump       save the agreement, its subscriptions and subscriptions.xlsx
  create     create the new agreement and recreate its subscriptions
  reprice    apply the worksheet markups to the cloned subscriptions
  terminate  terminate the subscriptions of the source agreement
  audit      link both agreements with audit records

Credentials are read from ~/.mpt-clone-agreement (see --env-file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(
				config.WithEnvFile(opts.envFile),
				config.WithConfigFile(opts.configFile),
				config.WithOutputDir(opts.outputDir),
			)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "log debug messages to the console")
	flags.StringVar(&opts.envFile, "env-file", "", "credentials file (default ~/"+config.DefaultEnvFileName+")")
	flags.StringVar(&opts.configFile, "config", "", "settings file (default ./"+config.DefaultConfigFile+")")
	flags.StringVar(&opts.outputDir, "output-dir", "", "checkpoint root (default output)")

	cmd.AddCommand(
		newDumpCmd(opts),
		newCreateCmd(opts),
		newRepriceCmd(opts),
		newTerminateCmd(opts),
		newAuditCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// agreementFlag registers the --agreement-id flag every subcommand needs.
func agreementFlag(cmd *cobra.Command, id *string) {
	cmd.Flags().StringVar(id, "agreement-id", "", "source agreement id (AGR-...)")
	_ = cmd.MarkFlagRequired("agreement-id")
}
