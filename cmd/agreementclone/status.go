package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/erp/agreementclone/internal/application/clone"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var agreementID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoints and run history of an agreement",
		Long: `Lists the states reached by the checkpoints under the output directory,
the stages that can run next and the runs recorded in the ledger.
No request is made to the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts, runtimeSpec{
				agreementID: agreementID,
				name:        "status",
				api:         noAPI,
				readOnly:    true,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), report)
		},
	}

	agreementFlag(cmd, &agreementID)
	return cmd
}

func printStatus(out io.Writer, report *clone.StatusReport) error {
	current := string(report.Current)
	if current == "" {
		current = "none"
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Agreement:\t%s\n", report.AgreementID)
	fmt.Fprintf(w, "Current state:\t%s\n", current)
	fmt.Fprintf(w, "Reached:\t%s\n", joinOrNone(lo.Map(report.Reached, func(s pipeline.State, _ int) string { return string(s) })))
	fmt.Fprintf(w, "Runnable:\t%s\n", joinOrNone(lo.Map(report.Runnable, func(s pipeline.Stage, _ int) string { return string(s) })))
	fmt.Fprintf(w, "Artifacts:\t%s\n", joinOrNone(lo.Map(report.Artifacts, func(a pipeline.Artifact, _ int) string { return string(a) })))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(report.History) == 0 {
		_, err := fmt.Fprintln(out, "\nNo recorded runs.")
		return err
	}

	fmt.Fprintln(out, "\nRuns:")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTAGE\tMODE\tSTATUS\tOK\tFAILED\tSKIPPED\tMESSAGE")
	for _, run := range report.History {
		mode := run.Mode
		if run.DryRun {
			mode = strings.TrimSpace(mode + " dry-run")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Stage,
			lo.Ternary(mode == "", "-", mode),
			run.Status,
			run.Succeeded,
			run.Failed,
			run.Skipped,
			run.Message,
		)
	}
	return w.Flush()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
