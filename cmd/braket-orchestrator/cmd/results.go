package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/braket-orchestrator/internal/backend"
	"github.com/withObsrvr/braket-orchestrator/internal/export"
	"github.com/withObsrvr/braket-orchestrator/internal/orchestrator"
)

// resultView is the printed form of a result, with outcomes keyed by bitstring.
type resultView struct {
	*orchestrator.Result
	Counts map[string]int `json:"counts,omitempty"`
}

func newResultView(res *orchestrator.Result) resultView {
	v := resultView{Result: res}
	if res.Ready() {
		v.Counts = res.Measurement.CountsByBitstring()
	}
	return v
}

func resultCmd(flags *globalFlags) *cobra.Command {
	var doExport bool
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Fetch and normalize a job's result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				res, err := b.Result(ctx, args[0])
				if err != nil {
					return err
				}
				out := struct {
					resultView
					Export *export.Manifest `json:"export,omitempty"`
				}{resultView: newResultView(res)}
				if doExport && res.Ready() {
					out.Export, err = b.Export(ctx, args[0])
					if err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolVar(&doExport, "export", false, "archive the result as parquet (requires export.enabled)")
	return cmd
}

func batchResultsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch-results <batch-id>",
		Short: "Fetch the results of every job in a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				results, err := b.BatchResults(ctx, args[0])
				views := make([]resultView, 0, len(results))
				for _, res := range results {
					if res != nil {
						views = append(views, newResultView(res))
					}
				}
				if perr := printJSON(cmd.OutOrStdout(), views); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}
