package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/braket-orchestrator/internal/backend"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

func submitOptionsFlags(cmd *cobra.Command, opts *domain.SubmitOptions) {
	cmd.Flags().IntVar(&opts.Shots, "shots", 0, "shots per circuit (default from config)")
	cmd.Flags().BoolVar(&opts.Verbatim, "verbatim", false, "restrict the program to the device's native gates")
	cmd.Flags().StringToStringVar(&opts.Tags, "tag", nil, "task tags as key=value")
	cmd.Flags().StringArrayVar(&opts.ResultTypes, "result-type", nil, "extra result type, e.g. \"expectation z(q[0])\" (repeatable)")
}

func submitCmd(flags *globalFlags) *cobra.Command {
	var opts domain.SubmitOptions
	cmd := &cobra.Command{
		Use:   "submit <circuit.json>",
		Short: "Submit one circuit to the selected device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circuits, err := loadCircuits(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				jobID, err := b.Submit(ctx, circuits[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				return nil
			})
		},
	}
	submitOptionsFlags(cmd, &opts)
	return cmd
}

func batchCmd(flags *globalFlags) *cobra.Command {
	var opts domain.SubmitOptions
	cmd := &cobra.Command{
		Use:   "batch <circuit.json>...",
		Short: "Submit circuits as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circuits, err := loadCircuits(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				batchID, err := b.BatchSubmit(ctx, circuits, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), batchID)
				return nil
			})
		},
	}
	submitOptionsFlags(cmd, &opts)
	return cmd
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				status, err := b.Status(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func batchStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch-status <batch-id>",
		Short: "Print the aggregate status of a batch and its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				report, err := b.BatchStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func cancelCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				outcome, err := b.Cancel(ctx, args[0])
				fmt.Fprintln(cmd.OutOrStdout(), outcome)
				return err
			})
		},
	}
}

func waitCmd(flags *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it reaches a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				status, err := waitForJob(ctx, b, args[0], interval)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}

type statusSource interface {
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
}

func waitForJob(ctx context.Context, b statusSource, jobID string, interval time.Duration) (domain.JobStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := b.Status(ctx, jobID)
		if err != nil {
			return status, err
		}
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
