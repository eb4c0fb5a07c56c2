package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/braket-orchestrator/internal/backend"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/pricing"
)

func devicesCmd(flags *globalFlags) *cobra.Command {
	var (
		kind     string
		provider string
		online   bool
	)
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.DeviceFilter{Provider: provider}
			if kind != "" {
				k, err := domain.ParseDeviceKind(kind)
				if err != nil {
					return err
				}
				filter.Kind = k
			}
			if online {
				filter.Statuses = []domain.DeviceStatus{domain.DeviceOnline}
			}
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				devices, err := b.Devices(ctx, filter)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tKIND\tSTATUS")
				for _, d := range devices {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Provider, d.Kind, d.Status)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "device type (qpu|simulator)")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name")
	cmd.Flags().BoolVar(&online, "online", false, "only online devices")
	return cmd
}

func selectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select <device-id>",
		Short: "Select the device used by submit and batch",
		Long:  "Select the device used by submit and batch. The selection is kept in the checkpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				d, err := b.SelectDevice(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
}

func estimateCmd(flags *globalFlags) *cobra.Command {
	var (
		deviceID string
		shots    int
	)
	cmd := &cobra.Command{
		Use:   "estimate <circuit.json>...",
		Short: "Estimate the cost of running circuits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circuits, err := loadCircuits(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, flags, func(ctx context.Context, b *backend.Backend) error {
				if shots <= 0 {
					shots = b.Config().Backend.DefaultShots
				}
				var est pricing.Estimate
				if deviceID != "" {
					est, err = b.EstimateFor(ctx, deviceID, circuits, shots)
				} else {
					est, err = b.Estimate(ctx, circuits, shots)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), est)
			})
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "estimate for this device instead of the selected one")
	cmd.Flags().IntVar(&shots, "shots", 0, "shots per circuit (default from config)")
	return cmd
}
