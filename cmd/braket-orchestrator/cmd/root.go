package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "braket-orchestrator",
		Short:        "Submit circuits to quantum devices, track jobs and estimate their cost.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (default $BRAKET_CONFIG)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override log format (json|text)")

	cmd.AddCommand(
		devicesCmd(flags),
		selectCmd(flags),
		submitCmd(flags),
		batchCmd(flags),
		statusCmd(flags),
		batchStatusCmd(flags),
		resultCmd(flags),
		batchResultsCmd(flags),
		cancelCmd(flags),
		estimateCmd(flags),
		waitCmd(flags),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "braket-orchestrator %s (%s)\n", Version, GitSHA)
		},
	}
}
