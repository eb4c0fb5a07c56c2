package main

import (
	"os"

	"github.com/withObsrvr/braket-orchestrator/cmd/braket-orchestrator/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
