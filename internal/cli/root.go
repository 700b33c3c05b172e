// Package cli wires the fiberscan commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the fiberscan root command with a context cancelled on
// SIGINT or SIGTERM, and exits with status 1 when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fiberscan",
		Short:        "Slice-wise blob segmentation of binary muscle fibre volumes",
		SilenceUsage: true,
	}

	cmd.AddCommand(scanCmd())
	cmd.AddCommand(previewCmd())
	cmd.AddCommand(configCmd())
	return cmd
}
