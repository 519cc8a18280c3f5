package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for treewalk.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treewalk",
		Short: "Visit every item of a workspace sidebar tree",
		Long: `treewalk drives a Chrome tab through the sidebar tree of a web workspace.
It opens every item exactly once, depth first, and records each visit in a
CSV checkpoint so that an interrupted walk can continue where it stopped.

By default treewalk attaches to a Chrome started with
--remote-debugging-port=9222 in which you are already logged in.
Use --launch to start a private Chrome instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewWalkCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCheckpointCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
