package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "licensectl",
		Short: "Issue and verify machine-bound license keys offline",

		// The call to rootCmd.Execute prints the error, so errors are
		// silenced here to avoid double printing.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.AddCommand(
		newKeygenCmd(),
		newIssueCmd(),
		newVerifyCmd(),
		newInspectCmd(),
		newFingerprintCmd(),
	)
	return rootCmd
}
