package commands

import "github.com/spf13/cobra"

// NewRootCmd builds the subcommand-free pathscout binary: all behavior is
// controlled by flags on the root command itself.
func NewRootCmd() *cobra.Command {
	rootCmd := newScanCmd()
	rootCmd.Use = "pathscout"
	rootCmd.Short = "High-concurrency web content discovery"
	return rootCmd
}
