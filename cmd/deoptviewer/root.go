package deoptviewer

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deoptviewer",
	Short: "Rank V8 deoptimizations by file and attach their sources",
	Long: `deoptviewer turns per-file V8 optimization, deoptimization and inline
cache diagnostics into a ranked report. Each interesting file is paired with
its source text, read from disk, a file:// URI, an HTTP(S) URL, an s3:// object
or a local mirror of a packaged build.

The report is written as a bundle directory that the browser viewer opens.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
