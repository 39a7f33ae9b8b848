// Command navctl runs navigations locally, without redis or the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "navctl",
	Short:        "Drive product navigations from the command line",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
