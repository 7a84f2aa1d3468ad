// Command signcallback signs and delivers gateway callbacks against a local
// deployment, for exercising reconciliation without a real gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "signcallback",
		Short:   "Sign and send payment gateway callbacks",
		Version: Version,
	}

	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(returnURLCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
