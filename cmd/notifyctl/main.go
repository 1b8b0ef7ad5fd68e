// notifyctl is a read-only diagnostics tool for the notification dispatcher.
//
// It reads the same environment and .env files as the service.
//
// Usage:
//
//	notifyctl directory
//	notifyctl deliveries --complaint GNT-1042
//	notifyctl complaints --limit 10
//	notifyctl gateway
//	notifyctl summary --out deliveries.png
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	outputFmt string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notifyctl",
		Short: "Inspect the civic notification dispatcher",
		Long: `notifyctl reports on the department directory, the delivery ledger
and the messaging gateway. It never sends a message or changes state.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(deliveriesCmd())
	rootCmd.AddCommand(complaintsCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(summaryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
