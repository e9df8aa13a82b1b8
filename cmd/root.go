package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payment-gateway",
	Short: "School fees payment gateway",
	Long:  "Receives bank and mobile money payment notifications, reconciles them against tenant accounts, and tracks outbound STK push requests.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
