package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Register migrations.
	_ "github.com/shashiranjanraj/catalogsync/database/migrations"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "catalogsync",
	Short:         "CRM product sync service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(productDeleteCmd)
	rootCmd.AddCommand(signatureSignCmd)
}
