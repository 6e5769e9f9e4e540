package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/catalogsync/internal/app"
	"github.com/shashiranjanraj/catalogsync/pkg/database"
	"github.com/shashiranjanraj/catalogsync/pkg/migration"
)

// withRunner opens the database for one migration command.
func withRunner(cmd *cobra.Command, fn func(*migration.Runner) error) error {
	db, err := app.OpenDB()
	if err != nil {
		return err
	}
	defer database.Close(db)
	return fn(migration.New(db, cmd.OutOrStdout()))
}

// catalogsync migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(r *migration.Runner) error {
			n, err := r.Run()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", n)
			return nil
		})
	},
}

// catalogsync migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Roll back the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(r *migration.Runner) error {
			n, err := r.Rollback()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) rolled back\n", n)
			return nil
		})
	},
}

// catalogsync migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(r *migration.Runner) error {
			rows, err := r.Status()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "MIGRATION\tRAN\tBATCH")
			for _, row := range rows {
				ran, batch := "no", "-"
				if row.Ran {
					ran, batch = "yes", fmt.Sprint(row.Batch)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", row.Name, ran, batch)
			}
			return w.Flush()
		})
	},
}
