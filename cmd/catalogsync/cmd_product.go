package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/catalogsync/internal/app"
	"github.com/shashiranjanraj/catalogsync/internal/catalog"
)

// catalogsync product:delete <external-id|slug>
var productDeleteCmd = &cobra.Command{
	Use:   "product:delete <external-id|slug>",
	Short: "Delete a product and notify the CRM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flush := app.SetupLogging(os.Stderr)
		defer flush()

		a, err := app.Boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var p catalog.Product
		if id, perr := uuid.Parse(args[0]); perr == nil {
			p, err = a.Products.ByExternalID(cmd.Context(), id)
		} else {
			p, err = a.Products.BySlug(cmd.Context(), args[0])
		}
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("no product matches %q", args[0])
		}
		if err != nil {
			return err
		}

		snap, err := a.Deleter.Delete(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}
