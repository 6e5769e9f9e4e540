package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/catalogsync/config"
	"github.com/shashiranjanraj/catalogsync/pkg/signature"
)

var signSecret string

// catalogsync signature:sign [file]
var signatureSignCmd = &cobra.Command{
	Use:   "signature:sign [file]",
	Short: "Print the X-CRM-Signature header for a body (file or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := signSecret
		if secret == "" {
			secret = config.CRMWebhookSecret()
		}
		if secret == "" {
			return errors.New("no secret: pass --secret or set CRM_WEBHOOK_SECRET")
		}

		var (
			body []byte
			err  error
		)
		if len(args) == 1 && args[0] != "-" {
			body, err = os.ReadFile(args[0])
		} else {
			body, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", signature.Header, signature.Sign(body, secret))
		return nil
	},
}

func init() {
	signatureSignCmd.Flags().StringVar(&signSecret, "secret", "", "shared secret (defaults to CRM_WEBHOOK_SECRET)")
}
