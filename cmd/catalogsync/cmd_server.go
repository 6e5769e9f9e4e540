package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/catalogsync/config"
	"github.com/shashiranjanraj/catalogsync/internal/app"
	"github.com/shashiranjanraj/catalogsync/internal/kernel"
	"github.com/shashiranjanraj/catalogsync/internal/server"
	"github.com/shashiranjanraj/catalogsync/pkg/database"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
)

// catalogsync serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := config.Load(); err != nil {
			return err
		}
		flush := app.SetupLogging(os.Stdout)
		defer flush()

		if config.CRMWebhookSecret() == "" {
			logger.Warn("CRM_WEBHOOK_SECRET is empty; every webhook call will be rejected")
		}

		a, err := app.Boot(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		r := kernel.New(kernel.Deps{
			Webhook:   a.Webhook(),
			Ping:      func(ctx context.Context) error { return database.Ping(ctx, a.DB) },
			RateLimit: config.WebhookRateLimit(),
			MaxBody:   config.WebhookMaxBodyBytes(),
		})
		return server.Start(ctx, ":"+config.AppPort(), r.Handler())
	},
}

// catalogsync route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List registered routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, rt := range kernel.New(kernel.Deps{}).Routes() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rt.Method, rt.Path, rt.Name)
		}
		return w.Flush()
	},
}
