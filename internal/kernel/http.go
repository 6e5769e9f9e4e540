// Package kernel assembles the HTTP surface: global middleware and routes.
package kernel

import (
	"context"
	"net/http"
	"time"

	"github.com/shashiranjanraj/catalogsync/pkg/metrics"
	"github.com/shashiranjanraj/catalogsync/pkg/middleware"
	"github.com/shashiranjanraj/catalogsync/pkg/response"
	"github.com/shashiranjanraj/catalogsync/pkg/router"
)

// Pinger reports whether the database is reachable.
type Pinger func(ctx context.Context) error

// Deps are the handlers the kernel mounts.
type Deps struct {
	Webhook   http.Handler
	Ping      Pinger
	RateLimit int
	MaxBody   int64
}

// webhookPaths are every path the CRM is known to push to.
var webhookPaths = []string{
	"/integrations/crm/products/",
	"/integrations/crm/products",
	"/api/catalog/integrations/crm/products/",
	"/api/catalog/integrations/crm/products",
}

// New builds the router. Global middleware, outermost first: metrics,
// request id, request logger, recovery.
func New(d Deps) *router.Router {
	r := router.New()
	r.Use(metrics.Middleware())
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)

	r.Get("/metrics", "metrics", metrics.Handler())
	r.Get("/healthz", "health", healthz(d.Ping))

	hook := http.NotFound
	if d.Webhook != nil {
		hook = d.Webhook.ServeHTTP
	}
	guard := []router.Middleware{middleware.RateLimit(d.RateLimit), middleware.BodyLimit(d.MaxBody)}
	for _, p := range webhookPaths {
		r.Post(p, "crm.products", hook, guard...)
	}
	return r
}

func healthz(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		response.JSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
