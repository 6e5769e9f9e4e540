// Package app boots the process-wide dependencies from config and tears
// them down again.
//
//	a, err := app.Boot(ctx)
//	if err != nil { ... }
//	defer a.Close()
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/config"
	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/internal/imagesync"
	"github.com/shashiranjanraj/catalogsync/internal/outbound"
	"github.com/shashiranjanraj/catalogsync/internal/webhook"
	"github.com/shashiranjanraj/catalogsync/pkg/database"
	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/lock"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
	"github.com/shashiranjanraj/catalogsync/pkg/tracer"
)

// App holds everything the HTTP kernel and the CLI commands need.
type App struct {
	DB         *gorm.DB
	Disk       storage.Disk
	Bus        *event.Bus
	Locker     lock.Locker
	Reconciler *catalog.Reconciler
	Images     *imagesync.Synchronizer
	Products   *catalog.Repository
	Deleter    *catalog.Deleter
	Dispatcher *outbound.Dispatcher

	closers []func(context.Context) error
}

// SetupLogging configures logger.L from config, teeing to MongoDB when
// LOG_MONGO_URI is set. The returned func flushes the sink.
func SetupLogging(w io.Writer) func() {
	var extra []slog.Handler
	var sink *logger.MongoSink
	if uri := config.LogMongoURI(); uri != "" {
		min, _ := logger.ParseLevel(config.LogMongoLevel())
		s, err := logger.DialMongoSink(uri, config.LogMongoDB(), config.LogMongoCollection(), min)
		if err != nil {
			logger.Warn("app: mongo log sink disabled", "error", err)
		} else {
			sink = s
			extra = append(extra, s)
		}
	}
	logger.Setup(config.AppEnv(), config.LogLevel(), w, extra...)
	return func() {
		if sink != nil {
			sink.Close()
		}
	}
}

// OpenDB opens the configured database.
func OpenDB() (*gorm.DB, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	return database.Open(config.DatabaseDriver(), config.DatabaseDSN(), database.Options{})
}

// Boot opens the database, storage, lock backend and tracer and wires the
// sync engine together.
func Boot(ctx context.Context) (*App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	a := &App{Bus: event.NewBus()}

	shutdownTracer, err := tracer.Setup(ctx, config.ServiceName(), config.AppEnv(), config.OTLPEndpoint())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracer)

	if a.DB, err = OpenDB(); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return database.Close(a.DB) })

	a.Disk, err = storage.Open(ctx, storage.Config{
		Disk:       config.StorageDefault(),
		LocalRoot:  config.StorageLocalRoot(),
		LocalURL:   config.StorageURL(),
		S3Bucket:   config.StorageS3Bucket(),
		S3Region:   config.StorageS3Region(),
		S3Key:      config.StorageS3Key(),
		S3Secret:   config.StorageS3Secret(),
		S3Endpoint: config.StorageS3Endpoint(),
		S3URL:      config.StorageS3URL(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: storage: %w", err)
	}

	a.Locker = lock.NewLocal()
	if addr := config.RedisAddr(); addr != "" {
		rdb, err := lock.Dial(ctx, addr, config.RedisPassword())
		if err != nil {
			logger.Warn("app: redis unavailable, using in-process locks", "addr", addr, "error", err)
		} else {
			a.Locker = lock.NewRedis(rdb, 30*time.Second, 10*time.Second)
			a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		}
	}

	a.Reconciler = catalog.NewReconciler(a.DB, catalog.WithQuantitySync(config.SyncQuantity()))
	a.Images = imagesync.New(a.DB, a.Disk,
		imagesync.WithBaseURL(config.ImageBaseURL()),
		imagesync.WithWorkers(config.ImageWorkers()),
		imagesync.WithFetcher(imagesync.NewFetcher(config.ImageMaxBytes(), config.ImageTimeout(), float64(config.ImageRPS()))),
	)
	a.closers = append(a.closers, func(context.Context) error { a.Images.Close(); return nil })

	a.Products = catalog.NewRepository(a.DB)
	a.Deleter = catalog.NewDeleter(a.DB, a.Disk, a.Bus)

	a.Dispatcher = outbound.New(config.ProductsWebhookURL(), config.SiteWebhookSecret(), config.OutboundTimeout())
	a.Bus.Listen(catalog.EventProductDeleted, a.Dispatcher.Listener(catalog.EventProductDeleted))

	return a, nil
}

// Webhook builds the CRM products handler.
func (a *App) Webhook() *webhook.Handler {
	return webhook.New(webhook.Deps{
		Secret:       config.CRMWebhookSecret(),
		Reconciler:   a.Reconciler,
		Images:       a.Images,
		Products:     a.Products,
		Deleter:      a.Deleter,
		Locker:       a.Locker,
		MaxBodyBytes: config.WebhookMaxBodyBytes(),
	})
}

// Close releases everything Boot opened, last opened first.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Bus.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
