// Package imagesync mirrors a product's remote image list into stored
// ProductImage rows.
//
// Only images with a SourceURL belong to the synchronizer. Images uploaded
// by hand have none and are never touched.
package imagesync

import (
	"bytes"
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/metrics"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
	"github.com/shashiranjanraj/catalogsync/pkg/workerpool"
)

var tracer = otel.Tracer("github.com/shashiranjanraj/catalogsync/internal/imagesync")

// MaxErrors caps Stats.Errors.
const MaxErrors = 20

// Stats counts what one or more Sync calls did.
type Stats struct {
	Added   int      `json:"added"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"-"`
}

func (s *Stats) fail(ref string, err error) {
	s.Failed++
	s.note(ref, err)
}

func (s *Stats) note(ref string, err error) {
	if len(s.Errors) < MaxErrors {
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", ref, err))
	}
}

// Add folds o into s, keeping the error cap.
func (s *Stats) Add(o Stats) {
	s.Added += o.Added
	s.Deleted += o.Deleted
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	for _, e := range o.Errors {
		if len(s.Errors) >= MaxErrors {
			break
		}
		s.Errors = append(s.Errors, e)
	}
}

// Synchronizer reconciles stored images against incoming URL lists.
type Synchronizer struct {
	db      *gorm.DB
	disk    storage.Disk
	fetcher *Fetcher
	pool    *workerpool.Pool
	baseURL string
}

type Option func(*Synchronizer)

// WithBaseURL resolves relative image paths against base.
func WithBaseURL(base string) Option {
	return func(s *Synchronizer) { s.baseURL = base }
}

func WithFetcher(f *Fetcher) Option {
	return func(s *Synchronizer) { s.fetcher = f }
}

// WithWorkers sets how many downloads run at once.
func WithWorkers(n int) Option {
	return func(s *Synchronizer) { s.pool = workerpool.New(n) }
}

func New(db *gorm.DB, disk storage.Disk, opts ...Option) *Synchronizer {
	s := &Synchronizer{db: db, disk: disk}
	for _, o := range opts {
		o(s)
	}
	if s.fetcher == nil {
		s.fetcher = NewFetcher(10<<20, 0, 0)
	}
	if s.pool == nil {
		s.pool = workerpool.New(4)
	}
	return s
}

// Close stops the download pool.
func (s *Synchronizer) Close() { s.pool.Shutdown() }

type download struct {
	done bool
	got  Fetched
	err  error
}

// Sync makes p's sync-owned images match refs. It never fails: every problem
// is counted in Stats and logged.
func (s *Synchronizer) Sync(ctx context.Context, p catalog.Product, refs []string) Stats {
	ctx, span := tracer.Start(ctx, "imagesync.Sync",
		trace.WithAttributes(attribute.Int("product_id", int(p.ID))))
	defer span.End()

	log := logger.WithCtx(ctx).With("product_id", p.ID, "external_id", p.ExternalID)
	incoming := NormalizeURLs(refs, s.baseURL)

	var st Stats
	db := s.db.WithContext(ctx)

	var owned []catalog.ProductImage
	if err := db.Where("product_id = ? AND source_url <> ?", p.ID, "").
		Order("position, id").Find(&owned).Error; err != nil {
		log.Error("imagesync: load images", "error", err)
		for _, ref := range incoming {
			st.fail(ref, err)
		}
		return st
	}

	wanted := make(map[string]struct{}, len(incoming))
	for _, ref := range incoming {
		wanted[ref] = struct{}{}
	}
	current := make(map[string]struct{}, len(owned))
	for _, img := range owned {
		current[img.SourceURL] = struct{}{}
		if _, keep := wanted[img.SourceURL]; keep {
			continue
		}
		if err := db.Delete(&catalog.ProductImage{}, img.ID).Error; err != nil {
			log.Warn("imagesync: delete row", "source_url", img.SourceURL, "error", err)
			st.note(img.SourceURL, err)
			continue
		}
		if err := s.disk.Delete(ctx, img.Path); err != nil {
			log.Warn("imagesync: delete blob", "path", img.Path, "error", err)
		}
		st.Deleted++
	}

	var todo []string
	for _, ref := range incoming {
		switch {
		case hasKey(current, ref):
			st.Skipped++
		case len(ref) > catalog.SourceURLMaxLen:
			st.fail(ref, ErrURLTooLong)
		default:
			todo = append(todo, ref)
		}
	}

	if len(todo) > 0 {
		s.store(ctx, db, p, todo, &st)
	}

	span.SetAttributes(
		attribute.Int("added", st.Added),
		attribute.Int("deleted", st.Deleted),
		attribute.Int("skipped", st.Skipped),
		attribute.Int("failed", st.Failed),
	)
	metrics.ObserveImages(st.Added, st.Deleted, st.Skipped, st.Failed)
	log.Info("imagesync: done", "added", st.Added, "deleted", st.Deleted, "skipped", st.Skipped, "failed", st.Failed)
	return st
}

// store downloads todo concurrently and persists the results in order.
func (s *Synchronizer) store(ctx context.Context, db *gorm.DB, p catalog.Product, todo []string, st *Stats) {
	log := logger.WithCtx(ctx)

	results := make([]download, len(todo))
	poolErr := s.pool.Each(ctx, len(todo), func(i int) {
		got, err := s.fetcher.Fetch(ctx, todo[i])
		results[i] = download{done: true, got: got, err: err}
	})

	var pos struct{ Max int }
	if err := db.Model(&catalog.ProductImage{}).
		Select("COALESCE(MAX(position), -1) AS max").
		Where("product_id = ?", p.ID).
		Scan(&pos).Error; err != nil {
		pos.Max = -1
	}
	next := pos.Max + 1

	for i, ref := range todo {
		r := results[i]
		switch {
		case !r.done:
			err := poolErr
			if err == nil {
				err = ctx.Err()
			}
			st.fail(ref, err)
			continue
		case r.err != nil:
			log.Warn("imagesync: fetch failed", "url", ref, "error", r.err)
			st.fail(ref, r.err)
			continue
		}

		key := objectPath(p.ID, ref, r.got.ContentType)
		if err := s.disk.Put(ctx, key, bytes.NewReader(r.got.Data), r.got.ContentType); err != nil {
			log.Warn("imagesync: store blob", "url", ref, "error", err)
			st.fail(ref, err)
			continue
		}

		img := catalog.ProductImage{
			ProductID:   p.ID,
			Path:        key,
			SourceURL:   ref,
			ContentType: r.got.ContentType,
			Size:        int64(len(r.got.Data)),
			Position:    next,
		}
		if err := db.Create(&img).Error; err != nil {
			log.Warn("imagesync: insert row", "url", ref, "error", err)
			_ = s.disk.Delete(ctx, key)
			st.fail(ref, err)
			continue
		}
		next++
		st.Added++
	}
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
