package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
)

// EventProductDeleted is fired asynchronously with a PublicProduct after
// the deleting transaction has committed.
const EventProductDeleted = "product.deleted"

// Deleter removes products with their images and announces the deletion.
type Deleter struct {
	db   *gorm.DB
	disk storage.Disk
	bus  *event.Bus
}

func NewDeleter(db *gorm.DB, disk storage.Disk, bus *event.Bus) *Deleter {
	return &Deleter{db: db, disk: disk, bus: bus}
}

// Delete removes the product with the given id. The returned snapshot is
// taken inside the transaction, before any row is gone.
func (d *Deleter) Delete(ctx context.Context, productID uint) (PublicProduct, error) {
	ctx, span := tracer.Start(ctx, "catalog.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("product_id", int(productID)))

	var (
		snapshot PublicProduct
		paths    []string
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Product
		err := tx.Preload("Category").
			Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
			First(&p, productID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("catalog: load product: %w", err)
		}

		snapshot = Public(p, d.urlFor)
		for _, img := range p.Images {
			paths = append(paths, img.Path)
		}

		if err := tx.Where("product_id = ?", p.ID).Delete(&ProductImage{}).Error; err != nil {
			return fmt.Errorf("catalog: delete images: %w", err)
		}
		if err := tx.Delete(&Product{}, p.ID).Error; err != nil {
			return fmt.Errorf("catalog: delete product: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return PublicProduct{}, err
	}

	log := logger.WithCtx(ctx).With("external_id", snapshot.ExternalID)
	if d.disk != nil {
		for _, path := range paths {
			if err := d.disk.Delete(ctx, path); err != nil {
				log.Warn("catalog: image blob left behind", "path", path, "error", err)
			}
		}
	}
	log.Info("catalog: product deleted", "product_id", snapshot.ID, "images", len(paths))

	if d.bus != nil && snapshot.ExternalID != uuid.Nil.String() {
		d.bus.FireAsync(ctx, EventProductDeleted, snapshot)
	}
	return snapshot, nil
}

func (d *Deleter) urlFor(path string) string {
	if d.disk == nil {
		return ""
	}
	return d.disk.URL(path)
}
