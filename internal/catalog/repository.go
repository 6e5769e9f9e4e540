package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads products for the webhook and admin commands.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) load(ctx context.Context, q func(*gorm.DB) *gorm.DB) (Product, error) {
	var p Product
	err := q(r.db.WithContext(ctx)).
		Preload("Category").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: load product: %w", err)
	}
	return p, nil
}

// ByExternalID returns the product with its category and images.
func (r *Repository) ByExternalID(ctx context.Context, id uuid.UUID) (Product, error) {
	return r.load(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("external_id = ?", id) })
}

// BySlug returns the product with its category and images.
func (r *Repository) BySlug(ctx context.Context, s string) (Product, error) {
	return r.load(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("slug = ?", s) })
}
