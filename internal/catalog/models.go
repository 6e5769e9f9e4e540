// Package catalog owns products, categories and their images, and reconciles
// CRM items against them.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CodeMaxLen         = 255
	NameMaxLen         = 512
	SlugMaxLen         = 512
	CategoryNameMaxLen = 255
	CategorySlugMaxLen = 255
	SourceURLMaxLen    = 2048

	MaxDiscount = 95
)

// Category is a node in the catalog tree.
type Category struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Slug      string    `gorm:"size:255;not null;uniqueIndex"`
	ParentID  *uint     `gorm:"index"`
	Parent    *Category `gorm:"constraint:OnDelete:SET NULL"`
	IsActive  bool      `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is one sellable catalog entry. ExternalID ties it to the CRM record
// and never changes once assigned.
type Product struct {
	ID          uint                `gorm:"primaryKey"`
	ExternalID  uuid.UUID           `gorm:"size:36;not null;uniqueIndex"`
	Code        string              `gorm:"size:255;not null;uniqueIndex"`
	Name        string              `gorm:"size:512;not null"`
	Slug        string              `gorm:"size:512;not null;uniqueIndex"`
	Description string              `gorm:"type:text"`
	CategoryID  *uint               `gorm:"index"`
	Category    *Category           `gorm:"constraint:OnDelete:SET NULL"`
	Price       decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	OldPrice    decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Discount    int                 `gorm:"not null"`
	Quantity    int                 `gorm:"not null"`
	Promotion   bool                `gorm:"not null"`
	IsActive    bool                `gorm:"not null;index"`
	IsAvailable bool                `gorm:"not null"`
	Images      []ProductImage      `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate assigns an external id to products created outside the sync.
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ExternalID == uuid.Nil {
		p.ExternalID = uuid.New()
	}
	return nil
}

// ProductImage is one stored asset. SourceURL is empty for images uploaded
// by hand; the sync engine only ever removes images with a SourceURL.
type ProductImage struct {
	ID          uint      `gorm:"primaryKey"`
	ProductID   uint      `gorm:"not null;index"`
	Path        string    `gorm:"size:1024;not null"`
	SourceURL   string    `gorm:"size:2048;index"`
	ContentType string    `gorm:"size:100"`
	Size        int64     `gorm:"not null"`
	Position    int       `gorm:"not null"`
	CreatedAt   time.Time
}

// SyncOwned reports whether the image was fetched by the sync engine.
func (i ProductImage) SyncOwned() bool { return i.SourceURL != "" }

// Models lists every table owned by the catalog, in creation order.
func Models() []any {
	return []any{&Category{}, &Product{}, &ProductImage{}}
}
