package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// PublicProduct is the representation shared with other systems, for
// example in the product.deleted notification.
type PublicProduct struct {
	ID          uint            `json:"id"`
	ExternalID  string          `json:"external_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Category    *PublicCategory `json:"category"`
	Price       *string         `json:"price"`
	OldPrice    *string         `json:"old_price"`
	Discount    int             `json:"discount"`
	Promotion   bool            `json:"promotion"`
	Quantity    int             `json:"quantity"`
	IsActive    bool            `json:"is_active"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Images      []PublicImage   `json:"images"`
}

type PublicCategory struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type PublicImage struct {
	ID       uint   `json:"id"`
	Image    string `json:"image"`
	ImageURL string `json:"image_url"`
}

// URLFunc maps a storage path to its public URL.
type URLFunc func(path string) string

// Public builds the shared representation of p. Category and Images are
// used as loaded; url may be nil.
func Public(p Product, url URLFunc) PublicProduct {
	out := PublicProduct{
		ID:          p.ID,
		ExternalID:  p.ExternalID.String(),
		Code:        p.Code,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       money(p.Price),
		OldPrice:    money(p.OldPrice),
		Discount:    p.Discount,
		Promotion:   p.Promotion,
		Quantity:    p.Quantity,
		IsActive:    p.IsActive,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Images:      make([]PublicImage, 0, len(p.Images)),
	}
	if p.Category != nil {
		out.Category = &PublicCategory{ID: p.Category.ID, Name: p.Category.Name, Slug: p.Category.Slug}
	}
	for _, img := range p.Images {
		pi := PublicImage{ID: img.ID, Image: img.Path}
		if url != nil {
			pi.ImageURL = url(img.Path)
		}
		out.Images = append(out.Images, pi)
	}
	return out
}

func money(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}
