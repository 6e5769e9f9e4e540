package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/slug"
)

var tracer = otel.Tracer("github.com/shashiranjanraj/catalogsync/internal/catalog")

// Reconciler creates or updates one product per item, each in its own
// transaction.
type Reconciler struct {
	db           *gorm.DB
	alloc        Allocator
	syncQuantity bool
}

type Option func(*Reconciler)

// WithQuantitySync controls whether quantity is taken from the CRM. When
// off, stock is managed locally and incoming quantities are ignored.
func WithQuantitySync(on bool) Option {
	return func(r *Reconciler) { r.syncQuantity = on }
}

func NewReconciler(db *gorm.DB, opts ...Option) *Reconciler {
	r := &Reconciler{db: db, syncQuantity: true}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile applies it to the catalog. Any failure is returned as an
// *ItemError and leaves the database untouched for this item.
func (r *Reconciler) Reconcile(ctx context.Context, it Item) (Result, error) {
	ctx, span := tracer.Start(ctx, "catalog.Reconcile",
		trace.WithAttributes(attribute.String("external_id", it.ExternalID.String())))
	defer span.End()

	res := Result{ExternalID: it.ExternalID}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var categoryID *uint
		if it.Category != nil {
			c, err := r.resolveCategory(tx, *it.Category)
			if err != nil {
				return err
			}
			if c != nil {
				categoryID = &c.ID
			}
		}

		var p Product
		found, err := first(tx.Where("external_id = ?", it.ExternalID), &p)
		if err != nil {
			return fmt.Errorf("catalog: lookup: %w", err)
		}

		if !found {
			if p, err = r.create(tx, it, categoryID); err != nil {
				return err
			}
			res.Created, res.Saved = true, true
		} else {
			changed, err := r.update(ctx, tx, &p, it, categoryID)
			if err != nil {
				return err
			}
			res.Saved = changed
		}

		return tx.Preload("Category").First(&res.Product, p.ID).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, &ItemError{Index: it.Index, ExternalID: it.ExternalID.String(), Err: err}
	}

	span.SetAttributes(attribute.Bool("created", res.Created), attribute.Bool("saved", res.Saved))
	return res, nil
}

func (r *Reconciler) create(tx *gorm.DB, it Item, categoryID *uint) (Product, error) {
	code := clip(strings.TrimSpace(deref(it.Code)), CodeMaxLen)
	name := clip(strings.TrimSpace(deref(it.Name)), NameMaxLen)
	if name == "" {
		name = code
	}
	if name == "" {
		name = it.ExternalID.String()
	}

	productSlug, err := r.newSlug(tx, it, code, name)
	if err != nil {
		return Product{}, err
	}

	finalCode := ""
	if code != "" {
		taken, err := r.alloc.Taken(tx, ProductCode, code, 0)
		if err != nil {
			return Product{}, err
		}
		if !taken {
			finalCode = code
		}
	}
	if finalCode == "" {
		if finalCode, err = r.alloc.Unique(tx, ProductCode, it.ExternalID.String(), 0); err != nil {
			return Product{}, err
		}
	}

	p := Product{
		ExternalID:  it.ExternalID,
		Code:        finalCode,
		Name:        name,
		Slug:        productSlug,
		Description: deref(it.Description),
		CategoryID:  categoryID,
		Price:       nullDecimal(it.Price),
		OldPrice:    nullDecimal(it.OldPrice),
		Discount:    ClampDiscount(deref(it.Discount)),
		Promotion:   derefOr(it.Promotion, false),
		IsActive:    derefOr(it.IsActive, true),
		IsAvailable: derefOr(it.IsAvailable, true),
	}
	if r.syncQuantity {
		p.Quantity = max(deref(it.Quantity), 0)
	}

	if err := tx.Omit(clause.Associations).Create(&p).Error; err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	return p, nil
}

// newSlug prefers the item's own slug when it is free, then derives one from
// code, name or a hash of the name.
func (r *Reconciler) newSlug(tx *gorm.DB, it Item, code, name string) (string, error) {
	if it.Slug != nil {
		if want := slug.Truncate(slug.Make(*it.Slug), SlugMaxLen); want != "" {
			taken, err := r.alloc.Taken(tx, ProductSlug, want, 0)
			if err != nil {
				return "", err
			}
			if !taken {
				return want, nil
			}
		}
	}

	base := slug.Make(code)
	if base == "" {
		base = slug.FromName("product", name)
	}
	return r.alloc.Unique(tx, ProductSlug, base, 0)
}

// update writes only the columns that differ and reports whether it wrote.
func (r *Reconciler) update(ctx context.Context, tx *gorm.DB, p *Product, it Item, categoryID *uint) (bool, error) {
	log := logger.WithCtx(ctx).With("external_id", p.ExternalID.String())
	changes := map[string]any{}

	if it.Name != nil {
		if n := clip(strings.TrimSpace(*it.Name), NameMaxLen); n != "" && n != p.Name {
			changes["name"] = n
		}
	}
	if it.Description != nil && *it.Description != p.Description {
		changes["description"] = *it.Description
	}

	if it.Code != nil {
		if c := clip(strings.TrimSpace(*it.Code), CodeMaxLen); c != "" && c != p.Code {
			taken, err := r.alloc.Taken(tx, ProductCode, c, p.ID)
			if err != nil {
				return false, err
			}
			if taken {
				log.Warn("catalog: code belongs to another product, keeping current", "code", c, "current", p.Code)
			} else {
				changes["code"] = c
			}
		}
	}
	if it.Slug != nil {
		if s := slug.Truncate(slug.Make(*it.Slug), SlugMaxLen); s != "" && s != p.Slug {
			taken, err := r.alloc.Taken(tx, ProductSlug, s, p.ID)
			if err != nil {
				return false, err
			}
			if taken {
				log.Warn("catalog: slug belongs to another product, keeping current", "slug", s, "current", p.Slug)
			} else {
				changes["slug"] = s
			}
		}
	}

	if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
		changes["category_id"] = *categoryID
	}

	if it.Price != nil && !decimalEqual(p.Price, *it.Price) {
		changes["price"] = nullDecimal(it.Price)
	}
	if it.OldPrice != nil && !decimalEqual(p.OldPrice, *it.OldPrice) {
		changes["old_price"] = nullDecimal(it.OldPrice)
	}
	if it.Discount != nil {
		if d := ClampDiscount(*it.Discount); d != p.Discount {
			changes["discount"] = d
		}
	}
	if r.syncQuantity && it.Quantity != nil {
		if q := max(*it.Quantity, 0); q != p.Quantity {
			changes["quantity"] = q
		}
	}

	setBool := func(col string, in *bool, cur bool) {
		if in != nil && *in != cur {
			changes[col] = *in
		}
	}
	setBool("promotion", it.Promotion, p.Promotion)
	setBool("is_active", it.IsActive, p.IsActive)
	setBool("is_available", it.IsAvailable, p.IsAvailable)

	if len(changes) == 0 {
		return false, nil
	}
	if err := tx.Model(p).Omit(clause.Associations).Updates(changes).Error; err != nil {
		return false, fmt.Errorf("catalog: update product: %w", err)
	}
	log.Debug("catalog: product updated", "fields", len(changes))
	return true, nil
}

// resolveCategory finds a category by slug, then by the slug derived from
// its name, and creates it otherwise. A ref with neither yields nil.
func (r *Reconciler) resolveCategory(tx *gorm.DB, ref CategoryRef) (*Category, error) {
	want := slug.Truncate(slug.Make(ref.Slug), CategorySlugMaxLen)
	if want == "" && strings.TrimSpace(ref.Slug) != "" {
		want = slug.Truncate(slug.FromName("category", strings.TrimSpace(ref.Slug)), CategorySlugMaxLen)
	}
	name := clip(strings.TrimSpace(ref.Name), CategoryNameMaxLen)

	var c Category
	if want != "" {
		found, err := first(tx.Where("slug = ?", want), &c)
		if err != nil {
			return nil, fmt.Errorf("catalog: lookup category: %w", err)
		}
		if found {
			return &c, nil
		}
	}

	derived := ""
	if name != "" {
		derived = slug.Truncate(slug.FromName("category", name), CategorySlugMaxLen)
		found, err := first(tx.Where("slug = ?", derived), &c)
		if err != nil {
			return nil, fmt.Errorf("catalog: lookup category: %w", err)
		}
		if found {
			return &c, nil
		}
	}

	base := want
	if base == "" {
		base = derived
	}
	if base == "" {
		return nil, nil
	}
	unique, err := r.alloc.Unique(tx, CategorySlug, base, 0)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = clip(strings.TrimSpace(ref.Slug), CategoryNameMaxLen)
	}

	c = Category{Name: name, Slug: unique, IsActive: true}
	if err := tx.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("catalog: create category: %w", err)
	}
	return &c, nil
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ClampDiscount keeps a discount percentage within 0..MaxDiscount.
func ClampDiscount(d int) int {
	return min(max(d, 0), MaxDiscount)
}

func first(q *gorm.DB, dest any) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d.Round(2), Valid: true}
}

func decimalEqual(cur decimal.NullDecimal, in decimal.Decimal) bool {
	return cur.Valid && cur.Decimal.Equal(in.Round(2))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
