package catalog

import (
	"fmt"

	"github.com/shashiranjanraj/catalogsync/pkg/slug"
	"gorm.io/gorm"
)

// Scope names a unique column and its maximum length.
type Scope struct {
	Table  string
	Column string
	Max    int
}

var (
	ProductSlug  = Scope{Table: "products", Column: "slug", Max: SlugMaxLen}
	ProductCode  = Scope{Table: "products", Column: "code", Max: CodeMaxLen}
	CategorySlug = Scope{Table: "categories", Column: "slug", Max: CategorySlugMaxLen}
)

const maxSuffix = 10000

// Allocator hands out values that are free in a unique column. Every check
// reads through to the database in the caller's transaction.
type Allocator struct{}

// Taken reports whether value is used by a row other than excludeID.
// Pass excludeID 0 when allocating for a new row.
func (Allocator) Taken(tx *gorm.DB, s Scope, value string, excludeID uint) (bool, error) {
	q := tx.Table(s.Table).Where(s.Column+" = ?", value)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("catalog: check %s.%s: %w", s.Table, s.Column, err)
	}
	return n > 0, nil
}

// Unique returns base (cut to the scope's length) when free, otherwise the
// first free base-1, base-2, ...
func (a Allocator) Unique(tx *gorm.DB, s Scope, base string, excludeID uint) (string, error) {
	candidate := slug.Truncate(base, s.Max)
	for n := 1; n <= maxSuffix; n++ {
		taken, err := a.Taken(tx, s, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = slug.WithSuffix(base, n, s.Max)
	}
	return "", fmt.Errorf("catalog: %s.%s for %q: %w", s.Table, s.Column, base, ErrExhausted)
}
