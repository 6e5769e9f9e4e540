package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one normalized product record from the CRM. Nil fields were absent
// from the payload and leave the stored value alone.
type Item struct {
	Index      int
	ExternalID uuid.UUID

	Name        *string
	Code        *string
	Slug        *string
	Description *string

	Price    *decimal.Decimal
	OldPrice *decimal.Decimal
	Discount *int
	Quantity *int

	Promotion   *bool
	IsActive    *bool
	IsAvailable *bool

	Category *CategoryRef

	// HasImages is false when the payload carried no images key at all, in
	// which case image sync is skipped for the item.
	HasImages bool
	Images    []string
}

// CategoryRef identifies a category by slug, name or both.
type CategoryRef struct {
	Slug string
	Name string
}

// Result is the outcome of reconciling one item.
type Result struct {
	ExternalID uuid.UUID
	Created    bool
	Saved      bool
	Product    Product
}

// ItemError is a failure isolated to one item of a batch.
type ItemError struct {
	Index      int
	ExternalID string
	Err        error
}

func (e *ItemError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("item %d (%s): %v", e.Index, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

var (
	ErrNotFound  = errors.New("product not found")
	ErrExhausted = errors.New("no free value left")
)
