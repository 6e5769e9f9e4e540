package payload

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
)

// Synonym lists, first non-empty wins.
var (
	idKeys       = []string{"id", "product_id", "external_id"}
	discountKeys = []string{"discount", "discount_percent"}
)

// Extract reads one item. Only a missing or malformed identifier fails the
// item; every other field degrades to unset or to zero.
func Extract(index int, m map[string]any) (catalog.Item, error) {
	it := catalog.Item{Index: index}

	id, err := ExternalID(m)
	if err != nil {
		return it, err
	}
	it.ExternalID = id

	it.Name = trimmed(m["name"])
	it.Code = trimmed(m["code"])
	it.Slug = trimmed(m["slug"])
	if raw, ok := m["description"]; ok {
		if s, ok := text(raw); ok {
			it.Description = &s
		}
	}

	it.Price = decimalField(m, "price")
	it.OldPrice = decimalField(m, "old_price")
	if v, ok := firstPresent(m, discountKeys); ok {
		d := catalog.ClampDiscount(Int(v))
		it.Discount = &d
	}
	if v, ok := m["quantity"]; ok && v != nil {
		q := max(Int(v), 0)
		it.Quantity = &q
	}

	it.Promotion = boolField(m, "promotion")
	it.IsActive = boolField(m, "is_active")
	it.IsAvailable = boolField(m, "is_available")

	it.Category = categoryRef(m["category"])
	it.Images, it.HasImages = imageURLs(m)

	return it, nil
}

// ExternalID resolves the item's identifier from id, product_id or
// external_id, in that order.
func ExternalID(m map[string]any) (uuid.UUID, error) {
	raw, ok := firstPresent(m, idKeys)
	if !ok {
		return uuid.Nil, &FieldError{Field: "id", Err: ErrMissingID}
	}
	s, _ := text(raw)
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &FieldError{Field: "id", Value: raw, Err: ErrInvalidID}
	}
	return id, nil
}

// firstPresent returns the first key whose value is neither null nor blank.
func firstPresent(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return decimal.NewFromFloat(t).String(), true
	default:
		return "", false
	}
}

func trimmed(v any) *string {
	s, ok := text(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func decimalField(m map[string]any, key string) *decimal.Decimal {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	d := Decimal(v).Round(2)
	return &d
}

// Decimal coerces v to an exact decimal, or zero when it cannot.
// Strings may use "." or "," as the decimal separator and spaces as
// thousands separators; with both separators present the right-most one is
// the decimal point.
func Decimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
		return Decimal(t.String())
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case string:
		if d, ok := parseLocaleDecimal(t); ok {
			return d
		}
	}
	return decimal.Zero
}

func parseLocaleDecimal(s string) (decimal.Decimal, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'', '_':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, false
	}

	comma, dot := strings.LastIndexByte(s, ','), strings.LastIndexByte(s, '.')
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Int coerces v through Decimal and truncates toward zero.
func Int(v any) int {
	d := Decimal(v).Truncate(0)
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return math.MaxInt32
	}
	if d.LessThan(decimal.NewFromInt(math.MinInt32)) {
		return math.MinInt32
	}
	return int(d.IntPart())
}

func boolField(m map[string]any, key string) *bool {
	v, ok := m[key]
	if !ok {
		return nil
	}
	if b, ok := Bool(v); ok {
		return &b
	}
	return nil
}

// Bool reads JSON booleans, numbers (non-zero is true) and the usual words.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return false, false
		}
		return !d.IsZero(), true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		}
	}
	return false, false
}

func categoryRef(v any) *catalog.CategoryRef {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return &catalog.CategoryRef{Name: s}
		}
	case map[string]any:
		ref := catalog.CategoryRef{}
		if s := trimmed(t["slug"]); s != nil {
			ref.Slug = *s
		}
		if s := trimmed(t["name"]); s != nil {
			ref.Name = *s
		}
		if ref.Slug != "" || ref.Name != "" {
			return &ref
		}
	}
	return nil
}

// imageURLs returns the raw image references and whether the payload asked
// for image sync at all. A missing or null "images" key leaves images alone.
func imageURLs(m map[string]any) ([]string, bool) {
	raw, ok := m["images"]
	if !ok || raw == nil {
		return nil, false
	}

	var list []any
	switch t := raw.(type) {
	case []any:
		list = t
	case string, map[string]any:
		list = []any{t}
	default:
		return nil, false
	}

	out := make([]string, 0, len(list))
	for _, e := range list {
		switch t := e.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if v, ok := firstPresent(t, []string{"image_url", "image"}); ok {
				if s := trimmed(v); s != nil {
					out = append(out, *s)
				}
			}
		}
	}
	return out, true
}
