// Package slug builds URL-safe identifiers.
//
// Make folds accents (é → e) and keeps only lower-case ASCII letters, digits
// and single hyphens. Text that folds to nothing, such as Cyrillic names,
// gets a deterministic Fallback instead:
//
//	slug.Make("Café Crème 250 g")   // "cafe-creme-250-g"
//	slug.FromName("product", "Чай") // "product-5f6c0e8a1b"
package slug

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackHashLen = 10

// Make returns the slug form of s, possibly empty.
func Make(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Fallback is tag plus a short stable hash of text.
func Fallback(tag, text string) string {
	sum := sha1.Sum([]byte(text))
	return tag + "-" + hex.EncodeToString(sum[:])[:fallbackHashLen]
}

// FromName is Make(text), or Fallback(tag, text) when that is empty.
func FromName(tag, text string) string {
	if s := Make(text); s != "" {
		return s
	}
	return Fallback(tag, text)
}

// Truncate cuts s to at most max runes. Trailing hyphens left by the cut are
// dropped.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimRight(string(r[:max]), "-")
}

// WithSuffix returns base-n, shortening base so the result fits in max runes.
func WithSuffix(base string, n, max int) string {
	suffix := "-" + strconv.Itoa(n)
	room := max - len(suffix)
	if room < 1 {
		return Truncate(strings.TrimPrefix(suffix, "-"), max)
	}
	return Truncate(base, room) + suffix
}
