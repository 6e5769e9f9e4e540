package slug_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/catalogsync/pkg/slug"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Café Crème 250 g":    "cafe-creme-250-g",
		"  Hello,   World!  ": "hello-world",
		"already-a-slug":      "already-a-slug",
		"snake_case__name":    "snake-case-name",
		"A/B & C":             "a-b-c",
		"Чай":                 "",
		"":                    "",
		"--x--":               "x",
	}
	for in, want := range cases {
		assert.Equal(t, want, slug.Make(in), "input %q", in)
	}
}

func TestFallback_IsStable(t *testing.T) {
	a := slug.Fallback("product", "Чай")
	b := slug.Fallback("product", "Чай")
	c := slug.Fallback("category", "Чай")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "product-"))
	assert.Len(t, a, len("product-")+10)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a[len("product-"):], c[len("category-"):])
}

func TestFromName(t *testing.T) {
	assert.Equal(t, "green-tea", slug.FromName("product", "Green Tea"))
	assert.Equal(t, slug.Fallback("product", "Чай"), slug.FromName("product", "Чай"))
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "tea-1", slug.WithSuffix("tea", 1, 255))
	assert.Equal(t, "abcd-12", slug.WithSuffix("abcdefgh", 12, 7))
	assert.Equal(t, "ab-3", slug.WithSuffix("ab-cdef", 3, 5))
	assert.LessOrEqual(t, len(slug.WithSuffix(strings.Repeat("x", 600), 99, 512)), 512)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", slug.Truncate("abcdef", 3))
	assert.Equal(t, "abc", slug.Truncate("abc", 10))
	assert.Equal(t, "ab", slug.Truncate("ab-cd", 3))
	assert.Equal(t, "жё", slug.Truncate("жёлтый", 2))
}
