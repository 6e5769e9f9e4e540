// Package migrations holds the catalog schema. Each file registers its
// migrations from init(); import the package for its side effects.
package migrations
