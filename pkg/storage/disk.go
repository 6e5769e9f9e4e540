// Package storage stores product image binaries.
//
// Three drivers implement Disk:
//   - "local"  local filesystem (default)
//   - "s3"     S3-compatible object storage (AWS S3, MinIO, R2, Spaces)
//   - memory   in-process map, used by tests
//
// Open picks the driver named by Config.Disk:
//
//	disk, err := storage.Open(storage.Config{Disk: "s3", S3Bucket: "catalog"})
//	err = disk.Put(ctx, "products/42/ab12cd34_front.jpg", r, "image/jpeg")
//	url := disk.URL("products/42/ab12cd34_front.jpg")
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Disk is the filesystem driver interface.
type Disk interface {
	// Put writes r to path, creating parents as needed.
	Put(ctx context.Context, path string, r io.Reader, contentType string) error

	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) bool

	// URL returns the public URL for path.
	URL(path string) string

	// Delete removes a file. Returns nil if it did not exist.
	Delete(ctx context.Context, path string) error

	// DeleteDirectory removes every file under prefix.
	DeleteDirectory(ctx context.Context, prefix string) error
}

// ErrNotConfigured is returned by Open for an unknown or incomplete driver.
var ErrNotConfigured = errors.New("storage: disk not configured")

// Config selects and configures a driver.
type Config struct {
	Disk string

	LocalRoot string
	LocalURL  string

	S3Bucket   string
	S3Region   string
	S3Key      string
	S3Secret   string
	S3Endpoint string
	S3URL      string
}

// Open returns the disk named by cfg.Disk.
func Open(ctx context.Context, cfg Config) (Disk, error) {
	switch cfg.Disk {
	case "", "local":
		return NewLocal(cfg.LocalRoot, cfg.LocalURL)
	case "s3":
		return newS3Disk(ctx, cfg)
	case "memory":
		return NewMemory(cfg.LocalURL), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrNotConfigured, cfg.Disk)
	}
}
