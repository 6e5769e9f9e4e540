package imagesync

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxFilenameLen = 100

var knownExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/avif":    ".avif",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
}

// objectPath is the storage key for a new image of product id.
func objectPath(productID uint, ref, contentType string) string {
	return fmt.Sprintf("products/%d/%s_%s", productID, randomHex(8), Filename(ref, contentType))
}

// Filename derives a safe file name from ref's path, or generates one from
// the content type when the path has no usable name.
func Filename(ref, contentType string) string {
	name := ""
	if u, err := url.Parse(fetchURL(ref)); err == nil {
		base := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		name = sanitize(base)
	}
	if name == "" {
		return "image-" + randomHex(12) + extFor(contentType)
	}
	return capLength(name, maxFilenameLen)
}

func sanitize(s string) string {
	var b strings.Builder
	lastSub := false
	for _, r := range s {
		ok := r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			lastSub = false
			continue
		}
		if !lastSub {
			b.WriteByte('_')
			lastSub = true
		}
	}
	return strings.Trim(b.String(), "_-.")
}

// capLength truncates name to max bytes keeping a short extension.
func capLength(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := path.Ext(name)
	if len(ext) > 10 {
		ext = ""
	}
	return name[:max-len(ext)] + ext
}

func extFor(contentType string) string {
	if ext, ok := knownExt[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
