package imagesync

import (
	"net/url"
	"strings"
)

// NormalizeURLs trims and dedupes raw image references, preserving order.
// Absolute and protocol-relative URLs are kept as they are; everything else
// is resolved against base, or dropped when base is empty or unparsable.
func NormalizeURLs(raw []string, base string) []string {
	var baseURL *url.URL
	if b := strings.TrimSpace(base); b != "" {
		if u, err := url.Parse(b); err == nil && u.Scheme != "" && u.Host != "" {
			baseURL = u
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s := strings.TrimSpace(r)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "//") {
			u, err := url.Parse(s)
			if err != nil {
				continue
			}
			if u.Scheme == "" {
				if baseURL == nil {
					continue
				}
				s = baseURL.ResolveReference(u).String()
			}
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// fetchURL is the URL actually requested for a normalized reference.
func fetchURL(s string) string {
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return s
}
