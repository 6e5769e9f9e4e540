// Package signature signs and verifies webhook bodies with HMAC-SHA256.
//
// The header value has the form "sha256=<lowercase hex digest>" and is
// computed over the exact body bytes. The same helpers sign outbound
// notifications and check inbound CRM pushes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header carries the signature on both inbound and outbound requests.
const Header = "X-CRM-Signature"

const prefix = "sha256="

// Sign returns the header value for body under secret.
func Sign(body []byte, secret string) string {
	return prefix + hex.EncodeToString(digest(body, secret))
}

// Verify reports whether header is a valid signature of body under secret.
// An empty secret or header never verifies.
func Verify(body []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(header[len(prefix):]))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, digest(body, secret))
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
