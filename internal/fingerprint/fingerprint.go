// Package fingerprint derives the deterministic identity keys used for every
// stored entity. Keys look like "step:<sha256 hex>".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Entity prefixes.
const (
	Page     = "page"
	Element  = "element"
	Step     = "step"
	Journey  = "journey"
	Audit    = "audit"
	Issue    = "issue"
	TestUser = "testuser"
	Redirect = "redirect"
	Blob     = "blob"
)

// Of hashes the ordered parts and tags the digest with prefix. Each part is
// NUL-terminated before hashing so ("ab","c") and ("a","bc") differ.
func Of(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Joined hashes parts joined with "|" as a single component.
func Joined(prefix string, parts []string) string {
	return Of(prefix, strings.Join(parts, "|"))
}

// Kind returns the prefix of a key, or "" if key has none.
func Kind(key string) string {
	k, _, ok := strings.Cut(key, ":")
	if !ok {
		return ""
	}
	return k
}

// Valid reports whether key has a prefix and a 64 char hex digest.
func Valid(key string) bool {
	k, digest, ok := strings.Cut(key, ":")
	if !ok || k == "" || len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
