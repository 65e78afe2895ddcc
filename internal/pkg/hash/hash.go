// Package hash derives deterministic keys for cache entries and model
// fingerprints.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives a hex SHA-256 key from its parts. Parts are separated by a
// NUL byte so ("ab", "c") and ("a", "bc") hash differently.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShortKey is Key truncated to n hex characters.
func ShortKey(n int, parts ...string) string {
	k := Key(parts...)
	if n <= 0 || n >= len(k) {
		return k
	}
	return k[:n]
}
