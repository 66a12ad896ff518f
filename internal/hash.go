package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SHA256sum computes a cryptographic hash. Used where the digest ends up in
// something a visitor can see, such as a credential ETag.
func SHA256sum(text string) string {
	hash := sha256.New()
	hash.Write([]byte(text))
	return hex.EncodeToString(hash.Sum(nil))
}

// FastHash is a high-performance non-cryptographic hash function suitable for
// internal caching, store keys, and other performance-critical use cases
// where cryptographic security is not required.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}

// EmailKey folds an email address to a stable, log-safe key. Addresses that
// differ only in case or surrounding whitespace map to the same key.
func EmailKey(email string) string {
	return FastHash(strings.ToLower(strings.TrimSpace(email)))
}
