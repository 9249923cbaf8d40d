// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashPrefix returns the first n hex characters of the SHA-256 of input,
// uppercased. Used for the hash segment of content-derived entity IDs.
func HashPrefix(input string, n int) string {
	full := HashString(input)
	if n > len(full) {
		n = len(full)
	}
	return strings.ToUpper(full[:n])
}
