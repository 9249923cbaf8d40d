// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	// SHA-256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashString("abc"))

	assert.Equal(t, HashString("falabella|sku:882910"), HashString("falabella|sku:882910"))
	assert.NotEqual(t, HashString("falabella|sku:882910"), HashString("ripley|sku:882910"))
}

func TestHashPrefix(t *testing.T) {
	assert.Equal(t, "BA7816BF", HashPrefix("abc", 8))
	assert.Len(t, HashPrefix("anything", 8), 8)

	// n beyond the digest length returns the whole digest
	assert.Len(t, HashPrefix("abc", 100), 64)
	assert.Equal(t, "", HashPrefix("abc", 0))
}
