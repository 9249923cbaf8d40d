// internal/services/identity_service_test.go
package services

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entityIDFormat = regexp.MustCompile(`^[A-Z]{3}[0-9A-F]{8}$`)

func TestResolveIsDeterministic(t *testing.T) {
	svc := NewIdentityService()

	first, err := svc.Resolve("falabella", "SKU-881422", "", "")
	require.NoError(t, err)
	second, err := svc.Resolve("falabella", "SKU-881422", "", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, entityIDFormat, first)
	assert.Equal(t, "FAL", first[:3])
}

func TestResolveSameSKUDifferentRetailers(t *testing.T) {
	svc := NewIdentityService()

	falabella, err := svc.Resolve("falabella", "881422", "", "")
	require.NoError(t, err)
	ripley, err := svc.Resolve("ripley", "881422", "", "")
	require.NoError(t, err)

	assert.NotEqual(t, falabella, ripley)
	assert.Equal(t, "RIP", ripley[:3])
}

func TestResolveKeyPrecedence(t *testing.T) {
	svc := NewIdentityService()

	// With a SKU present, the URL must not influence the ID
	withURL, err := svc.Resolve("paris", "P-100", "https://paris.cl/producto/1", "Nombre A")
	require.NoError(t, err)
	otherURL, err := svc.Resolve("paris", "P-100", "https://paris.cl/otro/2", "Nombre B")
	require.NoError(t, err)
	assert.Equal(t, withURL, otherURL)

	// Without a SKU the URL takes over, so different URLs split
	urlA, err := svc.Resolve("paris", "", "https://paris.cl/producto/1", "Nombre A")
	require.NoError(t, err)
	urlB, err := svc.Resolve("paris", "", "https://paris.cl/otro/2", "Nombre A")
	require.NoError(t, err)
	assert.NotEqual(t, urlA, urlB)
	assert.NotEqual(t, withURL, urlA)
}

func TestResolveURLIgnoresTrackingNoise(t *testing.T) {
	svc := NewIdentityService()

	clean, err := svc.Resolve("ripley", "", "https://simple.ripley.cl/celular-x-2004357", "")
	require.NoError(t, err)
	noisy, err := svc.Resolve("ripley", "",
		"https://simple.ripley.cl/celular-x-2004357?utm_source=email&utm_campaign=cyber&gclid=abc123", "")
	require.NoError(t, err)

	assert.Equal(t, clean, noisy)
}

func TestResolveFallsBackToName(t *testing.T) {
	svc := NewIdentityService()

	id, err := svc.Resolve("hites", "", "", "Celular Samsung Galaxy A54 128GB")
	require.NoError(t, err)
	assert.Equal(t, "HIT", id[:3])

	// Same name modulo case and punctuation resolves identically
	same, err := svc.Resolve("hites", "", "", "  CELULAR Samsung, Galaxy A54 (128GB)!  ")
	require.NoError(t, err)
	assert.Equal(t, id, same)
}

func TestResolveInsufficientData(t *testing.T) {
	svc := NewIdentityService()

	_, err := svc.Resolve("falabella", "", "", "")
	assert.ErrorIs(t, err, ErrInsufficientIdentityData)

	_, err = svc.Resolve("falabella", "   ", "", "   ")
	assert.ErrorIs(t, err, ErrInsufficientIdentityData)

	// A host-only URL carries no listing path and is not key material
	_, err = svc.Resolve("falabella", "", "https://www.falabella.com", "")
	assert.ErrorIs(t, err, ErrInsufficientIdentityData)
}

func TestCanonicalURL(t *testing.T) {
	svc := NewIdentityService()

	tests := []struct {
		name     string
		rawURL   string
		expected string
	}{
		{
			name:     "strips scheme and host",
			rawURL:   "https://www.falabella.com/falabella-cl/product/881422",
			expected: "/falabella-cl/product/881422",
		},
		{
			name:     "drops tracking params keeps real ones",
			rawURL:   "https://paris.cl/p/123?utm_source=mail&color=rojo&fbclid=zz",
			expected: "/p/123?color=rojo",
		},
		{
			name:     "drops fragment and trailing slash",
			rawURL:   "https://ripley.cl/producto/9/#reviews",
			expected: "/producto/9",
		},
		{
			name:     "all params tracking leaves bare path",
			rawURL:   "https://paris.cl/p/123?utm_source=mail&utm_medium=cpc",
			expected: "/p/123",
		},
		{
			name:     "lowercases",
			rawURL:   "https://Paris.cl/Producto/ABC",
			expected: "/producto/abc",
		},
		{
			name:     "host only is empty",
			rawURL:   "https://paris.cl",
			expected: "",
		},
		{
			name:     "empty is empty",
			rawURL:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.CanonicalURL(tt.rawURL))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	svc := NewIdentityService()

	assert.Equal(t, "samsung galaxy s24 256gb negro",
		svc.NormalizeName("  Samsung GALAXY S24, 256GB - Negro!!  "))
	assert.Equal(t, "notebook hp pavilion 15 6",
		svc.NormalizeName("Notebook HP Pavilion 15.6\""))
	assert.Equal(t, "", svc.NormalizeName("   "))
}

func TestRetailerCode(t *testing.T) {
	svc := NewIdentityService()

	assert.Equal(t, "FAL", svc.RetailerCode("falabella"))
	assert.Equal(t, "FAL", svc.RetailerCode("  Falabella "))
	assert.Equal(t, "SOD", svc.RetailerCode("sodimac"))
	assert.Equal(t, "LAP", svc.RetailerCode("lapolar"))

	// Unknown retailers derive a padded prefix
	assert.Equal(t, "DAF", svc.RetailerCode("dafiti"))
	assert.Equal(t, "ABX", svc.RetailerCode("ab"))
	assert.Equal(t, "ABX", svc.RetailerCode("a-b"))
	assert.Equal(t, "XXX", svc.RetailerCode(""))
}
