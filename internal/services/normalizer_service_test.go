// internal/services/normalizer_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestNormalizer() *NormalizerService {
	return NewNormalizerService(NewIdentityService())
}

func TestNormalizeFullListing(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("Celular Samsung Galaxy S24 256GB 8GB RAM", "Samsung")

	assert.Equal(t, "samsung", features.Brand)
	assert.Equal(t, 1.0, features.BrandConfidence)
	assert.Equal(t, "smartphones", features.Category)
	assert.Equal(t, []string{"256gb", "8gb-ram"}, features.SpecTokens)
}

func TestNormalizeBrandAlias(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("Moto G84 5G 256GB", "Moto")
	assert.Equal(t, "motorola", features.Brand)
	assert.Equal(t, 0.9, features.BrandConfidence)

	features = svc.Normalize("Redmi Note 13 128GB", "redmi")
	assert.Equal(t, "xiaomi", features.Brand)
}

func TestNormalizeBrandFromName(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("Celular Motorola Edge 40 Neo", "")
	assert.Equal(t, "motorola", features.Brand)
	assert.Equal(t, 0.8, features.BrandConfidence)
}

func TestNormalizeUnknownDeclaredBrandKept(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("Parrilla electrica 1800W", "Marcanova")
	assert.Equal(t, "marcanova", features.Brand)
	assert.Equal(t, 0.5, features.BrandConfidence)
}

func TestNormalizeBrandGuessFromLeadingToken(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("Zapatilla deportiva urbana", "")
	assert.Equal(t, "zapatilla", features.Brand)
	assert.Equal(t, 0.4, features.BrandConfidence)
}

func TestNormalizeNeverFails(t *testing.T) {
	svc := newTestNormalizer()

	features := svc.Normalize("", "")
	assert.Empty(t, features.Brand)
	assert.Zero(t, features.BrandConfidence)
	assert.Empty(t, features.Category)
	assert.Empty(t, features.SpecTokens)
}

func TestExtractCategory(t *testing.T) {
	svc := newTestNormalizer()

	tests := []struct {
		rawName  string
		expected string
	}{
		{"Celular Samsung Galaxy A54", "smartphones"},
		{"Notebook Lenovo IdeaPad 3", "notebooks"},
		{"Tablet Apple iPad 10.9", "tablets"},
		{"Smart TV LG 55 pulgadas OLED", "televisions"},
		{"Monitor Gamer 27 pulgadas", "monitors"},
		{"Audifonos inalambricos JBL", "audio"},
		{"Smartwatch Garmin Forerunner", "wearables"},
		{"Refrigerador No Frost 300L", "appliances"},
		{"Juego de sabanas 2 plazas", ""},
	}

	for _, tt := range tests {
		features := svc.Normalize(tt.rawName, "")
		assert.Equal(t, tt.expected, features.Category, "name: %s", tt.rawName)
	}
}

func TestExtractSpecTokens(t *testing.T) {
	svc := newTestNormalizer()

	tests := []struct {
		name     string
		rawName  string
		expected []string
	}{
		{
			name:     "storage and anchored ram",
			rawName:  "Galaxy S24 256GB 8GB RAM",
			expected: []string{"256gb", "8gb-ram"},
		},
		{
			name:     "ram with spanish connector",
			rawName:  "Notebook 512GB SSD 16GB de RAM",
			expected: []string{"16gb-ram", "512gb"},
		},
		{
			name:     "screen inches with quote mark",
			rawName:  "Notebook HP 15.6\" FHD",
			expected: []string{"15.6in"},
		},
		{
			name:     "screen in pulgadas with comma decimal",
			rawName:  "Smart TV 55 pulgadas, Monitor 23,8 pulgadas",
			expected: []string{"23.8in", "55in"},
		},
		{
			name:     "camera and battery",
			rawName:  "Celular 50MP 5000mAh",
			expected: []string{"5000mah", "50mp"},
		},
		{
			name:     "terabyte storage",
			rawName:  "Disco duro 2TB externo",
			expected: []string{"2tb"},
		},
		{
			name:     "duplicates collapse",
			rawName:  "Celular 128GB / 128GB",
			expected: []string{"128gb"},
		},
		{
			name:     "no specs",
			rawName:  "Polera algodon talla M",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := svc.Normalize(tt.rawName, "")
			assert.Equal(t, tt.expected, features.SpecTokens)
		})
	}
}
