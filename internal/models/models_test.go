// internal/models/models_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyIsOrderInsensitive(t *testing.T) {
	forward := PairKey("FAL11111111", "RIP22222222")
	reverse := PairKey("RIP22222222", "FAL11111111")

	assert.Equal(t, "match:v5:FAL11111111:RIP22222222", forward)
	assert.Equal(t, forward, reverse)
}

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("RIP22222222", "FAL11111111")
	assert.Equal(t, "FAL11111111", a)
	assert.Equal(t, "RIP22222222", b)

	a, b = CanonicalPair("FAL11111111", "RIP22222222")
	assert.Equal(t, "FAL11111111", a)
	assert.Equal(t, "RIP22222222", b)
}

func TestBestPrice(t *testing.T) {
	tests := []struct {
		name   string
		obs    PriceObservation
		expect int64
	}{
		{
			name:   "offer undercuts normal and card",
			obs:    PriceObservation{NormalPrice: 10000, OfferPrice: 8000, CardPrice: 9000},
			expect: 8000,
		},
		{
			name:   "missing offer falls back to card",
			obs:    PriceObservation{NormalPrice: 10000, CardPrice: 9000},
			expect: 9000,
		},
		{
			name:   "only normal set",
			obs:    PriceObservation{NormalPrice: 129990},
			expect: 129990,
		},
		{
			name:   "negative values ignored",
			obs:    PriceObservation{NormalPrice: -5, OfferPrice: 3000},
			expect: 3000,
		},
		{
			name:   "nothing set",
			obs:    PriceObservation{},
			expect: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.obs.BestPrice())
		})
	}
}

func TestJSONBDriverRoundTrip(t *testing.T) {
	original := JSONB{"text": 0.9, "brand": 1.0}

	value, err := original.Value()
	require.NoError(t, err)

	var restored JSONB
	require.NoError(t, restored.Scan(value))
	assert.Equal(t, original, restored)
}

func TestJSONBNil(t *testing.T) {
	var empty JSONB
	value, err := empty.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	var restored JSONB
	require.NoError(t, restored.Scan(nil))
	assert.Nil(t, restored)
}
