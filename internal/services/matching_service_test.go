// internal/services/matching_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		AcceptThreshold: 0.85,
		DiscardFloor:    0.60,
		WeightText:      0.30,
		WeightBrand:     0.25,
		WeightPrice:     0.20,
		WeightCategory:  0.15,
		WeightSpecs:     0.10,
		EmbeddingShare:  0.60,
		MaxPriceRatio:   4.0,
	}
}

func testCache(t *testing.T) *cache.MultiLevelCache {
	t.Helper()
	mlc := cache.NewMultiLevelCache(config.CacheConfig{
		L1Size: 100,
		L1TTL:  time.Minute,
		L2TTL:  time.Minute,
		L3TTL:  time.Minute,
		L4TTL:  time.Minute,
	}, nil)
	t.Cleanup(func() { mlc.Close() })
	return mlc
}

func TestScorePairSameRetailer(t *testing.T) {
	svc := NewMatchingService(nil, testMatchingConfig(), testCache(t), nil)

	a := &models.Entity{ID: "FAL11111111", Retailer: "falabella"}
	b := &models.Entity{ID: "FAL22222222", Retailer: "falabella"}

	_, err := svc.ScorePair(context.Background(), a, b, 10000, 10000)
	assert.ErrorIs(t, err, ErrSameRetailer)
}

func TestScorePairDiscardsBelowFloor(t *testing.T) {
	mlc := testCache(t)
	svc := NewMatchingService(nil, testMatchingConfig(), mlc, nil)

	a := &models.Entity{
		ID: "FAL11111111", Retailer: "falabella",
		NormalizedName: "aurora lamp kit", Brand: "sony", Category: "audio",
	}
	b := &models.Entity{
		ID: "RIP22222222", Retailer: "ripley",
		NormalizedName: "zebra print mug", Brand: "lg", Category: "appliances",
	}

	match, err := svc.ScorePair(context.Background(), a, b, 10000, 45000)
	require.NoError(t, err)
	assert.Nil(t, match)

	// The verdict is cached, so rescoring the pair is a cache hit and still
	// yields no candidate
	match, err = svc.ScorePair(context.Background(), a, b, 10000, 45000)
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.GreaterOrEqual(t, mlc.Stats().L1Hits, int64(1))
}

func TestLexicalSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, lexicalSimilarity("samsung galaxy s24", "samsung galaxy s24"))
	assert.Equal(t, 0.8, lexicalSimilarity("samsung galaxy s24", "samsung galaxy s24 ultra"))
	assert.Equal(t, 0.0, lexicalSimilarity("", "samsung galaxy s24"))

	// Disjoint names bottom out at the floor
	assert.Equal(t, 0.1, lexicalSimilarity("aurora lamp kit", "zebra print mug"))

	// Token overlap: {samsung, galaxy, s24} shared, {negro} vs {azul} not
	sim := lexicalSimilarity("samsung galaxy s24 negro", "samsung galaxy s24 azul")
	assert.InDelta(t, 0.6, sim, 1e-9)
}

func TestLexicalSimilarityIgnoresStopwords(t *testing.T) {
	// "de" and "con" are stopwords; the informative tokens fully agree
	sim := lexicalSimilarity("hervidor de agua electrico", "hervidor con agua electrico")
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

type staticEmbedder struct {
	vec []float32
	err error
}

func (e *staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, e.err
}

func TestTextSimilarityBlendsEmbedding(t *testing.T) {
	embedder := &staticEmbedder{vec: []float32{1, 2, 3}}
	svc := NewMatchingService(nil, testMatchingConfig(), testCache(t), embedder)

	a := &models.Entity{NormalizedName: "alpha beta"}
	b := &models.Entity{NormalizedName: "gamma delta"}

	// Identical vectors give semantic 1.0; lexical floor is 0.1
	sim := svc.textSimilarity(context.Background(), a, b)
	assert.InDelta(t, 0.6*1.0+0.4*0.1, sim, 1e-9)
}

func TestTextSimilarityFallsBackOnEmbedderError(t *testing.T) {
	embedder := &staticEmbedder{err: errors.New("provider down")}
	svc := NewMatchingService(nil, testMatchingConfig(), testCache(t), embedder)

	a := &models.Entity{NormalizedName: "alpha beta"}
	b := &models.Entity{NormalizedName: "gamma delta"}

	assert.InDelta(t, 0.1, svc.textSimilarity(context.Background(), a, b), 1e-9)
}

func TestTextSimilarityWithoutEmbedder(t *testing.T) {
	svc := NewMatchingService(nil, testMatchingConfig(), testCache(t), nil)

	a := &models.Entity{NormalizedName: "samsung galaxy s24"}
	b := &models.Entity{NormalizedName: "samsung galaxy s24"}

	assert.Equal(t, 1.0, svc.textSimilarity(context.Background(), a, b))
}

func TestBrandScore(t *testing.T) {
	assert.Equal(t, 1.0, brandScore(
		&models.Entity{Brand: "samsung"}, &models.Entity{Brand: "Samsung"}))
	assert.Equal(t, 0.0, brandScore(
		&models.Entity{Brand: "samsung"}, &models.Entity{Brand: "xiaomi"}))
	assert.Equal(t, 0.5, brandScore(
		&models.Entity{Brand: ""}, &models.Entity{Brand: "samsung"}))
}

func TestCategoryScore(t *testing.T) {
	assert.Equal(t, 1.0, categoryScore(
		&models.Entity{Category: "smartphones"}, &models.Entity{Category: "smartphones"}))
	assert.Equal(t, 0.3, categoryScore(
		&models.Entity{Category: "smartphones"}, &models.Entity{Category: "tablets"}))
	assert.Equal(t, 0.3, categoryScore(
		&models.Entity{Category: "smartphones"}, &models.Entity{Category: ""}))
	assert.Equal(t, 0.5, categoryScore(
		&models.Entity{Category: ""}, &models.Entity{Category: ""}))
}

func TestSpecScore(t *testing.T) {
	// Full agreement across shared kinds
	assert.Equal(t, 1.0, specScore(
		&models.Entity{SpecTokens: []string{"256gb", "8gb-ram"}},
		&models.Entity{SpecTokens: []string{"256gb", "8gb-ram"}}))

	// Same kind, different values
	assert.Equal(t, 0.0, specScore(
		&models.Entity{SpecTokens: []string{"256gb"}},
		&models.Entity{SpecTokens: []string{"512gb"}}))

	// No shared kinds is neutral
	assert.Equal(t, 0.5, specScore(
		&models.Entity{SpecTokens: []string{"256gb"}},
		&models.Entity{SpecTokens: []string{"50mp"}}))
	assert.Equal(t, 0.5, specScore(&models.Entity{}, &models.Entity{}))

	// Storage agrees, memory disagrees: (1.0 + 0.0) / 2
	assert.InDelta(t, 0.5, specScore(
		&models.Entity{SpecTokens: []string{"256gb", "8gb-ram"}},
		&models.Entity{SpecTokens: []string{"256gb", "12gb-ram"}}), 1e-9)
}

func TestPriceProximity(t *testing.T) {
	svc := NewMatchingService(nil, testMatchingConfig(), testCache(t), nil)

	assert.Equal(t, 1.0, svc.priceProximity(100000, 100000))
	assert.Equal(t, 1.0, svc.priceProximity(80000, 100000))
	assert.Equal(t, 0.7, svc.priceProximity(65000, 100000))
	assert.Equal(t, 0.4, svc.priceProximity(45000, 100000))
	assert.Equal(t, 0.1, svc.priceProximity(30000, 100000))

	// Beyond the max ratio the pair is implausible
	assert.Equal(t, 0.0, svc.priceProximity(20000, 100000))
	assert.Equal(t, 0.0, svc.priceProximity(100000, 20000))

	// Missing price on either side is neutral
	assert.Equal(t, 0.5, svc.priceProximity(0, 100000))
	assert.Equal(t, 0.5, svc.priceProximity(100000, 0))
}

func TestConfidenceTier(t *testing.T) {
	assert.Equal(t, models.ConfidenceTierHigh, confidenceTier(0.95))
	assert.Equal(t, models.ConfidenceTierHigh, confidenceTier(0.90))
	assert.Equal(t, models.ConfidenceTierMedium, confidenceTier(0.85))
	assert.Equal(t, models.ConfidenceTierMedium, confidenceTier(0.80))
	assert.Equal(t, models.ConfidenceTierLow, confidenceTier(0.79))
}

func TestMatchType(t *testing.T) {
	assert.Equal(t, models.MatchTypeExact, matchType(0.97))
	assert.Equal(t, models.MatchTypeExact, matchType(0.95))
	assert.Equal(t, models.MatchTypeSimilar, matchType(0.92))
	assert.Equal(t, models.MatchTypeVariant, matchType(0.87))
	assert.Equal(t, models.MatchTypeCategory, matchType(0.70))
}

func TestJSONBRoundTrip(t *testing.T) {
	scores := map[string]float64{"text": 0.9, "brand": 1.0}
	assert.Equal(t, scores, fromJSONB(toJSONB(scores)))
}
