// internal/services/opportunity_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

func testOpportunityConfig() config.OpportunityConfig {
	return config.OpportunityConfig{
		MinMarginCLP:    15000,
		MinPercentage:   12.0,
		MinConfidence:   0.70,
		AlertMarginCLP:  50000,
		AlertPercentage: 25.0,
		MinValidPrice:   1000,
		MaxValidPrice:   50000000,
		MaxPriceRatio:   4.0,
	}
}

func newBareOpportunityService(t *testing.T) *OpportunityService {
	t.Helper()
	return &OpportunityService{
		cfg:       testOpportunityConfig(),
		cache:     testCache(t),
		loc:       time.UTC,
		pairLocks: utils.NewKeyedMutex(8),
	}
}

func acceptedMatch(score float64) *models.MatchCandidate {
	return &models.MatchCandidate{
		EntityAID: "FAL11111111",
		EntityBID: "RIP22222222",
		RetailerA: "falabella",
		RetailerB: "ripley",
		Score:     score,
		Decision:  models.MatchDecisionAccepted,
	}
}

func obsWithPrice(price int64) *models.PriceObservation {
	return &models.PriceObservation{NormalPrice: price, MinPrice: price}
}

func TestDetectIgnoresNonAcceptedMatches(t *testing.T) {
	svc := newBareOpportunityService(t)
	ctx := context.Background()

	opp, err := svc.Detect(ctx, nil, obsWithPrice(100000), obsWithPrice(120000))
	require.NoError(t, err)
	assert.Nil(t, opp)

	rejected := acceptedMatch(0.75)
	rejected.Decision = models.MatchDecisionRejected
	opp, err = svc.Detect(ctx, rejected, obsWithPrice(100000), obsWithPrice(120000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectNeedsBothObservations(t *testing.T) {
	svc := newBareOpportunityService(t)

	opp, err := svc.Detect(context.Background(), acceptedMatch(0.9), nil, obsWithPrice(120000))
	require.NoError(t, err)
	assert.Nil(t, opp)

	opp, err = svc.Detect(context.Background(), acceptedMatch(0.9), obsWithPrice(100000), nil)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectRejectsImplausiblePrices(t *testing.T) {
	svc := newBareOpportunityService(t)
	ctx := context.Background()

	// Below the glitch floor
	opp, err := svc.Detect(ctx, acceptedMatch(0.9), obsWithPrice(500), obsWithPrice(120000))
	require.NoError(t, err)
	assert.Nil(t, opp)

	// Above the glitch ceiling
	opp, err = svc.Detect(ctx, acceptedMatch(0.9), obsWithPrice(100000), obsWithPrice(60000000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectRejectsEqualPrices(t *testing.T) {
	svc := newBareOpportunityService(t)

	opp, err := svc.Detect(context.Background(), acceptedMatch(0.9), obsWithPrice(100000), obsWithPrice(100000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectRejectsExtremeSpread(t *testing.T) {
	svc := newBareOpportunityService(t)

	// 4.5x between the sides reads as a listing glitch, not a windfall
	opp, err := svc.Detect(context.Background(), acceptedMatch(0.9), obsWithPrice(10000), obsWithPrice(45000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectEnforcesFloors(t *testing.T) {
	svc := newBareOpportunityService(t)
	ctx := context.Background()

	// Margin floor: 8000 CLP gap on a 100000 base
	opp, err := svc.Detect(ctx, acceptedMatch(0.9), obsWithPrice(100000), obsWithPrice(108000))
	require.NoError(t, err)
	assert.Nil(t, opp)

	// Percentage floor: 100000 CLP margin on a 1000000 base is only 10%
	opp, err = svc.Detect(ctx, acceptedMatch(0.9), obsWithPrice(1000000), obsWithPrice(1100000))
	require.NoError(t, err)
	assert.Nil(t, opp)

	// Similarity floor
	opp, err = svc.Detect(ctx, acceptedMatch(0.65), obsWithPrice(100000), obsWithPrice(120000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectRejectsExtremeRisk(t *testing.T) {
	svc := newBareOpportunityService(t)

	// 250% gap with a 250000 margin and sub-0.8 similarity piles past the
	// extreme threshold
	opp, err := svc.Detect(context.Background(), acceptedMatch(0.72), obsWithPrice(100000), obsWithPrice(350000))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestRiskFor(t *testing.T) {
	assert.Equal(t, models.RiskLevelLow, riskFor(20000, 20, 0.90, 0.0))
	assert.Equal(t, models.RiskLevelLow, riskFor(150000, 40, 0.85, 0.0))
	assert.Equal(t, models.RiskLevelMedium, riskFor(50000, 55, 0.72, 0.0))
	assert.Equal(t, models.RiskLevelHigh, riskFor(250000, 60, 0.75, 0.35))
	assert.Equal(t, models.RiskLevelExtreme, riskFor(250000, 120, 0.65, 0.6))
}

func TestExpiryWindow(t *testing.T) {
	assert.Equal(t, 6*time.Hour, expiryWindow(150000, 10))
	assert.Equal(t, 12*time.Hour, expiryWindow(100000, 35), "100000 is not above the large-margin bar")
	assert.Equal(t, 12*time.Hour, expiryWindow(60000, 10))
	assert.Equal(t, 8*time.Hour, expiryWindow(20000, 35))
	assert.Equal(t, 24*time.Hour, expiryWindow(20000, 15))
}

func TestSeverityFor(t *testing.T) {
	svc := newBareOpportunityService(t)

	critical := &models.ArbitrageOpportunity{GrossMargin: 60000, PercentageDiff: 30}
	assert.Equal(t, models.AlertSeverityCritical, svc.severityFor(critical))

	exactly := &models.ArbitrageOpportunity{GrossMargin: 50000, PercentageDiff: 25}
	assert.Equal(t, models.AlertSeverityCritical, svc.severityFor(exactly))

	marginOnly := &models.ArbitrageOpportunity{GrossMargin: 60000, PercentageDiff: 15}
	assert.Equal(t, models.AlertSeverityWarning, svc.severityFor(marginOnly))

	pctOnly := &models.ArbitrageOpportunity{GrossMargin: 20000, PercentageDiff: 30}
	assert.Equal(t, models.AlertSeverityWarning, svc.severityFor(pctOnly))

	neither := &models.ArbitrageOpportunity{GrossMargin: 20000, PercentageDiff: 15}
	assert.Equal(t, models.AlertSeverityInfo, svc.severityFor(neither))
}

func TestPlausible(t *testing.T) {
	svc := newBareOpportunityService(t)

	assert.False(t, svc.plausible(999))
	assert.True(t, svc.plausible(1000))
	assert.True(t, svc.plausible(50000000))
	assert.False(t, svc.plausible(50000001))
}
