// internal/services/price_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

func testPricesConfig() config.PricesConfig {
	return config.PricesConfig{
		FreezeCutoff:   "23:59",
		Timezone:       "UTC",
		SignificantPct: 5.0,
		MaxChangeRatio: 5.0,
	}
}

func TestNewPriceServiceValidatesConfig(t *testing.T) {
	_, err := NewPriceService(nil, config.PricesConfig{FreezeCutoff: "25:00", Timezone: "UTC"}, testCache(t))
	assert.Error(t, err)

	_, err = NewPriceService(nil, config.PricesConfig{FreezeCutoff: "23:59", Timezone: "Not/AZone"}, testCache(t))
	assert.Error(t, err)

	svc, err := NewPriceService(nil, testPricesConfig(), testCache(t))
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestLowestValidPrice(t *testing.T) {
	assert.Equal(t, int64(8000), lowestValidPrice(10000, 8000, 9000))
	assert.Equal(t, int64(5000), lowestValidPrice(0, 0, 5000))
	assert.Equal(t, int64(100), lowestValidPrice(-5, 100, 0))
	assert.Equal(t, int64(0), lowestValidPrice(0, 0, 0))
	assert.Equal(t, int64(0), lowestValidPrice())
}

func TestIsAnomalousJump(t *testing.T) {
	assert.True(t, isAnomalousJump(10000, 60000, 5.0))
	assert.True(t, isAnomalousJump(60000, 10000, 5.0), "direction must not matter")
	assert.False(t, isAnomalousJump(10000, 45000, 5.0))
	assert.False(t, isAnomalousJump(10000, 50000, 5.0), "exactly at the ratio is allowed")

	// A missing side is not a jump
	assert.False(t, isAnomalousJump(0, 50000, 5.0))
	assert.False(t, isAnomalousJump(50000, 0, 5.0))
}

func TestAlertSeverity(t *testing.T) {
	assert.Equal(t, models.AlertSeverityCritical, alertSeverity(30))
	assert.Equal(t, models.AlertSeverityCritical, alertSeverity(25))
	assert.Equal(t, models.AlertSeverityWarning, alertSeverity(15))
	assert.Equal(t, models.AlertSeverityWarning, alertSeverity(10))
	assert.Equal(t, models.AlertSeverityInfo, alertSeverity(5))
}

func TestAfterCutoff(t *testing.T) {
	svc, err := NewPriceService(nil, testPricesConfig(), testCache(t))
	require.NoError(t, err)

	day := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 23, hour, minute, 0, 0, time.UTC)
	}

	assert.False(t, svc.afterCutoff(day(10, 0)))
	assert.False(t, svc.afterCutoff(day(23, 58)))
	assert.True(t, svc.afterCutoff(day(23, 59)))

	// Just past midnight is a new day, not a frozen one
	assert.False(t, svc.afterCutoff(day(0, 0)))
}

func TestAfterCutoffMidday(t *testing.T) {
	cfg := testPricesConfig()
	cfg.FreezeCutoff = "12:30"
	svc, err := NewPriceService(nil, cfg, testCache(t))
	require.NoError(t, err)

	day := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 23, hour, minute, 0, 0, time.UTC)
	}

	assert.False(t, svc.afterCutoff(day(11, 59)))
	assert.False(t, svc.afterCutoff(day(12, 29)))
	assert.True(t, svc.afterCutoff(day(12, 30)))
	assert.True(t, svc.afterCutoff(day(13, 0)))
}
