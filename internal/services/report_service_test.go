// internal/services/report_service_test.go
package services

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

func TestNewReportServiceLocalMode(t *testing.T) {
	svc, err := NewReportService(nil, config.AWSConfig{S3Bucket: "reports", ReportPrefix: "daily"})
	require.NoError(t, err)
	assert.Nil(t, svc.s3Client)
}

func TestRenderReportCSV(t *testing.T) {
	detected := time.Date(2026, 8, 22, 14, 30, 0, 0, time.UTC)
	opportunities := []models.ArbitrageOpportunity{
		{
			DetectionDate:     "2026-08-22",
			Status:            models.OpportunityStatusDetected,
			BuyRetailer:       "ripley",
			SellRetailer:      "falabella",
			CheapEntityID:     "RIP22222222",
			ExpensiveEntityID: "FAL11111111",
			BuyPrice:          100000,
			SellPrice:         120000,
			GrossMargin:       20000,
			PercentageDiff:    20.0,
			ROI:               0.2,
			OpportunityScore:  0.5333,
			MatchConfidence:   0.9,
			RiskLevel:         models.RiskLevelLow,
			Priority:          3,
			TimesDetected:     2,
			DetectedAt:        detected,
			EstimatedExpiry:   detected.Add(24 * time.Hour),
		},
	}

	content, err := renderReportCSV(opportunities)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := records[0]
	assert.Equal(t, "opportunity_id", header[0])
	assert.Equal(t, "estimated_expiry", header[len(header)-1])

	row := records[1]
	require.Len(t, row, len(header))
	assert.Equal(t, "2026-08-22", row[1])
	assert.Equal(t, "detected", row[2])
	assert.Equal(t, "ripley", row[3])
	assert.Equal(t, "falabella", row[4])
	assert.Equal(t, "100000", row[7])
	assert.Equal(t, "120000", row[8])
	assert.Equal(t, "20000", row[9])
	assert.Equal(t, "20.00", row[10])
	assert.Equal(t, "low", row[14])
	assert.Equal(t, "3", row[15])
	assert.Equal(t, "2026-08-22T14:30:00Z", row[17])
}

func TestRenderReportCSVEmpty(t *testing.T) {
	content, err := renderReportCSV(nil)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
