// internal/services/notification_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/retailradar/arbitrage-backend/internal/models"
)

func TestLogNotifierNeverFails(t *testing.T) {
	notifier := NewLogNotifier()

	event := OpportunityEvent{
		Kind: EventOpportunityCreated,
		Opportunity: &models.ArbitrageOpportunity{
			BuyRetailer:    "ripley",
			SellRetailer:   "falabella",
			GrossMargin:    20000,
			PercentageDiff: 20,
			RiskLevel:      models.RiskLevelLow,
			Priority:       3,
		},
		Severity:  models.AlertSeverityInfo,
		EmittedAt: time.Now(),
	}
	assert.NoError(t, notifier.NotifyOpportunity(context.Background(), event))

	event.Kind = EventOpportunityExpired
	event.Severity = models.AlertSeverityCritical
	assert.NoError(t, notifier.NotifyOpportunity(context.Background(), event))
}
