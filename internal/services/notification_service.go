// internal/services/notification_service.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailradar/arbitrage-backend/internal/models"
)

// Opportunity event kinds.
const (
	EventOpportunityCreated = "created"
	EventOpportunityUpdated = "updated"
	EventOpportunityExpired = "expired"
)

// OpportunityEvent is handed to the notifier whenever an opportunity is
// created, re-confirmed, or expired. Severity is decided by the detector
// from the alert thresholds; the notifier only delivers.
type OpportunityEvent struct {
	Kind        string                       `json:"kind"`
	Opportunity *models.ArbitrageOpportunity `json:"opportunity"`
	Severity    models.AlertSeverity         `json:"severity"`
	EmittedAt   time.Time                    `json:"emitted_at"`
}

// Notifier is the outbound delivery contract. Implementations own transport,
// batching, and retries; the pipeline treats delivery failures as
// non-fatal.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, event OpportunityEvent) error
}

// LogNotifier is the default sink: it writes each event to the structured
// log and never fails. Real delivery channels replace it at wiring time.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyOpportunity(_ context.Context, event OpportunityEvent) error {
	opp := event.Opportunity
	entry := logrus.WithFields(logrus.Fields{
		"kind":          event.Kind,
		"opportunity":   opp.ID,
		"buy_retailer":  opp.BuyRetailer,
		"sell_retailer": opp.SellRetailer,
		"gross_margin":  opp.GrossMargin,
		"pct_diff":      opp.PercentageDiff,
		"risk_level":    opp.RiskLevel,
		"priority":      opp.Priority,
		"severity":      event.Severity,
	})

	if event.Severity == models.AlertSeverityInfo {
		entry.Info("Arbitrage opportunity event")
	} else {
		entry.Warn("Arbitrage opportunity alert")
	}
	return nil
}
