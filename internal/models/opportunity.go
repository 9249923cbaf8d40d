// internal/models/opportunity.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ArbitrageOpportunity is a detected profitable price gap between two matched
// entities. One row exists per (cheap, expensive, detection date); same-day
// re-detections update the row, a new day starts a fresh row and prior days
// are kept for history. Expired rows are never deleted.
type ArbitrageOpportunity struct {
	BaseModel
	MatchCandidateID  uuid.UUID         `json:"match_candidate_id" gorm:"type:uuid;not null;index"`
	CheapEntityID     string            `json:"cheap_entity_id" gorm:"size:16;not null;uniqueIndex:idx_opp_pair_date,priority:1"`
	ExpensiveEntityID string            `json:"expensive_entity_id" gorm:"size:16;not null;uniqueIndex:idx_opp_pair_date,priority:2"`
	DetectionDate     string            `json:"detection_date" gorm:"size:10;not null;uniqueIndex:idx_opp_pair_date,priority:3;index"`
	BuyRetailer       string            `json:"buy_retailer" gorm:"size:50;not null"`
	SellRetailer      string            `json:"sell_retailer" gorm:"size:50;not null"`
	BuyPrice          int64             `json:"buy_price" gorm:"type:bigint;not null"`
	SellPrice         int64             `json:"sell_price" gorm:"type:bigint;not null"`
	GrossMargin       int64             `json:"gross_margin" gorm:"type:bigint;not null;index"`
	PercentageDiff    float64           `json:"percentage_diff" gorm:"type:decimal(8,2);not null"`
	ROI               float64           `json:"roi" gorm:"type:decimal(8,4);not null"`
	OpportunityScore  float64           `json:"opportunity_score" gorm:"type:decimal(5,4);index"`
	MatchConfidence   float64           `json:"match_confidence" gorm:"type:decimal(5,4)"`
	RiskLevel         RiskLevel         `json:"risk_level" gorm:"type:varchar(10);not null;index"`
	Priority          int               `json:"priority" gorm:"default:1;index"`
	Status            OpportunityStatus `json:"status" gorm:"type:varchar(10);default:'detected';index"`
	DetectedAt        time.Time         `json:"detected_at"`
	EstimatedExpiry   time.Time         `json:"estimated_expiry"`
	TimesDetected     int               `json:"times_detected" gorm:"default:1"`
	Metadata          JSONB             `json:"metadata" gorm:"type:jsonb"`

	// Relationships
	Match     MatchCandidate        `json:"match,omitempty" gorm:"foreignKey:MatchCandidateID"`
	Snapshots []OpportunitySnapshot `json:"snapshots,omitempty" gorm:"foreignKey:OpportunityID"`
}

// OpportunitySnapshot is one point of the append-only price trail behind an
// opportunity. A snapshot is written on every upsert, so the history of the
// gap is reconstructible even though the opportunity row mutates intraday.
type OpportunitySnapshot struct {
	BaseModel
	OpportunityID  uuid.UUID `json:"opportunity_id" gorm:"type:uuid;not null;index"`
	BuyPrice       int64     `json:"buy_price" gorm:"type:bigint;not null"`
	SellPrice      int64     `json:"sell_price" gorm:"type:bigint;not null"`
	GrossMargin    int64     `json:"gross_margin" gorm:"type:bigint;not null"`
	PercentageDiff float64   `json:"percentage_diff" gorm:"type:decimal(8,2)"`
	CapturedAt     time.Time `json:"captured_at"`
}
