// internal/models/tier.go
package models

import (
	"time"
)

// TierAssignment pins an entity to a re-evaluation frequency class. The tier
// is recomputed periodically from price volatility and match popularity, so
// it reflects recent behavior rather than the state at creation. Demotion
// only changes future cadence; history stays where it is.
type TierAssignment struct {
	BaseModel
	EntityID            string     `json:"entity_id" gorm:"size:16;not null;uniqueIndex"`
	Tier                Tier       `json:"tier" gorm:"type:varchar(10);default:'tracking';index"`
	LastEvaluatedAt     *time.Time `json:"last_evaluated_at"`
	NextDueAt           time.Time  `json:"next_due_at" gorm:"index"`
	Volatility          float64    `json:"volatility" gorm:"type:decimal(6,4);default:0"`
	Popularity          int64      `json:"popularity" gorm:"default:0"`
	ConsecutiveFailures int        `json:"consecutive_failures" gorm:"default:0"`
	LastFailureReason   string     `json:"last_failure_reason" gorm:"size:255"`
	ManualOverride      bool       `json:"manual_override" gorm:"default:false"`
}
