// internal/models/match.go
package models

import (
	"time"
)

// MatchCandidate asserts that two entities from different retailers are (or
// are not) the same physical product. The pair is stored in canonical order,
// EntityAID lexicographically smaller than EntityBID, so the symmetric pair
// is never stored twice.
type MatchCandidate struct {
	BaseModel
	EntityAID  string         `json:"entity_a_id" gorm:"size:16;not null;uniqueIndex:idx_match_pair,priority:1"`
	EntityBID  string         `json:"entity_b_id" gorm:"size:16;not null;uniqueIndex:idx_match_pair,priority:2"`
	RetailerA  string         `json:"retailer_a" gorm:"size:50;not null"`
	RetailerB  string         `json:"retailer_b" gorm:"size:50;not null"`
	Score      float64        `json:"score" gorm:"type:decimal(5,4);not null;index"`
	SubScores  JSONB          `json:"sub_scores" gorm:"type:jsonb"`
	Decision   MatchDecision  `json:"decision" gorm:"type:varchar(10);not null;index"`
	Confidence ConfidenceTier `json:"confidence" gorm:"type:varchar(10);not null"`
	MatchType  MatchType      `json:"match_type" gorm:"type:varchar(10)"`
	TimesSeen  int            `json:"times_seen" gorm:"default:1"`
	LastScored time.Time      `json:"last_scored"`

	// Relationships
	EntityA Entity `json:"entity_a,omitempty" gorm:"foreignKey:EntityAID;references:ID"`
	EntityB Entity `json:"entity_b,omitempty" gorm:"foreignKey:EntityBID;references:ID"`
}

// PairKey returns the canonical cache/serialization key for two entity IDs.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "match:v5:" + a + ":" + b
}

// CanonicalPair orders two entity IDs lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
