// internal/models/price.go
package models

import (
	"time"
)

// PriceObservation is the authoritative price row for one entity on one
// calendar day. Same-day updates before the freeze cutoff mutate the row in
// place; after the cutoff the row is frozen and updates are rejected until
// the next day's row is created. Across days the table is append-only.
type PriceObservation struct {
	BaseModel
	EntityID    string      `json:"entity_id" gorm:"size:16;not null;uniqueIndex:idx_obs_entity_date,priority:1"`
	PriceDate   string      `json:"price_date" gorm:"size:10;not null;uniqueIndex:idx_obs_entity_date,priority:2;index"`
	NormalPrice int64       `json:"normal_price" gorm:"type:bigint;default:0"`
	OfferPrice  int64       `json:"offer_price" gorm:"type:bigint;default:0"`
	CardPrice   int64       `json:"card_price" gorm:"type:bigint;default:0"`
	MinPrice    int64       `json:"min_price" gorm:"type:bigint;default:0;index"`
	Status      PriceStatus `json:"status" gorm:"type:varchar(10);default:'open';index"`
	ObservedAt  time.Time   `json:"observed_at"`
	UpdateCount int         `json:"update_count" gorm:"default:0"`
}

// BestPrice returns the lowest valid price field, zero when none is set.
func (p *PriceObservation) BestPrice() int64 {
	best := int64(0)
	for _, v := range []int64{p.NormalPrice, p.OfferPrice, p.CardPrice} {
		if v <= 0 {
			continue
		}
		if best == 0 || v < best {
			best = v
		}
	}
	return best
}

// PriceAlert records a significant same-day move of a single price field.
type PriceAlert struct {
	BaseModel
	EntityID      string        `json:"entity_id" gorm:"size:16;not null;index"`
	PriceType     string        `json:"price_type" gorm:"size:20;not null"`
	OldPrice      int64         `json:"old_price" gorm:"type:bigint"`
	NewPrice      int64         `json:"new_price" gorm:"type:bigint"`
	ChangePercent float64       `json:"change_percent" gorm:"type:decimal(8,2)"`
	Severity      AlertSeverity `json:"severity" gorm:"type:varchar(10);default:'info';index"`
	DetectedAt    time.Time     `json:"detected_at"`
}
