// internal/models/entity.go
package models

import (
	"time"

	"github.com/lib/pq"
)

// ProductRecord is one raw listing as delivered by the scraping collaborator.
// It is never persisted; it lives for the duration of a single pipeline cycle.
type ProductRecord struct {
	Retailer    string    `json:"retailer"`
	RawName     string    `json:"raw_name"`
	ListingURL  string    `json:"listing_url"`
	NativeSKU   string    `json:"native_sku,omitempty"`
	RawBrand    string    `json:"raw_brand,omitempty"`
	NormalPrice int64     `json:"normal_price"`
	OfferPrice  int64     `json:"offer_price"`
	CardPrice   int64     `json:"card_price"`
	Rating      float64   `json:"rating"`
	ReviewCount int64     `json:"review_count"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Entity is one retailer's listing of a product. The primary key is the
// content-derived Entity ID (retailer code + 8 hex chars), so repeated
// observations of the same listing collapse onto one row.
type Entity struct {
	ID              string         `json:"id" gorm:"primaryKey;size:16"`
	Retailer        string         `json:"retailer" gorm:"size:50;not null;index"`
	Name            string         `json:"name" gorm:"size:500;not null"`
	NormalizedName  string         `json:"normalized_name" gorm:"size:500;index"`
	Brand           string         `json:"brand" gorm:"size:100;index"`
	BrandConfidence float64        `json:"brand_confidence" gorm:"type:decimal(3,2);default:0"`
	Category        string         `json:"category" gorm:"size:100;index"`
	SpecTokens      pq.StringArray `json:"spec_tokens" gorm:"type:text[]"`
	ListingURL      string         `json:"listing_url" gorm:"size:1000"`
	NativeSKU       string         `json:"native_sku" gorm:"size:100"`
	Rating          float64        `json:"rating" gorm:"type:decimal(3,2);default:0"`
	ReviewCount     int64          `json:"review_count" gorm:"default:0"`
	Active          bool           `json:"active" gorm:"default:true;index"`
	FirstSeenAt     time.Time      `json:"first_seen_at"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// Relationships
	Prices []PriceObservation `json:"prices,omitempty" gorm:"foreignKey:EntityID;references:ID"`
	Tier   *TierAssignment    `json:"tier,omitempty" gorm:"foreignKey:EntityID;references:ID"`
}

// EntityMigration maps a deprecated Entity ID to its replacement. Old IDs are
// never deleted; lookups on a deprecated ID resolve through this table.
type EntityMigration struct {
	BaseModel
	OldEntityID string    `json:"old_entity_id" gorm:"size:16;not null;uniqueIndex"`
	NewEntityID string    `json:"new_entity_id" gorm:"size:16;not null;index"`
	Reason      string    `json:"reason" gorm:"size:255"`
	MigratedAt  time.Time `json:"migrated_at"`
}
