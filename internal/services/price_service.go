// internal/services/price_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

var (
	// ErrPriceFrozen signals that the day's observation has passed the freeze
	// cutoff and can no longer be amended.
	ErrPriceFrozen = errors.New("price observation is frozen for the day")

	// ErrPriceAnomaly signals a same-series jump beyond the plausible change
	// ratio, treated as a scrape glitch rather than a real price.
	ErrPriceAnomaly = errors.New("price change exceeds plausible ratio")
)

// volatilityWindow is the trailing number of daily observations used for the
// coefficient-of-variation estimate.
const volatilityWindow = 14

// PriceService owns the daily observation series per entity: one row per
// entity per calendar day in the retail timezone, amendable until the freeze
// cutoff and immutable after it.
type PriceService struct {
	db    *gorm.DB
	cfg   config.PricesConfig
	cache *cache.MultiLevelCache
	loc   *time.Location

	cutoffHour   int
	cutoffMinute int
}

func NewPriceService(db *gorm.DB, cfg config.PricesConfig, mlc *cache.MultiLevelCache) (*PriceService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid prices timezone: %w", err)
	}
	hour, minute, err := config.ParseCutoff(cfg.FreezeCutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid freeze cutoff: %w", err)
	}
	return &PriceService{
		db:           db,
		cfg:          cfg,
		cache:        mlc,
		loc:          loc,
		cutoffHour:   hour,
		cutoffMinute: minute,
	}, nil
}

// RecordObservation applies a scraped price to the entity's daily series.
// The first sighting of a day creates an open row; later sightings before
// the cutoff amend it in place; sightings after the cutoff are rejected with
// ErrPriceFrozen. Implausible jumps are rejected with ErrPriceAnomaly.
func (s *PriceService) RecordObservation(ctx context.Context, entityID string, rec *models.ProductRecord) (*models.PriceObservation, error) {
	now := time.Now().In(s.loc)
	priceDate := now.Format("2006-01-02")
	minPrice := lowestValidPrice(rec.NormalPrice, rec.OfferPrice, rec.CardPrice)

	var existing models.PriceObservation
	err := s.db.Where("entity_id = ? AND price_date = ?", entityID, priceDate).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load price observation: %w", err)
		}

		if prev, perr := s.LatestObservation(entityID); perr == nil && prev != nil {
			if isAnomalousJump(prev.MinPrice, minPrice, s.cfg.MaxChangeRatio) {
				metrics.PriceWrites.WithLabelValues("anomaly").Inc()
				return nil, fmt.Errorf("%w: %d -> %d", ErrPriceAnomaly, prev.MinPrice, minPrice)
			}
		}

		obs := &models.PriceObservation{
			EntityID:    entityID,
			PriceDate:   priceDate,
			NormalPrice: rec.NormalPrice,
			OfferPrice:  rec.OfferPrice,
			CardPrice:   rec.CardPrice,
			MinPrice:    minPrice,
			Status:      models.PriceStatusOpen,
			ObservedAt:  now,
			UpdateCount: 0,
		}
		if err := s.db.Create(obs).Error; err != nil {
			return nil, fmt.Errorf("failed to create price observation: %w", err)
		}
		metrics.PriceWrites.WithLabelValues("created").Inc()
		s.cache.InvalidateEntity(ctx, entityID)
		return obs, nil
	}

	if existing.Status == models.PriceStatusFrozen || s.afterCutoff(now) {
		metrics.PriceWrites.WithLabelValues("frozen").Inc()
		return nil, fmt.Errorf("%w: entity %s date %s", ErrPriceFrozen, entityID, priceDate)
	}

	if existing.NormalPrice == rec.NormalPrice &&
		existing.OfferPrice == rec.OfferPrice &&
		existing.CardPrice == rec.CardPrice {
		s.db.Model(&existing).Update("observed_at", now)
		metrics.PriceWrites.WithLabelValues("unchanged").Inc()
		return &existing, nil
	}

	if isAnomalousJump(existing.MinPrice, minPrice, s.cfg.MaxChangeRatio) {
		metrics.PriceWrites.WithLabelValues("anomaly").Inc()
		return nil, fmt.Errorf("%w: %d -> %d", ErrPriceAnomaly, existing.MinPrice, minPrice)
	}

	oldMin := existing.MinPrice
	updates := map[string]interface{}{
		"normal_price": rec.NormalPrice,
		"offer_price":  rec.OfferPrice,
		"card_price":   rec.CardPrice,
		"min_price":    minPrice,
		"observed_at":  now,
		"update_count": gorm.Expr("update_count + 1"),
	}
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update price observation: %w", err)
	}
	existing.NormalPrice = rec.NormalPrice
	existing.OfferPrice = rec.OfferPrice
	existing.CardPrice = rec.CardPrice
	existing.MinPrice = minPrice
	existing.ObservedAt = now
	existing.UpdateCount++

	metrics.PriceWrites.WithLabelValues("updated").Inc()
	s.cache.InvalidateEntity(ctx, entityID)
	s.maybeAlert(entityID, oldMin, minPrice, now)
	return &existing, nil
}

// FreezeOpenObservations closes out every open row dated today or earlier.
// Runs on the nightly cutoff schedule; rows created after the cutoff are
// swept by the next run.
func (s *PriceService) FreezeOpenObservations(now time.Time) (int64, error) {
	priceDate := now.In(s.loc).Format("2006-01-02")
	result := s.db.Model(&models.PriceObservation{}).
		Where("status = ? AND price_date <= ?", models.PriceStatusOpen, priceDate).
		Update("status", models.PriceStatusFrozen)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to freeze observations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LatestObservation returns the most recent daily row for an entity, nil when
// the entity has no price history yet.
func (s *PriceService) LatestObservation(entityID string) (*models.PriceObservation, error) {
	var obs models.PriceObservation
	err := s.db.Where("entity_id = ?", entityID).
		Order("price_date DESC").
		First(&obs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest observation: %w", err)
	}
	return &obs, nil
}

// PriceHistory returns up to days of daily rows, newest first.
func (s *PriceService) PriceHistory(entityID string, days int) ([]models.PriceObservation, error) {
	var series []models.PriceObservation
	err := s.db.Where("entity_id = ?", entityID).
		Order("price_date DESC").
		Limit(days).
		Find(&series).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	return series, nil
}

// ComputeVolatility estimates price volatility as the coefficient of
// variation over the trailing window of daily minimum prices, clamped to
// [0, 1], and records the estimate in the analytics cache for the scheduler
// and the match scorer.
func (s *PriceService) ComputeVolatility(ctx context.Context, entityID string) (float64, error) {
	series, err := s.PriceHistory(entityID, volatilityWindow)
	if err != nil {
		return 0, err
	}

	prices := make([]float64, 0, len(series))
	for _, obs := range series {
		if obs.MinPrice > 0 {
			prices = append(prices, float64(obs.MinPrice))
		}
	}
	if len(prices) < 2 {
		return 0, nil
	}

	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean == 0 {
		return 0, nil
	}

	variance := 0.0
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	volatility := math.Sqrt(variance) / mean
	if volatility > 1 {
		volatility = 1
	}

	s.cache.RecordVolatility(ctx, entityID, volatility, len(prices))
	return volatility, nil
}

func (s *PriceService) afterCutoff(now time.Time) bool {
	local := now.In(s.loc)
	if local.Hour() != s.cutoffHour {
		return local.Hour() > s.cutoffHour
	}
	return local.Minute() >= s.cutoffMinute
}

func (s *PriceService) maybeAlert(entityID string, oldMin, newMin int64, now time.Time) {
	if oldMin <= 0 || newMin <= 0 {
		return
	}
	changePct := math.Abs(float64(newMin-oldMin)) / float64(oldMin) * 100
	if changePct < s.cfg.SignificantPct {
		return
	}

	alert := &models.PriceAlert{
		EntityID:      entityID,
		PriceType:     "min",
		OldPrice:      oldMin,
		NewPrice:      newMin,
		ChangePercent: changePct,
		Severity:      alertSeverity(changePct),
		DetectedAt:    now,
	}
	s.db.Create(alert)
}

func alertSeverity(changePct float64) models.AlertSeverity {
	switch {
	case changePct >= 25:
		return models.AlertSeverityCritical
	case changePct >= 10:
		return models.AlertSeverityWarning
	default:
		return models.AlertSeverityInfo
	}
}

// lowestValidPrice picks the cheapest positive price among the three listed
// variants; zero means no price could be read.
func lowestValidPrice(prices ...int64) int64 {
	var lowest int64
	for _, p := range prices {
		if p > 0 && (lowest == 0 || p < lowest) {
			lowest = p
		}
	}
	return lowest
}

func isAnomalousJump(oldPrice, newPrice int64, maxRatio float64) bool {
	if oldPrice <= 0 || newPrice <= 0 {
		return false
	}
	lo, hi := float64(oldPrice), float64(newPrice)
	if lo > hi {
		lo, hi = hi, lo
	}
	return hi/lo > maxRatio
}
