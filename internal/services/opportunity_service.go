// internal/services/opportunity_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
	"github.com/retailradar/arbitrage-backend/internal/models"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

// OpportunityService turns accepted matches plus current prices into scored
// arbitrage opportunities. Emission is floor-gated, upserts are idempotent
// per (cheap, expensive, detection day), and expiry is a status transition,
// never a delete.
type OpportunityService struct {
	db       *gorm.DB
	cfg      config.OpportunityConfig
	cache    *cache.MultiLevelCache
	tiers    *TierService
	prices   *PriceService
	notifier Notifier
	loc      *time.Location

	pairLocks *utils.KeyedMutex
}

func NewOpportunityService(db *gorm.DB, cfg config.OpportunityConfig, loc *time.Location, mlc *cache.MultiLevelCache, tiers *TierService, prices *PriceService, notifier Notifier) *OpportunityService {
	return &OpportunityService{
		db:        db,
		cfg:       cfg,
		cache:     mlc,
		tiers:     tiers,
		prices:    prices,
		notifier:  notifier,
		loc:       loc,
		pairLocks: utils.NewKeyedMutex(64),
	}
}

// Detect evaluates one accepted match against the two sides' current best
// prices. It returns nil without error when no opportunity exists: floors
// unmet, prices implausible, or risk extreme are normal outcomes. Prices are
// matched positionally, obsA belongs to match.EntityAID and obsB to
// match.EntityBID.
func (s *OpportunityService) Detect(ctx context.Context, match *models.MatchCandidate, obsA, obsB *models.PriceObservation) (*models.ArbitrageOpportunity, error) {
	if match == nil || match.Decision != models.MatchDecisionAccepted {
		return nil, nil
	}
	if obsA == nil || obsB == nil {
		return nil, nil
	}

	priceA := obsA.BestPrice()
	priceB := obsB.BestPrice()
	if !s.plausible(priceA) || !s.plausible(priceB) {
		return nil, nil
	}
	if priceA == priceB {
		return nil, nil
	}

	cheapID, expensiveID := match.EntityAID, match.EntityBID
	buyRetailer, sellRetailer := match.RetailerA, match.RetailerB
	buyPrice, sellPrice := priceA, priceB
	if priceB < priceA {
		cheapID, expensiveID = match.EntityBID, match.EntityAID
		buyRetailer, sellRetailer = match.RetailerB, match.RetailerA
		buyPrice, sellPrice = priceB, priceA
	}

	if float64(sellPrice)/float64(buyPrice) > s.cfg.MaxPriceRatio {
		return nil, nil
	}

	margin := sellPrice - buyPrice
	pctDiff := float64(margin) / float64(buyPrice) * 100
	roi := float64(margin) / float64(buyPrice)

	if margin < s.cfg.MinMarginCLP || pctDiff < s.cfg.MinPercentage || match.Score < s.cfg.MinConfidence {
		return nil, nil
	}

	volatility := s.pairVolatility(ctx, cheapID, expensiveID)
	riskLevel := riskFor(margin, pctDiff, match.Score, volatility)
	if riskLevel == models.RiskLevelExtreme {
		return nil, nil
	}

	confidence := match.Score*0.4 +
		math.Min(float64(margin)/50000, 1)*0.3 +
		math.Min(pctDiff/30, 1)*0.3
	score := 0.5*math.Min(float64(margin)/50000, 1) + 0.5*math.Min(pctDiff/30, 1)
	priority := s.priorityFor(score, confidence, cheapID)
	now := time.Now()

	opp := &models.ArbitrageOpportunity{
		MatchCandidateID:  match.ID,
		CheapEntityID:     cheapID,
		ExpensiveEntityID: expensiveID,
		DetectionDate:     now.In(s.loc).Format("2006-01-02"),
		BuyRetailer:       buyRetailer,
		SellRetailer:      sellRetailer,
		BuyPrice:          buyPrice,
		SellPrice:         sellPrice,
		GrossMargin:       margin,
		PercentageDiff:    pctDiff,
		ROI:               roi,
		OpportunityScore:  score,
		MatchConfidence:   match.Score,
		RiskLevel:         riskLevel,
		Priority:          priority,
		Status:            models.OpportunityStatusDetected,
		DetectedAt:        now,
		EstimatedExpiry:   now.Add(expiryWindow(margin, pctDiff)),
		TimesDetected:     1,
		Metadata: models.JSONB{
			"volatility": volatility,
		},
	}

	persisted, kind, err := s.upsert(opp)
	if err != nil {
		return nil, err
	}

	metrics.OpportunitiesDetected.WithLabelValues(string(persisted.RiskLevel)).Inc()
	s.emit(ctx, kind, persisted)
	return persisted, nil
}

// upsert serializes writes per entity pair so same-day re-detections update
// one row. The unique index on (cheap, expensive, detection_date) backs the
// same guarantee across processes.
func (s *OpportunityService) upsert(opp *models.ArbitrageOpportunity) (*models.ArbitrageOpportunity, string, error) {
	lockKey := opp.CheapEntityID + "|" + opp.ExpensiveEntityID
	s.pairLocks.Lock(lockKey)
	defer s.pairLocks.Unlock(lockKey)

	var existing models.ArbitrageOpportunity
	err := s.db.Where("cheap_entity_id = ? AND expensive_entity_id = ? AND detection_date = ?",
		opp.CheapEntityID, opp.ExpensiveEntityID, opp.DetectionDate).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		createErr := s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "cheap_entity_id"}, {Name: "expensive_entity_id"}, {Name: "detection_date"},
			},
			DoNothing: true,
		}).Create(opp).Error
		if createErr != nil {
			return nil, "", fmt.Errorf("failed to create opportunity: %w", createErr)
		}
		if opp.ID == uuid.Nil {
			// another process inserted the row first; read it back
			if err := s.db.Where("cheap_entity_id = ? AND expensive_entity_id = ? AND detection_date = ?",
				opp.CheapEntityID, opp.ExpensiveEntityID, opp.DetectionDate).
				First(opp).Error; err != nil {
				return nil, "", fmt.Errorf("failed to reload opportunity: %w", err)
			}
		}
		s.appendSnapshot(opp)
		return opp, EventOpportunityCreated, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load opportunity: %w", err)
	}

	updates := map[string]interface{}{
		"match_candidate_id": opp.MatchCandidateID,
		"buy_price":          opp.BuyPrice,
		"sell_price":         opp.SellPrice,
		"gross_margin":       opp.GrossMargin,
		"percentage_diff":    opp.PercentageDiff,
		"roi":                opp.ROI,
		"opportunity_score":  opp.OpportunityScore,
		"match_confidence":   opp.MatchConfidence,
		"risk_level":         opp.RiskLevel,
		"priority":           opp.Priority,
		"status":             models.OpportunityStatusDetected,
		"estimated_expiry":   opp.EstimatedExpiry,
		"metadata":           opp.Metadata,
		"times_detected":     gorm.Expr("times_detected + 1"),
		"updated_at":         time.Now(),
	}
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, "", fmt.Errorf("failed to update opportunity: %w", err)
	}

	refreshed := existing
	refreshed.BuyPrice = opp.BuyPrice
	refreshed.SellPrice = opp.SellPrice
	refreshed.GrossMargin = opp.GrossMargin
	refreshed.PercentageDiff = opp.PercentageDiff
	refreshed.ROI = opp.ROI
	refreshed.OpportunityScore = opp.OpportunityScore
	refreshed.MatchConfidence = opp.MatchConfidence
	refreshed.RiskLevel = opp.RiskLevel
	refreshed.Priority = opp.Priority
	refreshed.Status = models.OpportunityStatusDetected
	refreshed.EstimatedExpiry = opp.EstimatedExpiry
	refreshed.TimesDetected = existing.TimesDetected + 1

	s.appendSnapshot(&refreshed)
	return &refreshed, EventOpportunityUpdated, nil
}

func (s *OpportunityService) appendSnapshot(opp *models.ArbitrageOpportunity) {
	snapshot := &models.OpportunitySnapshot{
		OpportunityID:  opp.ID,
		BuyPrice:       opp.BuyPrice,
		SellPrice:      opp.SellPrice,
		GrossMargin:    opp.GrossMargin,
		PercentageDiff: opp.PercentageDiff,
		CapturedAt:     time.Now(),
	}
	s.db.Create(snapshot)
}

// ExpireStale sweeps live opportunities and expires the ones whose backing
// match flipped to rejected, whose price gap no longer clears the floors, or
// whose estimated expiry has passed. Expired rows stay queryable forever.
func (s *OpportunityService) ExpireStale(ctx context.Context) (int, error) {
	var live []models.ArbitrageOpportunity
	err := s.db.Preload("Match").
		Where("status <> ?", models.OpportunityStatusExpired).
		Find(&live).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load live opportunities: %w", err)
	}

	now := time.Now()
	expired := 0
	for i := range live {
		opp := &live[i]
		if !s.shouldExpire(opp, now) {
			continue
		}

		err := s.db.Model(opp).Updates(map[string]interface{}{
			"status":     models.OpportunityStatusExpired,
			"updated_at": now,
		}).Error
		if err != nil {
			return expired, fmt.Errorf("failed to expire opportunity %s: %w", opp.ID, err)
		}
		opp.Status = models.OpportunityStatusExpired
		expired++
		s.emit(ctx, EventOpportunityExpired, opp)
	}

	s.RefreshActiveGauge()
	return expired, nil
}

func (s *OpportunityService) shouldExpire(opp *models.ArbitrageOpportunity, now time.Time) bool {
	if opp.Match.ID != uuid.Nil && opp.Match.Decision == models.MatchDecisionRejected {
		return true
	}

	cheapObs, errA := s.prices.LatestObservation(opp.CheapEntityID)
	expObs, errB := s.prices.LatestObservation(opp.ExpensiveEntityID)
	if errA == nil && errB == nil && cheapObs != nil && expObs != nil {
		buy := cheapObs.BestPrice()
		sell := expObs.BestPrice()
		if buy <= 0 || sell <= buy {
			return true
		}
		margin := sell - buy
		pctDiff := float64(margin) / float64(buy) * 100
		if margin < s.cfg.MinMarginCLP || pctDiff < s.cfg.MinPercentage {
			return true
		}
	}

	return now.After(opp.EstimatedExpiry)
}

// List returns opportunities matching the filter params plus the total count
// before pagination.
func (s *OpportunityService) List(params utils.PaginationParams) ([]models.ArbitrageOpportunity, int64, error) {
	query := s.db.Model(&models.ArbitrageOpportunity{})

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Risk != "" {
		query = query.Where("risk_level = ?", params.Risk)
	}
	if params.Retailer != "" {
		query = query.Where("buy_retailer = ? OR sell_retailer = ?", params.Retailer, params.Retailer)
	}
	if params.MinMargin > 0 {
		query = query.Where("gross_margin >= ?", params.MinMargin)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count opportunities: %w", err)
	}

	var opportunities []models.ArbitrageOpportunity
	allowedSort := []string{"created_at", "gross_margin", "percentage_diff", "opportunity_score", "priority", "detected_at"}
	query = utils.ApplySort(query, params, allowedSort)
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&opportunities).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return opportunities, total, nil
}

// GetByID loads one opportunity with its match and snapshot trail.
func (s *OpportunityService) GetByID(id string) (*models.ArbitrageOpportunity, error) {
	var opp models.ArbitrageOpportunity
	err := s.db.Preload("Match").
		Preload("Snapshots", func(db *gorm.DB) *gorm.DB {
			return db.Order("captured_at ASC")
		}).
		Where("id = ?", id).
		First(&opp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load opportunity: %w", err)
	}
	return &opp, nil
}

// ActiveCount returns how many opportunities are currently live.
func (s *OpportunityService) ActiveCount() (int64, error) {
	var count int64
	err := s.db.Model(&models.ArbitrageOpportunity{}).
		Where("status <> ?", models.OpportunityStatusExpired).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active opportunities: %w", err)
	}
	return count, nil
}

// RefreshActiveGauge republishes the live-opportunity count.
func (s *OpportunityService) RefreshActiveGauge() {
	count, err := s.ActiveCount()
	if err != nil {
		return
	}
	metrics.ActiveOpportunities.Set(float64(count))
}

func (s *OpportunityService) emit(ctx context.Context, kind string, opp *models.ArbitrageOpportunity) {
	if s.notifier == nil {
		return
	}
	event := OpportunityEvent{
		Kind:        kind,
		Opportunity: opp,
		Severity:    s.severityFor(opp),
		EmittedAt:   time.Now(),
	}
	_ = s.notifier.NotifyOpportunity(ctx, event)
}

func (s *OpportunityService) severityFor(opp *models.ArbitrageOpportunity) models.AlertSeverity {
	overMargin := opp.GrossMargin >= s.cfg.AlertMarginCLP
	overPct := opp.PercentageDiff >= s.cfg.AlertPercentage
	switch {
	case overMargin && overPct:
		return models.AlertSeverityCritical
	case overMargin || overPct:
		return models.AlertSeverityWarning
	default:
		return models.AlertSeverityInfo
	}
}

func (s *OpportunityService) plausible(price int64) bool {
	return price >= s.cfg.MinValidPrice && price <= s.cfg.MaxValidPrice
}

func (s *OpportunityService) pairVolatility(ctx context.Context, cheapID, expensiveID string) float64 {
	volatility := 0.0
	for _, id := range []string{cheapID, expensiveID} {
		if vol, ok := s.cache.GetVolatility(ctx, id); ok && vol > volatility {
			volatility = vol
		}
	}
	return volatility
}

func (s *OpportunityService) priorityFor(score, confidence float64, cheapID string) int {
	tierFactor := TierFactor(models.TierTracking)
	if assignment, err := s.tiers.GetAssignment(cheapID); err == nil && assignment != nil {
		tierFactor = TierFactor(assignment.Tier)
	}

	combined := score*0.5 + confidence*0.3 + tierFactor*0.2
	switch {
	case combined >= 0.9:
		return 5
	case combined >= 0.8:
		return 4
	case combined >= 0.6:
		return 3
	case combined >= 0.4:
		return 2
	default:
		return 1
	}
}

// riskFor accumulates risk from the gap size, the match quality, and price
// volatility. Very large margins or percentage gaps are treated as likely
// data problems, not windfalls.
func riskFor(margin int64, pctDiff, similarity, volatility float64) models.RiskLevel {
	risk := 0.0

	switch {
	case margin > 200000:
		risk += 0.3
	case margin > 100000:
		risk += 0.1
	}

	switch {
	case pctDiff > 100:
		risk += 0.4
	case pctDiff > 50:
		risk += 0.2
	}

	switch {
	case similarity < 0.7:
		risk += 0.3
	case similarity < 0.8:
		risk += 0.1
	}

	switch {
	case volatility > 0.5:
		risk += 0.2
	case volatility > 0.3:
		risk += 0.1
	}

	switch {
	case risk < 0.3:
		return models.RiskLevelLow
	case risk < 0.6:
		return models.RiskLevelMedium
	case risk < 0.8:
		return models.RiskLevelHigh
	default:
		return models.RiskLevelExtreme
	}
}

// expiryWindow estimates how long a gap of this size tends to survive. Large
// margins and wide percentage gaps close faster.
func expiryWindow(margin int64, pctDiff float64) time.Duration {
	switch {
	case margin > 100000:
		return 6 * time.Hour
	case margin > 50000:
		return 12 * time.Hour
	case pctDiff > 30:
		return 8 * time.Hour
	default:
		return 24 * time.Hour
	}
}
