// internal/services/tier_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

// TierService assigns each entity to a re-evaluation cadence class and
// decides which entities are due in a given cycle. Classification runs on
// its own schedule from volatility and popularity; manual overrides pin an
// entity until cleared.
type TierService struct {
	db       *gorm.DB
	cfg      config.TiersConfig
	cache    *cache.MultiLevelCache
	prices   *PriceService
	matching *MatchingService
}

func NewTierService(db *gorm.DB, cfg config.TiersConfig, mlc *cache.MultiLevelCache, prices *PriceService, matching *MatchingService) *TierService {
	return &TierService{
		db:       db,
		cfg:      cfg,
		cache:    mlc,
		prices:   prices,
		matching: matching,
	}
}

// TierFactor weights opportunity priority by the cheap side's cadence class.
func TierFactor(tier models.Tier) float64 {
	switch tier {
	case models.TierCritical:
		return 0.9
	case models.TierImportant:
		return 0.7
	default:
		return 0.5
	}
}

func tierRank(tier models.Tier) int {
	switch tier {
	case models.TierCritical:
		return 2
	case models.TierImportant:
		return 1
	default:
		return 0
	}
}

// EnsureAssignment returns the entity's assignment, creating a tracking-tier
// row due immediately when none exists.
func (s *TierService) EnsureAssignment(entityID string) (*models.TierAssignment, error) {
	var assignment models.TierAssignment
	err := s.db.Where("entity_id = ?", entityID).First(&assignment).Error
	if err == nil {
		return &assignment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load tier assignment: %w", err)
	}

	assignment = models.TierAssignment{
		EntityID:  entityID,
		Tier:      models.TierTracking,
		NextDueAt: time.Now(),
	}
	if err := s.db.Create(&assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to create tier assignment: %w", err)
	}
	return &assignment, nil
}

// DueAssignments returns up to limit assignments whose next evaluation time
// has passed, most overdue first, restricted to active entities.
func (s *TierService) DueAssignments(now time.Time, limit int) ([]models.TierAssignment, error) {
	var due []models.TierAssignment
	err := s.db.
		Joins("JOIN entities ON entities.id = tier_assignments.entity_id").
		Where("tier_assignments.next_due_at <= ? AND entities.active = ?", now, true).
		Order("tier_assignments.next_due_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due assignments: %w", err)
	}
	return due, nil
}

// MarkEvaluated records a successful evaluation: the failure streak resets
// and the next due time is one jittered interval out, so entities sharing a
// tier drift apart instead of thundering together.
func (s *TierService) MarkEvaluated(entityID string, now time.Time) error {
	var assignment models.TierAssignment
	if err := s.db.Where("entity_id = ?", entityID).First(&assignment).Error; err != nil {
		return fmt.Errorf("failed to load tier assignment: %w", err)
	}

	next := now.Add(s.jitteredInterval(assignment.Tier))
	err := s.db.Model(&assignment).Updates(map[string]interface{}{
		"last_evaluated_at":    now,
		"next_due_at":          next,
		"consecutive_failures": 0,
		"last_failure_reason":  "",
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark assignment evaluated: %w", err)
	}
	return nil
}

// RecordFailure backs the entity off exponentially. Hitting the failure cap
// demotes it to tracking so a dead listing stops consuming critical-tier
// slots; a manual override keeps the tier but still backs off.
func (s *TierService) RecordFailure(entityID, reason string, now time.Time) error {
	var assignment models.TierAssignment
	if err := s.db.Where("entity_id = ?", entityID).First(&assignment).Error; err != nil {
		return fmt.Errorf("failed to load tier assignment: %w", err)
	}

	failures := assignment.ConsecutiveFailures + 1
	updates := map[string]interface{}{
		"consecutive_failures": failures,
		"last_failure_reason":  reason,
		"next_due_at":          now.Add(s.backoff(failures)),
	}

	if failures >= s.cfg.MaxFailures && !assignment.ManualOverride && assignment.Tier != models.TierTracking {
		updates["tier"] = models.TierTracking
		updates["consecutive_failures"] = 0
		updates["next_due_at"] = now.Add(s.jitteredInterval(models.TierTracking))
	}

	if err := s.db.Model(&assignment).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to record evaluation failure: %w", err)
	}
	return nil
}

// Reclassify recomputes every non-overridden assignment from fresh
// volatility and popularity signals. An entity whose volatility strictly
// rose since the last pass never moves down a tier in the same pass, so a
// product turning unstable cannot slip off the fast cadence.
func (s *TierService) Reclassify(ctx context.Context) (int, error) {
	var assignments []models.TierAssignment
	if err := s.db.Find(&assignments).Error; err != nil {
		return 0, fmt.Errorf("failed to load tier assignments: %w", err)
	}

	changed := 0
	for i := range assignments {
		assignment := &assignments[i]

		volatility, ok := s.cache.GetVolatility(ctx, assignment.EntityID)
		if !ok {
			computed, err := s.prices.ComputeVolatility(ctx, assignment.EntityID)
			if err == nil {
				volatility = computed
			}
		}

		popularity, err := s.matching.CountAcceptedMatches(assignment.EntityID)
		if err != nil {
			popularity = assignment.Popularity
		}

		target := s.classify(volatility, popularity)
		if assignment.ManualOverride {
			target = assignment.Tier
		} else if volatility > assignment.Volatility && tierRank(target) < tierRank(assignment.Tier) {
			target = assignment.Tier
		}

		updates := map[string]interface{}{
			"volatility": volatility,
			"popularity": popularity,
		}
		if target != assignment.Tier {
			updates["tier"] = target
			updates["next_due_at"] = time.Now().Add(s.jitteredInterval(target))
			changed++
		}
		if err := s.db.Model(assignment).Updates(updates).Error; err != nil {
			return changed, fmt.Errorf("failed to reclassify entity %s: %w", assignment.EntityID, err)
		}
	}

	s.publishTierGauges()
	return changed, nil
}

// SetManualOverride pins an entity to a tier until the override is cleared.
// Clearing leaves the current tier in place for the next reclassification
// pass to revise.
func (s *TierService) SetManualOverride(entityID string, tier models.Tier, enabled bool) (*models.TierAssignment, error) {
	assignment, err := s.EnsureAssignment(entityID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"manual_override": enabled,
	}
	if enabled {
		updates["tier"] = tier
		updates["next_due_at"] = time.Now().Add(s.jitteredInterval(tier))
	}
	if err := s.db.Model(assignment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to set manual override: %w", err)
	}

	if enabled {
		assignment.Tier = tier
	}
	assignment.ManualOverride = enabled
	return assignment, nil
}

// GetAssignment returns the assignment for an entity, nil when absent.
func (s *TierService) GetAssignment(entityID string) (*models.TierAssignment, error) {
	var assignment models.TierAssignment
	err := s.db.Where("entity_id = ?", entityID).First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tier assignment: %w", err)
	}
	return &assignment, nil
}

func (s *TierService) classify(volatility float64, popularity int64) models.Tier {
	if volatility >= s.cfg.CriticalVolatility || popularity >= s.cfg.CriticalPopularity {
		return models.TierCritical
	}
	if volatility >= s.cfg.ImportantVolatility || popularity >= 1 {
		return models.TierImportant
	}
	return models.TierTracking
}

func (s *TierService) interval(tier models.Tier) time.Duration {
	switch tier {
	case models.TierCritical:
		return s.cfg.CriticalInterval
	case models.TierImportant:
		return s.cfg.ImportantInterval
	default:
		return s.cfg.TrackingInterval
	}
}

func (s *TierService) jitter(tier models.Tier) float64 {
	switch tier {
	case models.TierCritical:
		return s.cfg.CriticalJitter
	case models.TierImportant:
		return s.cfg.ImportantJitter
	default:
		return s.cfg.TrackingJitter
	}
}

// jitteredInterval spreads the base interval by a uniform factor in
// [1-jitter, 1+jitter].
func (s *TierService) jitteredInterval(tier models.Tier) time.Duration {
	base := s.interval(tier)
	jitter := s.jitter(tier)
	factor := 1 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(base) * factor)
}

func (s *TierService) backoff(failures int) time.Duration {
	delay := s.cfg.RetryBackoffBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= s.cfg.RetryBackoffCap {
			return s.cfg.RetryBackoffCap
		}
	}
	if delay > s.cfg.RetryBackoffCap {
		delay = s.cfg.RetryBackoffCap
	}
	return delay
}

// CountByTier returns the number of assignments per tier, with zero entries
// for empty tiers.
func (s *TierService) CountByTier() (map[models.Tier]int64, error) {
	type tierCount struct {
		Tier  models.Tier
		Count int64
	}
	var counts []tierCount
	if err := s.db.Model(&models.TierAssignment{}).
		Select("tier, COUNT(*) as count").
		Group("tier").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count tiers: %w", err)
	}

	byTier := map[models.Tier]int64{
		models.TierCritical:  0,
		models.TierImportant: 0,
		models.TierTracking:  0,
	}
	for _, tc := range counts {
		byTier[tc.Tier] = tc.Count
	}
	return byTier, nil
}

func (s *TierService) publishTierGauges() {
	byTier, err := s.CountByTier()
	if err != nil {
		return
	}
	for tier, count := range byTier {
		metrics.TierEntities.WithLabelValues(string(tier)).Set(float64(count))
	}
}
