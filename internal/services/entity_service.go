// internal/services/entity_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/retailradar/arbitrage-backend/internal/models"
)

// ErrEntityNotFound is returned for lookups of IDs no registration ever
// produced.
var ErrEntityNotFound = errors.New("entity not found")

// migrationChainLimit bounds canonical-ID resolution so a bad mapping cycle
// cannot loop forever.
const migrationChainLimit = 5

// EntityService registers scraped records as entities and owns the identity
// migration table. Registration is the front door of the pipeline: resolve
// the ID, normalize the features, upsert the row, make sure a tier
// assignment exists.
type EntityService struct {
	db         *gorm.DB
	identity   *IdentityService
	normalizer *NormalizerService
	tiers      *TierService
}

func NewEntityService(db *gorm.DB, identity *IdentityService, normalizer *NormalizerService, tiers *TierService) *EntityService {
	return &EntityService{
		db:         db,
		identity:   identity,
		normalizer: normalizer,
		tiers:      tiers,
	}
}

// RegisterRecord resolves a scraped record to its entity and upserts the
// entity row with freshly normalized features. Records with no usable key
// material propagate ErrInsufficientIdentityData so the caller can skip
// them.
func (s *EntityService) RegisterRecord(rec *models.ProductRecord) (*models.Entity, error) {
	resolvedID, err := s.identity.Resolve(rec.Retailer, rec.NativeSKU, rec.ListingURL, rec.RawName)
	if err != nil {
		return nil, err
	}

	entityID, err := s.Canonical(resolvedID)
	if err != nil {
		return nil, err
	}

	features := s.normalizer.Normalize(rec.RawName, rec.RawBrand)
	now := time.Now()

	var entity models.Entity
	err = s.db.Where("id = ?", entityID).First(&entity).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load entity: %w", err)
		}

		entity = models.Entity{
			ID:              entityID,
			Retailer:        rec.Retailer,
			Name:            rec.RawName,
			NormalizedName:  s.identity.NormalizeName(rec.RawName),
			Brand:           features.Brand,
			BrandConfidence: features.BrandConfidence,
			Category:        features.Category,
			SpecTokens:      features.SpecTokens,
			ListingURL:      rec.ListingURL,
			NativeSKU:       rec.NativeSKU,
			Rating:          rec.Rating,
			ReviewCount:     rec.ReviewCount,
			Active:          true,
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		if err := s.db.Create(&entity).Error; err != nil {
			return nil, fmt.Errorf("failed to create entity: %w", err)
		}
	} else {
		updates := map[string]interface{}{
			"name":             rec.RawName,
			"normalized_name":  s.identity.NormalizeName(rec.RawName),
			"brand":            features.Brand,
			"brand_confidence": features.BrandConfidence,
			"category":         features.Category,
			"spec_tokens":      features.SpecTokens,
			"listing_url":      rec.ListingURL,
			"native_sku":       rec.NativeSKU,
			"rating":           rec.Rating,
			"review_count":     rec.ReviewCount,
			"active":           true,
			"last_seen_at":     now,
		}
		if err := s.db.Model(&entity).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update entity: %w", err)
		}
	}

	if _, err := s.tiers.EnsureAssignment(entity.ID); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Canonical resolves an ID through the migration table to its current form.
// Unmigrated IDs resolve to themselves.
func (s *EntityService) Canonical(entityID string) (string, error) {
	current := entityID
	for i := 0; i < migrationChainLimit; i++ {
		var migration models.EntityMigration
		err := s.db.Where("old_entity_id = ?", current).First(&migration).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return current, nil
			}
			return "", fmt.Errorf("failed to resolve canonical entity: %w", err)
		}
		current = migration.NewEntityID
	}
	return "", fmt.Errorf("migration chain for %s exceeds %d hops", entityID, migrationChainLimit)
}

// Migrate deprecates an old entity ID in favor of a new one. The old entity
// row is deactivated, never deleted, and all future lookups on the old ID
// resolve to the new one.
func (s *EntityService) Migrate(oldID, newID, reason string) (*models.EntityMigration, error) {
	if oldID == newID {
		return nil, errors.New("cannot migrate an entity to itself")
	}

	var oldEntity models.Entity
	if err := s.db.Where("id = ?", oldID).First(&oldEntity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, oldID)
		}
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}

	migration := &models.EntityMigration{
		OldEntityID: oldID,
		NewEntityID: newID,
		Reason:      reason,
		MigratedAt:  time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(migration).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		if err := tx.Model(&oldEntity).Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate old entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return migration, nil
}

// GetEntity loads an entity by ID, resolving migrations first, with its tier
// assignment and recent price history attached.
func (s *EntityService) GetEntity(entityID string) (*models.Entity, error) {
	canonical, err := s.Canonical(entityID)
	if err != nil {
		return nil, err
	}

	var entity models.Entity
	err = s.db.Preload("Tier").
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Order("price_date DESC").Limit(30)
		}).
		Where("id = ?", canonical).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
		}
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}
	return &entity, nil
}

// GetByIDs loads a batch of entities keyed by ID.
func (s *EntityService) GetByIDs(ids []string) (map[string]*models.Entity, error) {
	if len(ids) == 0 {
		return map[string]*models.Entity{}, nil
	}

	var entities []models.Entity
	if err := s.db.Where("id IN ?", ids).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	byID := make(map[string]*models.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}
	return byID, nil
}
