// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.Entity{},
		&models.EntityMigration{},
		&models.PriceObservation{},
		&models.PriceAlert{},
		&models.MatchCandidate{},
		&models.ArbitrageOpportunity{},
		&models.OpportunitySnapshot{},
		&models.TierAssignment{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Entity indexes
		"CREATE INDEX IF NOT EXISTS idx_entities_retailer_active ON entities(retailer, active)",
		"CREATE INDEX IF NOT EXISTS idx_entities_brand_category ON entities(brand, category)",
		"CREATE INDEX IF NOT EXISTS idx_entities_last_seen ON entities(last_seen_at DESC)",

		// Price observation indexes
		"CREATE INDEX IF NOT EXISTS idx_obs_entity_latest ON price_observations(entity_id, price_date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_obs_status_date ON price_observations(status, price_date)",

		// Match candidate indexes
		"CREATE INDEX IF NOT EXISTS idx_matches_decision_score ON match_candidates(decision, score DESC)",
		"CREATE INDEX IF NOT EXISTS idx_matches_entity_a ON match_candidates(entity_a_id, decision)",
		"CREATE INDEX IF NOT EXISTS idx_matches_entity_b ON match_candidates(entity_b_id, decision)",
		"CREATE INDEX IF NOT EXISTS idx_matches_last_scored ON match_candidates(last_scored DESC)",

		// Opportunity indexes
		"CREATE INDEX IF NOT EXISTS idx_opps_status_priority ON arbitrage_opportunities(status, priority DESC)",
		"CREATE INDEX IF NOT EXISTS idx_opps_date_margin ON arbitrage_opportunities(detection_date DESC, gross_margin DESC)",
		"CREATE INDEX IF NOT EXISTS idx_opps_expiry ON arbitrage_opportunities(status, estimated_expiry)",

		// Tier assignment indexes
		"CREATE INDEX IF NOT EXISTS idx_tiers_due ON tier_assignments(tier, next_due_at)",
		"CREATE INDEX IF NOT EXISTS idx_tiers_next_due ON tier_assignments(next_due_at)",

		// Migration and alert indexes
		"CREATE INDEX IF NOT EXISTS idx_migrations_new_id ON entity_migrations(new_entity_id)",
		"CREATE INDEX IF NOT EXISTS idx_alerts_entity_time ON price_alerts(entity_id, detected_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_opp_time ON opportunity_snapshots(opportunity_id, captured_at DESC)",

		// Full-text search index for entity lookup by name
		"CREATE INDEX IF NOT EXISTS idx_entities_search ON entities USING GIN(to_tsvector('simple', normalized_name))",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
