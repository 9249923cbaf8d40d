// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Matching    MatchingConfig
	Opportunity OpportunityConfig
	Tiers       TiersConfig
	Prices      PricesConfig
	Cache       CacheConfig
	Pipeline    PipelineConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	LogLevel     string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey        string
	TokenTTL         int // in hours
	OperatorName     string
	OperatorPassHash string // bcrypt hash; empty disables the admin surface
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	ReportPrefix    string
}

// MatchingConfig carries the scoring policy. Weights and thresholds are
// deployment-tunable, never baked into the scorer.
type MatchingConfig struct {
	AcceptThreshold float64
	DiscardFloor    float64
	WeightText      float64
	WeightBrand     float64
	WeightPrice     float64
	WeightCategory  float64
	WeightSpecs     float64
	EmbeddingShare  float64 // share of the text sub-score taken by the embedding signal when available
	MaxPriceRatio   float64
}

type OpportunityConfig struct {
	MinMarginCLP    int64
	MinPercentage   float64
	MinConfidence   float64
	AlertMarginCLP  int64
	AlertPercentage float64
	MinValidPrice   int64
	MaxValidPrice   int64
	MaxPriceRatio   float64
}

type TiersConfig struct {
	CriticalInterval    time.Duration
	ImportantInterval   time.Duration
	TrackingInterval    time.Duration
	CriticalJitter      float64
	ImportantJitter     float64
	TrackingJitter      float64
	CriticalVolatility  float64
	ImportantVolatility float64
	CriticalPopularity  int64
	MaxFailures         int
	RetryBackoffBase    time.Duration
	RetryBackoffCap     time.Duration
}

type PricesConfig struct {
	FreezeCutoff   string // "HH:MM" local time
	Timezone       string
	SignificantPct float64
	MaxChangeRatio float64
}

type CacheConfig struct {
	L1Size int
	L1TTL  time.Duration
	L2TTL  time.Duration
	L3TTL  time.Duration
	L4TTL  time.Duration
}

type PipelineConfig struct {
	Workers            int
	BatchSize          int
	CycleBudget        time.Duration
	CycleSchedule      string
	ReclassifySchedule string
	FreezeSchedule     string
	ReportSchedule     string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "arbitrage"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:        getEnv("JWT_SECRET", "change-me-in-production"),
			TokenTTL:         getEnvAsInt("JWT_TOKEN_TTL", 12), // hours
			OperatorName:     getEnv("OPERATOR_NAME", "operator"),
			OperatorPassHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "arbitrage-reports"),
			ReportPrefix:    getEnv("AWS_REPORT_PREFIX", "daily"),
		},
		Matching: MatchingConfig{
			AcceptThreshold: getEnvAsFloat("MATCH_ACCEPT_THRESHOLD", 0.85),
			DiscardFloor:    getEnvAsFloat("MATCH_DISCARD_FLOOR", 0.60),
			WeightText:      getEnvAsFloat("MATCH_WEIGHT_TEXT", 0.30),
			WeightBrand:     getEnvAsFloat("MATCH_WEIGHT_BRAND", 0.25),
			WeightPrice:     getEnvAsFloat("MATCH_WEIGHT_PRICE", 0.20),
			WeightCategory:  getEnvAsFloat("MATCH_WEIGHT_CATEGORY", 0.15),
			WeightSpecs:     getEnvAsFloat("MATCH_WEIGHT_SPECS", 0.10),
			EmbeddingShare:  getEnvAsFloat("MATCH_EMBEDDING_SHARE", 0.60),
			MaxPriceRatio:   getEnvAsFloat("MATCH_MAX_PRICE_RATIO", 4.0),
		},
		Opportunity: OpportunityConfig{
			MinMarginCLP:    getEnvAsInt64("OPP_MIN_MARGIN_CLP", 15000),
			MinPercentage:   getEnvAsFloat("OPP_MIN_PERCENTAGE", 12.0),
			MinConfidence:   getEnvAsFloat("OPP_MIN_CONFIDENCE", 0.70),
			AlertMarginCLP:  getEnvAsInt64("OPP_ALERT_MARGIN_CLP", 50000),
			AlertPercentage: getEnvAsFloat("OPP_ALERT_PERCENTAGE", 25.0),
			MinValidPrice:   getEnvAsInt64("OPP_MIN_VALID_PRICE", 1000),
			MaxValidPrice:   getEnvAsInt64("OPP_MAX_VALID_PRICE", 50000000),
			MaxPriceRatio:   getEnvAsFloat("OPP_MAX_PRICE_RATIO", 4.0),
		},
		Tiers: TiersConfig{
			CriticalInterval:    getEnvAsDuration("TIER_CRITICAL_INTERVAL", 30*time.Minute),
			ImportantInterval:   getEnvAsDuration("TIER_IMPORTANT_INTERVAL", 2*time.Hour),
			TrackingInterval:    getEnvAsDuration("TIER_TRACKING_INTERVAL", 6*time.Hour),
			CriticalJitter:      getEnvAsFloat("TIER_CRITICAL_JITTER", 0.10),
			ImportantJitter:     getEnvAsFloat("TIER_IMPORTANT_JITTER", 0.15),
			TrackingJitter:      getEnvAsFloat("TIER_TRACKING_JITTER", 0.20),
			CriticalVolatility:  getEnvAsFloat("TIER_CRITICAL_VOLATILITY", 0.15),
			ImportantVolatility: getEnvAsFloat("TIER_IMPORTANT_VOLATILITY", 0.05),
			CriticalPopularity:  getEnvAsInt64("TIER_CRITICAL_POPULARITY", 5),
			MaxFailures:         getEnvAsInt("TIER_MAX_FAILURES", 3),
			RetryBackoffBase:    getEnvAsDuration("TIER_RETRY_BACKOFF_BASE", 30*time.Second),
			RetryBackoffCap:     getEnvAsDuration("TIER_RETRY_BACKOFF_CAP", 10*time.Minute),
		},
		Prices: PricesConfig{
			FreezeCutoff:   getEnv("PRICE_FREEZE_CUTOFF", "23:59"),
			Timezone:       getEnv("PRICE_TIMEZONE", "America/Santiago"),
			SignificantPct: getEnvAsFloat("PRICE_SIGNIFICANT_PCT", 5.0),
			MaxChangeRatio: getEnvAsFloat("PRICE_MAX_CHANGE_RATIO", 5.0),
		},
		Cache: CacheConfig{
			L1Size: getEnvAsInt("CACHE_L1_SIZE", 1000),
			L1TTL:  getEnvAsDuration("CACHE_L1_TTL", 5*time.Minute),
			L2TTL:  getEnvAsDuration("CACHE_L2_TTL", 30*time.Minute),
			L3TTL:  getEnvAsDuration("CACHE_L3_TTL", time.Hour),
			L4TTL:  getEnvAsDuration("CACHE_L4_TTL", 2*time.Hour),
		},
		Pipeline: PipelineConfig{
			Workers:            getEnvAsInt("PIPELINE_WORKERS", 4),
			BatchSize:          getEnvAsInt("PIPELINE_BATCH_SIZE", 100),
			CycleBudget:        getEnvAsDuration("PIPELINE_CYCLE_BUDGET", 10*time.Minute),
			CycleSchedule:      getEnv("PIPELINE_CYCLE_SCHEDULE", "@every 5m"),
			ReclassifySchedule: getEnv("PIPELINE_RECLASSIFY_SCHEDULE", "@every 6h"),
			FreezeSchedule:     getEnv("PIPELINE_FREEZE_SCHEDULE", "59 23 * * *"),
			ReportSchedule:     getEnv("PIPELINE_REPORT_SCHEDULE", "5 0 * * *"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "change-me-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Matching.DiscardFloor >= c.Matching.AcceptThreshold {
		return fmt.Errorf("matching discard floor %.2f must be below the accept threshold %.2f",
			c.Matching.DiscardFloor, c.Matching.AcceptThreshold)
	}

	weightSum := c.Matching.WeightText + c.Matching.WeightBrand + c.Matching.WeightPrice +
		c.Matching.WeightCategory + c.Matching.WeightSpecs
	if weightSum < 0.99 || weightSum > 1.01 {
		return fmt.Errorf("matching weights must sum to 1.0, got %.3f", weightSum)
	}

	if c.Tiers.CriticalInterval >= c.Tiers.ImportantInterval ||
		c.Tiers.ImportantInterval >= c.Tiers.TrackingInterval {
		return fmt.Errorf("tier intervals must be ordered critical < important < tracking")
	}

	if _, _, err := ParseCutoff(c.Prices.FreezeCutoff); err != nil {
		return fmt.Errorf("invalid price freeze cutoff %q: %w", c.Prices.FreezeCutoff, err)
	}

	if _, err := time.LoadLocation(c.Prices.Timezone); err != nil {
		return fmt.Errorf("invalid price timezone %q: %w", c.Prices.Timezone, err)
	}

	return nil
}

// ParseCutoff parses an "HH:MM" clock value into hour and minute.
func ParseCutoff(cutoff string) (int, int, error) {
	parts := strings.SplitN(cutoff, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	return hour, minute, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
