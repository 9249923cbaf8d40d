// internal/router/router.go
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/handlers"
	"github.com/retailradar/arbitrage-backend/internal/middleware"
	"github.com/retailradar/arbitrage-backend/internal/services"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

// Dependencies carries the wired services into the HTTP layer. Construction
// happens in main so the cron jobs can share the same instances.
type Dependencies struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Cache         *cache.MultiLevelCache
	Auth          *services.AuthService
	Entities      *services.EntityService
	Matching      *services.MatchingService
	Opportunities *services.OpportunityService
	Tiers         *services.TierService
	Pipeline      *services.PipelineService
}

func Initialize(cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)
	authHandler := handlers.NewAuthHandler(deps.Auth)
	statusHandler := handlers.NewStatusHandler(deps.Pipeline, deps.Tiers, deps.Opportunities, deps.Cache)
	opportunityHandler := handlers.NewOpportunityHandler(deps.Opportunities)
	entityHandler := handlers.NewEntityHandler(deps.Entities, deps.Matching)
	adminHandler := handlers.NewAdminHandler(deps.Pipeline, deps.Tiers, deps.Entities)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit(cfg.RateLimit))

	// Probes
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/token", authHandler.Token)
		}

		// Read surface
		v1.GET("/status", statusHandler.Status)
		v1.GET("/opportunities", opportunityHandler.GetOpportunities)
		v1.GET("/opportunities/:id", opportunityHandler.GetOpportunity)
		v1.GET("/entities/:id", entityHandler.GetEntity)

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired())
		{
			admin.POST("/cycle", adminHandler.TriggerCycle)
			admin.PUT("/entities/:id/tier", adminHandler.OverrideTier)
			admin.POST("/entities/:id/migrate", adminHandler.MigrateEntity)
		}
	}

	return r
}
