// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/database"
	"github.com/retailradar/arbitrage-backend/internal/router"
	"github.com/retailradar/arbitrage-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	configureLogging(cfg)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Redis is optional; without it the cache runs in-process only
	rdb, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, shared cache layers disabled")
		rdb = nil
	}
	mlc := cache.NewMultiLevelCache(cfg.Cache, rdb)
	defer mlc.Close()

	loc, err := time.LoadLocation(cfg.Prices.Timezone)
	if err != nil {
		log.Fatal("Invalid prices timezone:", err)
	}

	// Wire services
	identityService := services.NewIdentityService()
	normalizerService := services.NewNormalizerService(identityService)
	matchingService := services.NewMatchingService(db, cfg.Matching, mlc, nil)
	priceService, err := services.NewPriceService(db, cfg.Prices, mlc)
	if err != nil {
		log.Fatal("Failed to initialize price service:", err)
	}
	tierService := services.NewTierService(db, cfg.Tiers, mlc, priceService, matchingService)
	entityService := services.NewEntityService(db, identityService, normalizerService, tierService)
	notifier := services.NewLogNotifier()
	opportunityService := services.NewOpportunityService(db, cfg.Opportunity, loc, mlc, tierService, priceService, notifier)
	pipelineService := services.NewPipelineService(cfg.Pipeline, nil, entityService, priceService, matchingService, opportunityService, tierService, mlc)
	reportService, err := services.NewReportService(db, cfg.AWS)
	if err != nil {
		log.Fatal("Failed to initialize report service:", err)
	}
	authService := services.NewAuthService(cfg.JWT)

	// Background schedules run in the retail timezone so the freeze cutoff
	// and daily reports land on the right calendar day.
	scheduler := cron.New(cron.WithLocation(loc))
	mustSchedule(scheduler, cfg.Pipeline.CycleSchedule, func() {
		if err := pipelineService.RunCycle(context.Background()); err != nil {
			logrus.WithError(err).Error("Pipeline cycle failed")
		}
	})
	mustSchedule(scheduler, cfg.Pipeline.ReclassifySchedule, func() {
		changed, err := tierService.Reclassify(context.Background())
		if err != nil {
			logrus.WithError(err).Error("Tier reclassification failed")
			return
		}
		logrus.WithField("changed", changed).Info("Tier reclassification finished")
	})
	mustSchedule(scheduler, cfg.Pipeline.FreezeSchedule, func() {
		frozen, err := priceService.FreezeOpenObservations(time.Now())
		if err != nil {
			logrus.WithError(err).Error("Price freeze failed")
			return
		}
		logrus.WithField("frozen", frozen).Info("Daily price freeze finished")
	})
	mustSchedule(scheduler, cfg.Pipeline.ReportSchedule, func() {
		result, err := reportService.GenerateDailyReport(time.Now().In(loc).AddDate(0, 0, -1))
		if err != nil {
			logrus.WithError(err).Error("Daily report failed")
			return
		}
		logrus.WithFields(logrus.Fields{"key": result.Key, "rows": result.Rows}).Info("Daily report uploaded")
	})
	scheduler.Start()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(cfg, router.Dependencies{
		DB:            db,
		Redis:         rdb,
		Cache:         mlc,
		Auth:          authService,
		Entities:      entityService,
		Matching:      matchingService,
		Opportunities: opportunityService,
		Tiers:         tierService,
		Pipeline:      pipelineService,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop intake first: no new cron ticks, then no new HTTP requests, then
	// wait for any in-flight cycle so pair writes complete.
	cronCtx := scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	<-cronCtx.Done()
	pipelineService.Wait()

	log.Println("Server exited")
}

func configureLogging(cfg *config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func mustSchedule(scheduler *cron.Cron, spec string, job func()) {
	if _, err := scheduler.AddFunc(spec, job); err != nil {
		log.Fatalf("Invalid cron schedule %q: %v", spec, err)
	}
}
