package main

import (
	"os"
	"path/filepath"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/alerts"
	"parcelwatch/server/internal/api"
	"parcelwatch/server/internal/collector"
	"parcelwatch/server/internal/database"
	"parcelwatch/server/internal/engine"
	"parcelwatch/server/internal/geocoding"
	"parcelwatch/server/internal/ledger"
	"parcelwatch/server/internal/processor"
	"parcelwatch/server/internal/queue"
	"parcelwatch/server/internal/scheduler"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Markets are optional at startup; collection endpoints reject unknown
	// markets until a config is loaded.
	if err := config.LoadMarketConfig(); err != nil {
		logger.WithError(err).Warn("No market configuration loaded")
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Backfill coordinates for properties geocoding has not seen yet
	cacheDir := filepath.Join(os.TempDir(), "parcelwatch", "geocode_cache")
	geocoder := geocoding.NewGeocoder(logger, cacheDir)
	logger.Info("Starting initial geocoding of properties without coordinates...")
	if err := db.BackfillCoordinates(geocoder); err != nil {
		logger.WithError(err).Error("Failed to update coordinates")
	}

	eng := engine.NewEngine(db.GetDB(), cfg, logger)
	if cfg.Alerts.Enabled {
		eng.SetAlerter(alerts.NewService(cfg, logger))
	}

	runLedger := ledger.NewLedger(db.GetDB(), logger)

	obsQueue := queue.NewObservationQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	batchProcessor := processor.NewBatchProcessor(eng, obsQueue, cfg, logger)
	batchProcessor.Start()
	defer func() {
		obsQueue.Close()
		batchProcessor.Stop()
	}()

	marketCollector := collector.NewCollector(obsQueue, runLedger, logger)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(marketCollector, logger, cfg.Scheduler.DailyRunHour)
		sched.Start()
		defer sched.Stop()
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: false,
	}))

	api.SetupRoutes(router, db, eng, runLedger, marketCollector, logger)

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
