package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcelwatch/server/internal/collector"
	"parcelwatch/server/internal/database"
	"parcelwatch/server/internal/engine"
	"parcelwatch/server/internal/ledger"
)

func SetupRoutes(router *gin.Engine, db *database.Database, eng *engine.Engine, l *ledger.Ledger, c *collector.Collector, logger *logrus.Logger) {
	handler := NewHandler(db, eng, l, c, logger)

	api := router.Group("/api")
	{
		api.POST("/observations", handler.IngestObservation)
		api.POST("/observations/batch", handler.IngestBatch)

		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/properties/:id/history", handler.GetPropertyHistory)
		api.GET("/changes", handler.GetChangedProperties)
		api.GET("/counties/stats", handler.GetCountyStats)

		api.GET("/conflicts", handler.GetConflicts)
		api.POST("/conflicts/:id/resolve", handler.ResolveConflict)

		api.POST("/runs", handler.StartRun)
		api.POST("/runs/:id/pages", handler.RecordRunPage)
		api.POST("/runs/:id/finish", handler.FinishRun)
		api.GET("/runs", handler.GetRecentRuns)

		api.POST("/collect", handler.Collect)
		api.GET("/markets", handler.GetMarkets)
		api.POST("/update-coordinates", handler.UpdateCoordinates)
	}
}
