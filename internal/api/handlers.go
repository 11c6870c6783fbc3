package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/address"
	"parcelwatch/server/internal/collector"
	"parcelwatch/server/internal/database"
	"parcelwatch/server/internal/engine"
	"parcelwatch/server/internal/geocoding"
	"parcelwatch/server/internal/ledger"
	"parcelwatch/server/internal/models"
)

type Handler struct {
	db        *database.Database
	engine    *engine.Engine
	ledger    *ledger.Ledger
	collector *collector.Collector
	geocoder  *geocoding.Geocoder
	logger    *logrus.Logger
}

type CollectRequest struct {
	Market   string `json:"market" binding:"required"`
	MaxPages *int   `json:"max_pages"`
	Resume   bool   `json:"resume"`
}

type RecordPageRequest struct {
	PageNumber      int    `json:"page_number" binding:"required"`
	URL             string `json:"url"`
	Success         *bool  `json:"success" binding:"required"`
	PropertiesFound int    `json:"properties_found"`
}

type FinishRunRequest struct {
	Success      *bool  `json:"success" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

func NewHandler(db *database.Database, eng *engine.Engine, l *ledger.Ledger, c *collector.Collector, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	cacheDir := filepath.Join(os.TempDir(), "parcelwatch", "geocode_cache")

	return &Handler{
		db:        db,
		engine:    eng,
		ledger:    l,
		collector: c,
		geocoder:  geocoding.NewGeocoder(logger, cacheDir),
		logger:    logger,
	}
}

// IngestObservation accepts a single observation and runs it through the
// identity and change-tracking engine synchronously.
func (h *Handler) IngestObservation(c *gin.Context) {
	var obs models.Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		h.logger.WithError(err).Error("Failed to parse observation")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid observation payload"})
		return
	}

	result, err := h.engine.IngestObservation(c.Request.Context(), &obs)
	if err != nil {
		h.respondIngestError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// IngestBatch accepts a batch of observations. Each observation succeeds or
// fails on its own; the response carries the per-observation outcomes.
func (h *Handler) IngestBatch(c *gin.Context) {
	var observations []*models.Observation
	if err := c.ShouldBindJSON(&observations); err != nil {
		h.logger.WithError(err).Error("Failed to parse observation batch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch payload"})
		return
	}

	type outcome struct {
		SourceName      string               `json:"source_name"`
		SourceListingID string               `json:"source_listing_id"`
		Result          *models.IngestResult `json:"result,omitempty"`
		Error           string               `json:"error,omitempty"`
	}

	outcomes := make([]outcome, 0, len(observations))
	for _, obs := range observations {
		o := outcome{SourceName: obs.SourceName, SourceListingID: obs.SourceListingID}
		result, err := h.engine.IngestObservation(c.Request.Context(), obs)
		if err != nil {
			o.Error = err.Error()
		} else {
			o.Result = &result
		}
		outcomes = append(outcomes, o)
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// respondIngestError maps engine failure modes to status codes.
func (h *Handler) respondIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, address.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrBindingConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrTransientConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store busy, retry the observation"})
	default:
		h.logger.WithError(err).Error("Failed to ingest observation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest observation"})
	}
}

func (h *Handler) GetProperty(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property id"})
		return
	}

	prop, err := h.db.GetProperty(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}
	if prop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}

	c.JSON(http.StatusOK, prop)
}

func (h *Handler) GetPropertyHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property id"})
		return
	}

	history, err := h.db.GetPropertyHistory(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property history"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// GetChangedProperties is the mailing feed: properties whose status or list
// price changed since a cutoff, optionally filtered to a market territory or
// a geographic bounding box.
func (h *Handler) GetChangedProperties(c *gin.Context) {
	sinceStr := c.DefaultQuery("since", time.Now().UTC().AddDate(0, 0, -7).Format(time.RFC3339))
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since timestamp, expected RFC3339"})
		return
	}

	state := c.Query("state")
	var counties []string
	if marketName := c.Query("market"); marketName != "" {
		market := config.GetMarketByName(marketName)
		if market == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown market"})
			return
		}
		state = market.State
		counties = market.Counties
	}

	var bbox *orb.Bound
	if bboxStr := c.Query("bbox"); bboxStr != "" {
		parsed, err := parseBound(bboxStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bbox, expected minLon,minLat,maxLon,maxLat"})
			return
		}
		bbox = parsed
	}

	changed, err := h.db.GetChangedProperties(since, state, counties, bbox)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get changed properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get changed properties"})
		return
	}

	c.JSON(http.StatusOK, changed)
}

func parseBound(s string) (*orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("expected four comma-separated numbers")
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		coords[i] = v
	}
	bound := orb.Bound{
		Min: orb.Point{coords[0], coords[1]},
		Max: orb.Point{coords[2], coords[3]},
	}
	return &bound, nil
}

func (h *Handler) GetCountyStats(c *gin.Context) {
	stats, err := h.db.GetCountyStats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get county stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get county stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetConflicts returns the open binding conflict reconciliation queue.
func (h *Handler) GetConflicts(c *gin.Context) {
	conflicts, err := h.db.GetOpenConflicts()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get binding conflicts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get binding conflicts"})
		return
	}

	c.JSON(http.StatusOK, conflicts)
}

func (h *Handler) ResolveConflict(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conflict id"})
		return
	}

	if err := h.db.ResolveConflict(id); err != nil {
		h.logger.WithError(err).Error("Failed to resolve conflict")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conflict"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// StartRun opens a scrape run for an external driver that reports its own
// pages and completion.
func (h *Handler) StartRun(c *gin.Context) {
	var req struct {
		Market string `json:"market" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	runID, err := h.ledger.StartRun(req.Market)
	if err != nil {
		h.logger.WithError(err).Error("Failed to start scrape run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start scrape run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": runID})
}

func (h *Handler) RecordRunPage(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	var req RecordPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	if err := h.ledger.RecordPage(runID, req.PageNumber, req.URL, *req.Success, req.PropertiesFound); err != nil {
		h.logger.WithError(err).Error("Failed to record run page")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record run page"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *Handler) FinishRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	var req FinishRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	if err := h.ledger.FinishRun(runID, *req.Success, req.ErrorMessage); err != nil {
		h.logger.WithError(err).Error("Failed to finish run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to finish run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "finished"})
}

func (h *Handler) GetRecentRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := h.ledger.RecentRuns(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recent runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// Collect launches a scrape for one configured market in the background.
func (h *Handler) Collect(c *gin.Context) {
	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse collect request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	market := config.GetMarketByName(req.Market)
	if market == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown market"})
		return
	}

	go func() {
		if err := h.collector.CollectMarket(*market, req.MaxPages, req.Resume); err != nil {
			h.logger.WithError(err).WithField("market", market.Name).Error("Collection failed")
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Collection started successfully",
	})
}

func (h *Handler) GetMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, config.GetMarkets())
}

func (h *Handler) UpdateCoordinates(c *gin.Context) {
	err := h.db.BackfillCoordinates(h.geocoder)
	if err != nil {
		h.logger.WithError(err).Error("Failed to update coordinates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coordinates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "Coordinates update process started",
	})
}
