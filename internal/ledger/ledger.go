// Package ledger records scrape run and page bookkeeping for observability
// and resume-after-interruption.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelwatch/server/internal/models"
)

// Ledger owns the scrape_runs and scrape_run_pages tables.
type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewLedger(db *gorm.DB, logger *logrus.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// StartRun opens a run for a market and returns its id.
func (l *Ledger) StartRun(market string) (int64, error) {
	run := models.ScrapeRun{
		Market:    market,
		StartedAt: time.Now().UTC(),
	}
	if err := l.db.Create(&run).Error; err != nil {
		return 0, fmt.Errorf("failed to start scrape run: %w", err)
	}
	l.logger.WithFields(logrus.Fields{"run_id": run.ID, "market": market}).Info("Started scrape run")
	return run.ID, nil
}

// RecordPage upserts the outcome of one page. Keyed on (run, page number):
// re-recording a page replaces its outcome instead of duplicating it, which
// makes page reporting safe to redeliver.
func (l *Ledger) RecordPage(runID int64, pageNumber int, url string, success bool, propertiesFound int) error {
	page := models.ScrapeRunPage{
		ScrapeRunID:     runID,
		PageNumber:      pageNumber,
		URL:             url,
		Success:         success,
		PropertiesFound: propertiesFound,
		RecordedAt:      time.Now().UTC(),
	}
	err := l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scrape_run_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "success", "properties_found", "recorded_at"}),
	}).Create(&page).Error
	if err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}

// FinishRun closes a run, storing the caller's outcome plus aggregate page
// counts derived from the recorded pages.
func (l *Ledger) FinishRun(runID int64, success bool, errorMessage string) error {
	var agg struct {
		Pages      int
		Properties int
	}
	err := l.db.Raw(`
		SELECT COUNT(*) AS pages, COALESCE(SUM(properties_found), 0) AS properties
		FROM scrape_run_pages
		WHERE scrape_run_id = ?
	`, runID).Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate run pages: %w", err)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"finished_at":     now,
		"pages_fetched":   agg.Pages,
		"properties_seen": agg.Properties,
		"success":         success,
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	res := l.db.Model(&models.ScrapeRun{}).Where("id = ?", runID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finish scrape run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("scrape run not found: %d", runID)
	}

	l.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"pages":   agg.Pages,
		"success": success,
	}).Info("Finished scrape run")
	return nil
}

// LastRecordedPage returns the highest successfully recorded page number for
// a run, or 0 when none succeeded yet. An interrupted run resumes from the
// page after it.
func (l *Ledger) LastRecordedPage(runID int64) (int, error) {
	var page models.ScrapeRunPage
	err := l.db.Where("scrape_run_id = ? AND success = ?", runID, true).
		Order("page_number DESC").
		First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find last recorded page: %w", err)
	}
	return page.PageNumber, nil
}

// PreviousRun returns the id of the most recent run for a market started
// before the given run, or 0 when there is none.
func (l *Ledger) PreviousRun(market string, beforeRunID int64) (int64, error) {
	var run models.ScrapeRun
	err := l.db.Where("market = ? AND id < ?", market, beforeRunID).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find previous run: %w", err)
	}
	return run.ID, nil
}

// RecentRuns returns the latest runs with their derived outcome: a run is
// only as good as its worst page, regardless of what the driver reported.
func (l *Ledger) RecentRuns(limit int) ([]models.RunSummary, error) {
	var runs []models.ScrapeRun
	err := l.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape runs: %w", err)
	}

	summaries := make([]models.RunSummary, 0, len(runs))
	for _, run := range runs {
		var pages struct {
			Recorded int
			Failed   int
		}
		err := l.db.Raw(`
			SELECT COUNT(*) AS recorded, COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed
			FROM scrape_run_pages
			WHERE scrape_run_id = ?
		`, run.ID).Scan(&pages).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate pages for run %d: %w", run.ID, err)
		}

		reported := run.Success != nil && *run.Success
		summaries = append(summaries, models.RunSummary{
			ScrapeRun:      run,
			PagesRecorded:  pages.Recorded,
			DerivedSuccess: reported && pages.Failed == 0,
		})
	}
	return summaries, nil
}
