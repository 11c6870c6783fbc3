package scheduler

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/collector"
	"parcelwatch/server/internal/database"
	"parcelwatch/server/internal/ledger"
	"parcelwatch/server/internal/models"
	"parcelwatch/server/internal/queue"
)

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB) {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	q := queue.NewObservationQueue(10, logger)
	l := ledger.NewLedger(db, logger)
	c := collector.NewCollector(q, l, logger)

	return NewScheduler(c, logger, 2), db
}

func runCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.ScrapeRun{}).Count(&count).Error)
	return count
}

func TestScheduler_SkipsWhileStartupRunning(t *testing.T) {
	s, db := newTestScheduler(t)
	config.SetMarkets([]config.Market{{Name: "springfield", State: "IL"}})

	// Startup has not completed: the daily slot is skipped entirely
	s.executeScheduledJobs(time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, int64(0), runCount(t, db))
}

func TestScheduler_RunsAtDailyHour(t *testing.T) {
	s, db := newTestScheduler(t)
	config.SetMarkets([]config.Market{{Name: "springfield", State: "IL"}})
	s.startupDone.Store(true)

	// Off-schedule ticks do nothing
	s.executeScheduledJobs(time.Date(2026, 8, 23, 3, 0, 0, 0, time.UTC))
	s.executeScheduledJobs(time.Date(2026, 8, 23, 2, 30, 0, 0, time.UTC))
	assert.Equal(t, int64(0), runCount(t, db))

	// The daily slot opens a run per market; the scraper process itself
	// fails in this environment, which the ledger records as a failed run
	s.executeScheduledJobs(time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, int64(1), runCount(t, db))
}
