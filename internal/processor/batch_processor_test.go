package processor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/database"
	"parcelwatch/server/internal/engine"
	"parcelwatch/server/internal/models"
	"parcelwatch/server/internal/queue"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 1
	cfg.BatchProcessing.MaxRetries = 1
	cfg.BatchProcessing.RetryDelay = 0
	cfg.Ingest.MaxRetries = 2
	cfg.Ingest.RetryBackoffMS = 1
	return cfg
}

func TestNewBatchProcessor(t *testing.T) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	logger := logrus.New()
	cfg := testConfig()

	eng := engine.NewEngine(db, cfg, logger)
	q := queue.NewObservationQueue(10, logger)

	processor := NewBatchProcessor(eng, q, cfg, logger)
	assert.NotNil(t, processor)
	assert.Equal(t, eng, processor.engine)
	assert.Equal(t, q, processor.queue)
	assert.Equal(t, cfg, processor.config)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	logger := logrus.New()
	cfg := testConfig()

	eng := engine.NewEngine(db, cfg, logger)
	q := queue.NewObservationQueue(10, logger)
	processor := NewBatchProcessor(eng, q, cfg, logger)

	status := "for_sale"
	batch := []*models.Observation{
		{
			SourceName:      "mls",
			SourceListingID: "A1",
			Address:         models.RawAddress{Line: "123 Main St", City: "Springfield", State: "IL", PostalCode: "62704"},
			Fields:          models.TrackedFields{Status: &status},
			ObservedAt:      time.Now().UTC(),
		},
		// Invalid address: skipped, must not fail the batch
		{
			SourceName:      "mls",
			SourceListingID: "A2",
			Address:         models.RawAddress{Line: "", City: "Springfield", State: "IL", PostalCode: "62704"},
			ObservedAt:      time.Now().UTC(),
		},
	}

	err = processor.processBatch(batch)
	assert.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBatchProcessor_StartStop(t *testing.T) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	logger := logrus.New()
	cfg := testConfig()

	eng := engine.NewEngine(db, cfg, logger)
	q := queue.NewObservationQueue(10, logger)
	processor := NewBatchProcessor(eng, q, cfg, logger)

	processor.Start()
	time.Sleep(100 * time.Millisecond) // Give time for goroutines to start

	processor.Stop()
	q.Close()
	assert.True(t, q.IsClosed())
}
