package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/address"
	"parcelwatch/server/internal/engine"
	"parcelwatch/server/internal/models"
	"parcelwatch/server/internal/queue"
)

// BatchProcessor drains observation batches off the queue and feeds them
// through the ingestion engine one at a time. Observations fail
// independently: a bad address or a held conflict never blocks the rest of
// the batch.
type BatchProcessor struct {
	engine    *engine.Engine
	queue     *queue.ObservationQueue
	config    *config.Config
	logger    *logrus.Logger
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(eng *engine.Engine, queue *queue.ObservationQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		engine: eng,
		queue:  queue,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing batches from the queue
func (p *BatchProcessor) Start() {
	for i := 0; i < p.config.BatchProcessing.ProcessorCount; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
}

// Stop gracefully shuts down the processor
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	for {
		batch, err := p.queue.Next(p.ctx)
		if err != nil {
			return
		}
		if err := p.processBatch(batch); err != nil {
			p.logger.WithError(err).Error("Failed to process batch")
		}
	}
}

// processBatch ingests each observation in turn. Transient store conflicts
// that survive the engine's own retry budget are collected and the leftovers
// re-run as a smaller batch, up to the configured attempt limit.
func (p *BatchProcessor) processBatch(batch []*models.Observation) error {
	pending := batch
	var lastErr error

	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying %d deferred observations, attempt %d of %d",
				len(pending), attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		var deferred []*models.Observation
		var ingested, skipped int

		for _, obs := range pending {
			_, err := p.engine.IngestObservation(p.ctx, obs)
			switch {
			case err == nil:
				ingested++
			case errors.Is(err, address.ErrInvalidAddress):
				p.logger.WithFields(logrus.Fields{
					"source":  obs.SourceName,
					"listing": obs.SourceListingID,
				}).WithError(err).Warn("Skipping observation with invalid address")
				skipped++
			case errors.Is(err, engine.ErrBindingConflict):
				// Already persisted for reconciliation by the engine.
				skipped++
			case errors.Is(err, engine.ErrTransientConflict):
				deferred = append(deferred, obs)
				lastErr = err
			default:
				p.logger.WithFields(logrus.Fields{
					"source":  obs.SourceName,
					"listing": obs.SourceListingID,
				}).WithError(err).Error("Failed to ingest observation")
				skipped++
			}
		}

		p.logger.WithFields(logrus.Fields{
			"ingested": ingested,
			"skipped":  skipped,
			"deferred": len(deferred),
		}).Info("Processed observation batch")

		if len(deferred) == 0 {
			return nil
		}
		pending = deferred
	}

	return fmt.Errorf("failed to ingest %d observations after %d attempts: %w",
		len(pending), p.config.BatchProcessing.MaxRetries, lastErr)
}
