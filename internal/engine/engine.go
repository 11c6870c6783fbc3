// Package engine resolves scraped observations to canonical properties and
// tracks field-level changes in an append-only history log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/address"
	"parcelwatch/server/internal/models"
)

// Alerter receives operator-facing events the engine cannot resolve itself.
type Alerter interface {
	BindingConflict(conflict models.BindingConflict)
	InvariantViolation(propertyID int64, detail string)
}

// Engine is the property identity and change-tracking core. It is a
// synchronous request/response component: one call per observation, one
// transaction per call, no shared in-process state between calls.
type Engine struct {
	db         *gorm.DB
	logger     *logrus.Logger
	maxRetries int
	backoff    time.Duration
	alerter    Alerter
}

// NewEngine creates the ingestion engine.
func NewEngine(db *gorm.DB, cfg *config.Config, logger *logrus.Logger) *Engine {
	return &Engine{
		db:         db,
		logger:     logger,
		maxRetries: cfg.Ingest.MaxRetries,
		backoff:    time.Duration(cfg.Ingest.RetryBackoffMS) * time.Millisecond,
	}
}

// SetAlerter wires the operator alert channel. Optional.
func (e *Engine) SetAlerter(a Alerter) {
	e.alerter = a
}

// IngestObservation is the engine's single entry point: normalize the
// address, resolve or create the property, bind the source listing, detect
// changes and apply them atomically. Transient store conflicts are retried
// with exponential backoff up to the configured budget; every other failure
// is surfaced to the caller. Redelivering an identical observation is always
// safe.
func (e *Engine) IngestObservation(ctx context.Context, obs *models.Observation) (models.IngestResult, error) {
	var result models.IngestResult

	norm, err := address.Normalize(obs.Address.Line, obs.Address.City, obs.Address.State, obs.Address.PostalCode, obs.Address.County)
	if err != nil {
		return result, fmt.Errorf("observation from %s/%s: %w", obs.SourceName, obs.SourceListingID, err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			e.logger.WithFields(logrus.Fields{
				"source":  obs.SourceName,
				"listing": obs.SourceListingID,
				"attempt": attempt,
			}).Info("Retrying observation after store conflict")

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(e.backoff << (attempt - 1)):
			}
		}

		result, lastErr = e.ingestOnce(ctx, norm, obs)
		if lastErr == nil {
			return result, nil
		}
		if !isTransient(lastErr) {
			return result, e.surface(lastErr, obs)
		}
	}

	return result, fmt.Errorf("observation from %s/%s after %d attempts: %w",
		obs.SourceName, obs.SourceListingID, e.maxRetries+1, ErrTransientConflict)
}

// ingestOnce runs the whole resolve/bind/detect/apply flow in one immediate
// transaction. The fresh in-transaction read of the property is what every
// delta is computed against, so concurrent writers serialize on the store
// rather than on any application lock.
func (e *Engine) ingestOnce(ctx context.Context, norm address.Normalized, obs *models.Observation) (models.IngestResult, error) {
	var result models.IngestResult

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prop, created, err := resolveOrCreate(tx, norm, obs.ObservedAt)
		if err != nil {
			return err
		}
		result.PropertyID = prop.ID
		result.Created = created

		if err := bindSource(tx, prop.ID, norm.Key(), obs); err != nil {
			return err
		}

		deltas := Detect(prop, &obs.Fields)
		if len(deltas) == 0 {
			return nil
		}

		changed, stale, err := applyDeltas(tx, e.logger, prop, obs.ObservedAt, &obs.Fields, deltas)
		if err != nil {
			return err
		}
		result.FieldsChanged = changed
		result.StaleFields = stale
		return nil
	})
	if err != nil {
		return models.IngestResult{PropertyID: result.PropertyID, Created: false}, err
	}
	return result, nil
}

// surface handles the non-retryable failure modes: binding conflicts are
// persisted to the reconciliation queue and alerted, invariant violations
// are alerted. The original error is returned either way.
func (e *Engine) surface(err error, obs *models.Observation) error {
	var bindErr *BindingConflictError
	if errors.As(err, &bindErr) {
		conflict, recordErr := recordBindingConflict(e.db, bindErr, obs)
		if recordErr != nil {
			e.logger.WithError(recordErr).Error("Failed to persist binding conflict")
		} else if e.alerter != nil {
			e.alerter.BindingConflict(conflict)
		}
		e.logger.WithFields(logrus.Fields{
			"source":    bindErr.SourceName,
			"listing":   bindErr.SourceListingID,
			"bound":     bindErr.BoundPropertyID,
			"attempted": bindErr.AttemptedAddress,
		}).Warn("Binding conflict held for manual reconciliation")
		return err
	}

	var invErr *InvariantError
	if errors.As(err, &invErr) {
		e.logger.WithFields(logrus.Fields{
			"property_id": invErr.PropertyID,
			"field":       invErr.Field,
		}).Error("History invariant violation, halting ingestion for property")
		if e.alerter != nil {
			e.alerter.InvariantViolation(invErr.PropertyID, invErr.Error())
		}
		return err
	}

	return err
}
