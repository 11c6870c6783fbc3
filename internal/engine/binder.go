package engine

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelwatch/server/internal/models"
)

// bindSource maps a (source, listing id) pair to a property. A pair that is
// already bound to a different property is a conflict and fails loudly;
// silently repointing a binding would corrupt the dedup relation.
// attemptedAddress is the normalized key of the address the observation
// resolved to, carried into the conflict error because the resolved property
// itself rolls back with the transaction.
func bindSource(tx *gorm.DB, propertyID int64, attemptedAddress string, obs *models.Observation) error {
	binding := models.PropertySource{
		PropertyID:      propertyID,
		SourceName:      obs.SourceName,
		SourceListingID: obs.SourceListingID,
		PageURL:         obs.PageURL,
		FirstSeenAt:     obs.ObservedAt,
		LastSeenAt:      obs.ObservedAt,
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_name"}, {Name: "source_listing_id"}},
		DoNothing: true,
	}).Create(&binding)
	if res.Error != nil {
		return fmt.Errorf("insert source binding: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var existing models.PropertySource
	err := tx.Where("source_name = ? AND source_listing_id = ?", obs.SourceName, obs.SourceListingID).
		First(&existing).Error
	if err != nil {
		return fmt.Errorf("lookup source binding after conflict: %w", err)
	}

	if existing.PropertyID != propertyID {
		return &BindingConflictError{
			SourceName:       obs.SourceName,
			SourceListingID:  obs.SourceListingID,
			BoundPropertyID:  existing.PropertyID,
			AttemptedAddress: attemptedAddress,
		}
	}

	updates := map[string]interface{}{"page_url": obs.PageURL}
	if obs.ObservedAt.After(existing.LastSeenAt) {
		updates["last_seen_at"] = obs.ObservedAt
	}
	if obs.ObservedAt.Before(existing.FirstSeenAt) {
		updates["first_seen_at"] = obs.ObservedAt
	}
	if err := tx.Model(&models.PropertySource{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update source binding: %w", err)
	}
	return nil
}

// recordBindingConflict persists a conflict for manual reconciliation.
// Called outside the ingest transaction so the conflict row survives the
// rollback. Open conflicts are deduped on the stable part of the identity,
// (source, listing id, bound property): redeliveries reuse the existing row
// no matter what the attempted observation resolved to in its rolled-back
// transaction.
func recordBindingConflict(db *gorm.DB, conflictErr *BindingConflictError, obs *models.Observation) (models.BindingConflict, error) {
	conflict := models.BindingConflict{
		SourceName:       conflictErr.SourceName,
		SourceListingID:  conflictErr.SourceListingID,
		BoundPropertyID:  conflictErr.BoundPropertyID,
		AttemptedAddress: conflictErr.AttemptedAddress,
		ObservedAt:       obs.ObservedAt,
		RawPayload:       string(obs.RawPayload),
		CreatedAt:        time.Now().UTC(),
	}
	err := db.Where("source_name = ? AND source_listing_id = ? AND bound_property_id = ? AND resolved = ?",
		conflict.SourceName, conflict.SourceListingID, conflict.BoundPropertyID, false).
		FirstOrCreate(&conflict).Error
	if err != nil {
		return conflict, fmt.Errorf("record binding conflict: %w", err)
	}
	return conflict, nil
}
