package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"parcelwatch/server/internal/models"
)

// applyDeltas appends history rows for the given deltas and projects them
// onto the property's current-state columns, all inside the caller's write
// transaction. The deltas were computed against the same in-transaction read
// of the property, so they can never be stale relative to current state; the
// history log is still re-validated per field so a projection drift surfaces
// as an invariant violation instead of silently compounding.
func applyDeltas(tx *gorm.DB, logger *logrus.Logger, prop *models.Property, observedAt time.Time, incoming *models.TrackedFields, deltas []models.FieldDelta) (changed, stale []string, err error) {
	updates := map[string]interface{}{}

	for _, delta := range deltas {
		spec := fieldByName(delta.Field)
		if spec == nil {
			return nil, nil, fmt.Errorf("unknown tracked field %q", delta.Field)
		}

		latest, err := latestEntry(tx, prop.ID, spec.name)
		if err != nil {
			return nil, nil, err
		}

		if err := checkChain(prop, spec, latest); err != nil {
			return nil, nil, err
		}

		// Late arrival: the field already has a newer history entry. Current
		// state keeps the newer value; the late row is inserted only when it
		// slots into the chain without breaking it.
		if latest != nil && observedAt.Before(latest.ObservedAt) {
			inserted, err := insertLateEntry(tx, logger, prop.ID, spec.name, observedAt, delta.New)
			if err != nil {
				return nil, nil, err
			}
			if inserted {
				changed = append(changed, spec.name)
			} else {
				stale = append(stale, spec.name)
			}
			continue
		}

		entry := models.PropertyHistory{
			PropertyID:    prop.ID,
			ObservedAt:    observedAt,
			FieldName:     spec.name,
			PreviousValue: delta.Previous,
			NewValue:      delta.New,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, nil, fmt.Errorf("insert history entry: %w", err)
		}

		updates[spec.column] = spec.value(incoming)
		changed = append(changed, spec.name)
	}

	if len(updates) > 0 {
		if err := tx.Model(&models.Property{}).Where("id = ?", prop.ID).Updates(updates).Error; err != nil {
			return nil, nil, fmt.Errorf("update property state: %w", err)
		}
	}

	return changed, stale, nil
}

// checkChain verifies the core consistency law before appending: the
// property's current value for a field must equal the latest history entry's
// new value (both null when the field has never been observed).
func checkChain(prop *models.Property, spec *fieldSpec, latest *models.PropertyHistory) error {
	cur := spec.current(prop)
	switch {
	case latest == nil && cur == nil:
		return nil
	case latest == nil:
		return &InvariantError{PropertyID: prop.ID, Field: spec.name, CurrentValue: cur}
	case cur == nil || *cur != latest.NewValue:
		return &InvariantError{PropertyID: prop.ID, Field: spec.name, CurrentValue: cur, HistoryValue: &latest.NewValue}
	}
	return nil
}

// insertLateEntry handles a delta whose observed_at is older than the
// field's newest history entry. The chain value at the claimed time must not
// already equal the late value (then it is a redelivery no-op), and the
// entry immediately after must have recorded the late value as its previous
// value, otherwise the late data contradicts newer data and is dropped.
func insertLateEntry(tx *gorm.DB, logger *logrus.Logger, propertyID int64, field string, observedAt time.Time, newValue string) (bool, error) {
	before, err := entryAtOrBefore(tx, propertyID, field, observedAt)
	if err != nil {
		return false, err
	}
	if before != nil && before.NewValue == newValue {
		// Already known at that time; nothing to record.
		return false, nil
	}

	var next models.PropertyHistory
	err = tx.Where("property_id = ? AND field_name = ? AND observed_at > ?", propertyID, field, observedAt).
		Order("observed_at ASC, id ASC").First(&next).Error
	if err != nil {
		return false, fmt.Errorf("lookup next history entry: %w", err)
	}

	if next.PreviousValue == nil || *next.PreviousValue != newValue {
		logger.WithFields(logrus.Fields{
			"property_id": propertyID,
			"field":       field,
			"observed_at": observedAt,
		}).Warn("Dropping late observation that contradicts newer history")
		return false, nil
	}

	entry := models.PropertyHistory{
		PropertyID: propertyID,
		ObservedAt: observedAt,
		FieldName:  field,
		NewValue:   newValue,
	}
	if before != nil {
		entry.PreviousValue = &before.NewValue
	}
	if err := tx.Create(&entry).Error; err != nil {
		return false, fmt.Errorf("insert late history entry: %w", err)
	}
	return true, nil
}

func latestEntry(tx *gorm.DB, propertyID int64, field string) (*models.PropertyHistory, error) {
	var entry models.PropertyHistory
	err := tx.Where("property_id = ? AND field_name = ?", propertyID, field).
		Order("observed_at DESC, id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup latest history entry: %w", err)
	}
	return &entry, nil
}

func entryAtOrBefore(tx *gorm.DB, propertyID int64, field string, observedAt time.Time) (*models.PropertyHistory, error) {
	var entry models.PropertyHistory
	err := tx.Where("property_id = ? AND field_name = ? AND observed_at <= ?", propertyID, field, observedAt).
		Order("observed_at DESC, id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup preceding history entry: %w", err)
	}
	return &entry, nil
}
