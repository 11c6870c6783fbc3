package engine

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelwatch/server/internal/address"
	"parcelwatch/server/internal/models"
)

// resolveOrCreate finds the canonical property for a normalized address key,
// creating it on first sighting. Creation races are settled by the unique
// identity index, not by pre-checking: the losing insert falls back to a
// lookup, so created is true only for the winning insert.
func resolveOrCreate(tx *gorm.DB, norm address.Normalized, observedAt time.Time) (*models.Property, bool, error) {
	prop := models.Property{
		AddressLine: norm.Line,
		City:        norm.City,
		PostalCode:  norm.PostalCode,
		DisplayLine: norm.DisplayLine,
		FirstSeenAt: observedAt,
		LastSeenAt:  observedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if norm.Unit != "" {
		prop.Unit = &norm.Unit
	}
	if norm.State != "" {
		prop.StateAbbr = &norm.State
	}
	if norm.County != "" {
		prop.CountyName = &norm.County
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address_line"}, {Name: "city"}, {Name: "postal_code"}},
		DoNothing: true,
	}).Create(&prop)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert property: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &prop, true, nil
	}

	// Lost the insert: the property already exists, fetch it and merge the
	// seen timestamps. Observations can arrive out of order, so the merge is
	// MAX/MIN rather than last-write-wins.
	var existing models.Property
	err := tx.Where("address_line = ? AND city = ? AND postal_code = ?", norm.Line, norm.City, norm.PostalCode).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("lookup property after conflict: %w", err)
	}

	updates := map[string]interface{}{}
	if observedAt.After(existing.LastSeenAt) {
		updates["last_seen_at"] = observedAt
		existing.LastSeenAt = observedAt
	}
	if observedAt.Before(existing.FirstSeenAt) {
		updates["first_seen_at"] = observedAt
		existing.FirstSeenAt = observedAt
	}
	if len(updates) > 0 {
		if err := tx.Model(&models.Property{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("merge seen timestamps: %w", err)
		}
	}

	return &existing, false, nil
}
