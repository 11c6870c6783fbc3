package database

import (
	"fmt"

	"parcelwatch/server/internal/geocoding"
	"parcelwatch/server/internal/models"
)

const geocodeBatchSize = 50

// BackfillCoordinates geocodes properties that have no coordinates yet.
// Failures mark the property as attempted so a bad address is not retried on
// every pass. The geocode columns are not tracked fields, so writing them
// here does not touch the history projection.
func (d *Database) BackfillCoordinates(geocoder *geocoding.Geocoder) error {
	defer geocoder.SaveCache()

	var processed, failed int
	for {
		var batch []models.Property
		err := d.db.Where("latitude IS NULL AND geocode_attempted = ? AND postal_code != ''", false).
			Limit(geocodeBatchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("failed to query properties for geocoding: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, prop := range batch {
			state := ""
			if prop.StateAbbr != nil {
				state = *prop.StateAbbr
			}

			updates := map[string]interface{}{"geocode_attempted": true}
			point, err := geocoder.GeocodeAddress(prop.AddressLine, prop.City, state, prop.PostalCode)
			if err != nil {
				failed++
			} else {
				updates["latitude"] = point.Lat()
				updates["longitude"] = point.Lon()
				processed++
			}

			if err := d.db.Model(&models.Property{}).Where("id = ?", prop.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update coordinates: %w", err)
			}
		}
	}

	if processed+failed > 0 {
		fmt.Printf("Geocoding completed: %d resolved, %d failed\n", processed, failed)
	}
	return nil
}
