package database

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"parcelwatch/server/internal/models"
)

// GetProperty returns a property by id, or nil when it does not exist.
func (d *Database) GetProperty(id int64) (*models.Property, error) {
	var prop models.Property
	err := d.db.First(&prop, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &prop, nil
}

// GetPropertyHistory returns the full change log for a property in
// timestamp order.
func (d *Database) GetPropertyHistory(propertyID int64) ([]models.PropertyHistory, error) {
	var entries []models.PropertyHistory
	err := d.db.Where("property_id = ?", propertyID).
		Order("observed_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get property history: %w", err)
	}
	return entries, nil
}

// changedRow is the grouped history scan backing the changes feed.
type changedRow struct {
	PropertyID    int64
	LastChangeAt  time.Time
	ChangedFields string
}

// GetChangedProperties returns properties whose status or list price changed
// since the cutoff, most recent change first. Each property appears once no
// matter how many qualifying history rows it has. Optional filters: state,
// county list and a geographic bounding box over geocoded coordinates (used
// to cut mailing targets to a campaign territory).
func (d *Database) GetChangedProperties(since time.Time, state string, counties []string, bbox *orb.Bound) ([]models.ChangedProperty, error) {
	var rows []changedRow
	err := d.db.Raw(`
		SELECT
			property_id,
			MAX(observed_at) AS last_change_at,
			GROUP_CONCAT(DISTINCT field_name) AS changed_fields
		FROM property_history
		WHERE field_name IN ('status', 'list_price')
		  AND observed_at > ?
		GROUP BY property_id
		ORDER BY last_change_at DESC
	`, since).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan changed properties: %w", err)
	}
	if len(rows) == 0 {
		return []models.ChangedProperty{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PropertyID)
	}

	query := d.db.Where("id IN ?", ids)
	if state != "" {
		query = query.Where("state_abbr = ?", state)
	}
	if len(counties) > 0 {
		query = query.Where("county_name IN ?", counties)
	}
	if bbox != nil {
		query = query.Where(
			"longitude BETWEEN ? AND ? AND latitude BETWEEN ? AND ?",
			bbox.Min.Lon(), bbox.Max.Lon(), bbox.Min.Lat(), bbox.Max.Lat(),
		)
	}

	var props []models.Property
	if err := query.Find(&props).Error; err != nil {
		return nil, fmt.Errorf("failed to load changed properties: %w", err)
	}

	byID := make(map[int64]models.Property, len(props))
	for _, p := range props {
		byID[p.ID] = p
	}

	changed := make([]models.ChangedProperty, 0, len(rows))
	for _, r := range rows {
		prop, ok := byID[r.PropertyID]
		if !ok {
			continue
		}
		reduced, err := d.priceReduced(r.PropertyID)
		if err != nil {
			return nil, err
		}
		changed = append(changed, models.ChangedProperty{
			Property:      prop,
			LastChangeAt:  r.LastChangeAt,
			ChangedFields: r.ChangedFields,
			PriceReduced:  reduced,
		})
	}
	return changed, nil
}

// priceReduced derives the price-reduction signal from the sign of the
// latest list_price delta. There is no stored reduced-price flag; history is
// the single source of truth.
func (d *Database) priceReduced(propertyID int64) (bool, error) {
	var entry models.PropertyHistory
	err := d.db.Where("property_id = ? AND field_name = 'list_price'", propertyID).
		Order("observed_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load latest price entry: %w", err)
	}
	if entry.PreviousValue == nil {
		return false, nil
	}

	prev, err1 := strconv.ParseInt(*entry.PreviousValue, 10, 64)
	curr, err2 := strconv.ParseInt(entry.NewValue, 10, 64)
	if err1 != nil || err2 != nil {
		return false, nil
	}
	return curr < prev, nil
}

// GetCountyStats returns per-county property counts for reporting. A
// property counts as sold once it carries a sold date, active while it is
// listed for sale without one.
func (d *Database) GetCountyStats() ([]models.CountyStats, error) {
	var stats []models.CountyStats
	err := d.db.Raw(`
		SELECT
			county_name,
			COUNT(*) AS property_count,
			SUM(CASE WHEN sold_date IS NULL AND status = 'for_sale' THEN 1 ELSE 0 END) AS active_count,
			SUM(CASE WHEN sold_date IS NOT NULL THEN 1 ELSE 0 END) AS sold_count
		FROM properties
		WHERE county_name IS NOT NULL
		GROUP BY county_name
		ORDER BY property_count DESC
	`).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get county stats: %w", err)
	}
	return stats, nil
}

// GetOpenConflicts returns unresolved binding conflicts, oldest first, for
// the operator reconciliation queue.
func (d *Database) GetOpenConflicts() ([]models.BindingConflict, error) {
	var conflicts []models.BindingConflict
	err := d.db.Where("resolved = ?", false).
		Order("created_at ASC").
		Find(&conflicts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get binding conflicts: %w", err)
	}
	return conflicts, nil
}

// ResolveConflict marks a binding conflict as manually reconciled.
func (d *Database) ResolveConflict(id int64) error {
	res := d.db.Model(&models.BindingConflict{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return fmt.Errorf("failed to resolve conflict: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("binding conflict not found: %d", id)
	}
	return nil
}
