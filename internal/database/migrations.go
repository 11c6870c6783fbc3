package database

import (
	"fmt"

	"gorm.io/gorm"

	"parcelwatch/server/internal/models"
)

// MigrateSchema creates or updates the owned tables: properties, sources,
// history, conflict queue and the run ledger.
func MigrateSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Property{},
		&models.PropertySource{},
		&models.PropertyHistory{},
		&models.BindingConflict{},
		&models.ScrapeRun{},
		&models.ScrapeRunPage{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Covering index for the changes feed, which scans history by field and
	// timestamp across properties.
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_history_field_observed
		ON property_history(field_name, observed_at)
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create history feed index: %w", err)
	}

	return nil
}

// RunMigrations migrates the schema on the wrapped handle.
func (d *Database) RunMigrations() error {
	return MigrateSchema(d.db)
}
