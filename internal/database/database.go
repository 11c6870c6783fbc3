package database

import (
	"fmt"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm handle for the single SQLite store.
type Database struct {
	db *gorm.DB
}

// NewDatabase opens the SQLite database. Foreign keys are enforced, writers
// take the file lock immediately so concurrent ingest transactions queue on
// the busy timeout instead of failing mid-transaction.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func open(dbPath string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection sidesteps SQLite's multi-writer contention; the
	// busy timeout covers external writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// NewTestDB opens a throwaway database in a temp file with the schema
// migrated, for tests.
func NewTestDB() (*gorm.DB, error) {
	f, err := os.CreateTemp("", "parcelwatch-test-*.db")
	if err != nil {
		return nil, err
	}
	f.Close()

	db, err := open(f.Name())
	if err != nil {
		return nil, err
	}
	if err := MigrateSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

// GetDB returns the underlying gorm handle.
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
