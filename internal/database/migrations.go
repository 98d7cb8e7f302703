package database

import (
	"gorm.io/gorm"

	"github.com/codyseavey/cardprice/internal/models"
)

// postgresSchema creates the snapshot table for the postgres backend
const postgresSchema = `
CREATE TABLE IF NOT EXISTS cache_snapshots (
	name       TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigrations brings the sqlite schema up to date
func RunMigrations(db *gorm.DB) error {
	if err := dropEmptySnapshots(db); err != nil {
		return err
	}
	return db.AutoMigrate(&models.CacheSnapshot{})
}

// dropEmptySnapshots removes rows left by interrupted writes before the
// not-null constraint is enforced
func dropEmptySnapshots(db *gorm.DB) error {
	if !db.Migrator().HasTable("cache_snapshots") {
		return nil
	}
	return db.Exec(`DELETE FROM cache_snapshots WHERE payload IS NULL OR length(payload) = 0`).Error
}
