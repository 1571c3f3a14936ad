package db

import (
	"gorm.io/gorm"
)

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &ScrapeSource{}, &ScrapeLog{}, &StagingProduct{}, &Product{})
}
