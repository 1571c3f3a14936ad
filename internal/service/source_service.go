package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

// SyncSources upserts one scrape source per loaded configuration and
// deactivates sources whose configuration is gone. Website ids are never
// renamed or deleted so existing job logs keep their reference.
func SyncSources(ctx context.Context, dbConn *gorm.DB, cfgs []*siteconfig.SiteConfig) error {
	return dbConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(cfgs))
		for _, cfg := range cfgs {
			if err := upsertSource(tx, cfg); err != nil {
				return err
			}
			ids = append(ids, cfg.WebsiteID)
		}

		query := tx.Model(&db.ScrapeSource{})
		if len(ids) > 0 {
			query = query.Where("website_id NOT IN ?", ids)
		} else {
			query = query.Where("1 = 1")
		}
		return query.Update("active", false).Error
	})
}

// EnsureSource returns the source row for cfg, creating it when missing
func EnsureSource(ctx context.Context, dbConn *gorm.DB, cfg *siteconfig.SiteConfig) (*db.ScrapeSource, error) {
	source, err := GetSourceByWebsiteID(ctx, dbConn, cfg.WebsiteID)
	if err == nil {
		return source, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err := upsertSource(dbConn.WithContext(ctx), cfg); err != nil {
		return nil, err
	}
	return GetSourceByWebsiteID(ctx, dbConn, cfg.WebsiteID)
}

func upsertSource(tx *gorm.DB, cfg *siteconfig.SiteConfig) error {
	source := db.ScrapeSource{
		WebsiteID:   cfg.WebsiteID,
		WebsiteName: cfg.WebsiteName,
		BaseURL:     cfg.BaseURL,
		ConfigPath:  cfg.Path,
		Active:      true,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "website_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"website_name", "base_url", "config_path", "active", "updated_at"}),
	}).Create(&source).Error
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", cfg.WebsiteID, err)
	}
	return nil
}

// GetSourceByWebsiteID retrieves a source by website id
func GetSourceByWebsiteID(ctx context.Context, dbConn *gorm.DB, websiteID string) (*db.ScrapeSource, error) {
	var source db.ScrapeSource
	err := dbConn.WithContext(ctx).Where("website_id = ?", websiteID).First(&source).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// ListSources returns every scrape source ordered by name
func ListSources(ctx context.Context, dbConn *gorm.DB) ([]db.ScrapeSource, error) {
	var sources []db.ScrapeSource
	err := dbConn.WithContext(ctx).Order("website_name asc, website_id asc").Find(&sources).Error
	return sources, err
}

// TouchLastScraped records when a website was last scraped successfully
func TouchLastScraped(ctx context.Context, dbConn *gorm.DB, websiteID string, at time.Time) error {
	return dbConn.WithContext(ctx).Model(&db.ScrapeSource{}).
		Where("website_id = ?", websiteID).
		Update("last_scraped_at", at).Error
}
