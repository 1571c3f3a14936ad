package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
)

// MaxHistory bounds the number of job logs returned by GetScrapeHistory
const MaxHistory = 50

// JobCounts are the aggregate counters of a finished job
type JobCounts struct {
	Found   int
	Saved   int
	Updated int
	Skipped int
}

// Status is the terminal status of a job that completed without error.
func (c JobCounts) Status() db.ScrapeStatus {
	if c.Skipped > 0 {
		return db.ScrapePartial
	}
	return db.ScrapeSuccess
}

// JobStatus is a job log joined with its source
type JobStatus struct {
	db.ScrapeLog
	WebsiteID   string `json:"website_id"`
	WebsiteName string `json:"website_name"`
}

// CreateScrapeLog inserts the RUNNING log row of a new job
func CreateScrapeLog(ctx context.Context, dbConn *gorm.DB, jobID string, sourceID uint, startedAt time.Time) (*db.ScrapeLog, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID cannot be empty")
	}

	entry := db.ScrapeLog{
		JobID:     jobID,
		SourceID:  sourceID,
		Status:    db.ScrapeRunning,
		StartedAt: startedAt,
	}
	if err := dbConn.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// CompleteScrapeLog finalizes a RUNNING job. A non-empty errMsg marks the
// job FAILED with zero counts. Finalizing an already finished job is a
// no-op.
func CompleteScrapeLog(ctx context.Context, dbConn *gorm.DB, jobID string, counts JobCounts, errMsg string, completedAt time.Time) error {
	updates := map[string]interface{}{
		"status":           counts.Status(),
		"products_found":   counts.Found,
		"products_saved":   counts.Saved,
		"products_updated": counts.Updated,
		"products_skipped": counts.Skipped,
		"error_message":    nil,
		"completed_at":     completedAt,
	}
	if errMsg != "" {
		updates["status"] = db.ScrapeFailed
		updates["products_found"] = 0
		updates["products_saved"] = 0
		updates["products_updated"] = 0
		updates["products_skipped"] = 0
		updates["error_message"] = errMsg
	}

	return dbConn.WithContext(ctx).Model(&db.ScrapeLog{}).
		Where("job_id = ? AND status = ?", jobID, db.ScrapeRunning).
		Updates(updates).Error
}

// InterruptedJobMessage is recorded on jobs failed by FailStaleScrapeLogs
const InterruptedJobMessage = "interrupted by service restart"

// FailStaleScrapeLogs marks RUNNING jobs started before cutoff as FAILED and
// returns how many were changed. Jobs started after cutoff may still be
// owned by a live worker and are left alone.
func FailStaleScrapeLogs(ctx context.Context, dbConn *gorm.DB, cutoff, now time.Time) (int64, error) {
	res := dbConn.WithContext(ctx).Model(&db.ScrapeLog{}).
		Where("status = ? AND started_at < ?", db.ScrapeRunning, cutoff).
		Updates(map[string]interface{}{
			"status":           db.ScrapeFailed,
			"products_found":   0,
			"products_saved":   0,
			"products_updated": 0,
			"products_skipped": 0,
			"error_message":    InterruptedJobMessage,
			"completed_at":     now,
		})
	return res.RowsAffected, res.Error
}

// GetScrapeLog retrieves a job log and its source by job id
func GetScrapeLog(ctx context.Context, dbConn *gorm.DB, jobID string) (*JobStatus, error) {
	var entry db.ScrapeLog
	err := dbConn.WithContext(ctx).Preload("Source").Where("job_id = ?", jobID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &JobStatus{
		ScrapeLog:   entry,
		WebsiteID:   entry.Source.WebsiteID,
		WebsiteName: entry.Source.WebsiteName,
	}, nil
}

// GetScrapeHistory returns the most recent job logs of a website, newest first
func GetScrapeHistory(ctx context.Context, dbConn *gorm.DB, websiteID string, limit int) ([]db.ScrapeLog, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}

	var logs []db.ScrapeLog
	err := dbConn.WithContext(ctx).
		Joins("JOIN scrape_sources ON scrape_sources.id = scrape_logs.source_id").
		Where("scrape_sources.website_id = ?", websiteID).
		Order("scrape_logs.started_at desc, scrape_logs.id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
