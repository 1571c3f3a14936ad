package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/apperr"
	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/scraper"
	"github.com/sykell/product-scraper/internal/service"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

// Scraper starts and inspects scrape jobs
type Scraper interface {
	Trigger(ctx context.Context, websiteID string) (string, error)
	Cancel(jobID string) error
	Status(ctx context.Context, jobID string) (*service.JobStatus, error)
	History(ctx context.Context, websiteID string, limit int) ([]db.ScrapeLog, error)
	Sources(ctx context.Context) ([]db.ScrapeSource, error)
}

// ConfigStore exposes the loaded site configurations
type ConfigStore interface {
	Get(websiteID string) (*siteconfig.SiteConfig, error)
	All() []*siteconfig.SiteConfig
	Reload() (int, error)
}

// TriggerRequest represents the body form of a trigger request
type TriggerRequest struct {
	WebsiteID string `json:"website_id" binding:"required,max=100"`
}

// TriggerResponse is returned once a job is queued
type TriggerResponse struct {
	JobID     string `json:"job_id"`
	WebsiteID string `json:"website_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// HistoryQuery holds the history query parameters
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=0"`
}

// TriggerScrapeHandler queues a scrape for the website in the path
func TriggerScrapeHandler(scr Scraper, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		trigger(c, scr, logger, strings.TrimSpace(c.Param("websiteId")))
	}
}

// TriggerScrapeBodyHandler queues a scrape for the website in the body
func TriggerScrapeBodyHandler(scr Scraper, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}
		trigger(c, scr, logger, strings.TrimSpace(req.WebsiteID))
	}
}

func trigger(c *gin.Context, scr Scraper, logger *zap.Logger, websiteID string) {
	if websiteID == "" {
		respondError(c, apperr.Validation("Website id cannot be empty", apperr.FieldError{Field: "website_id", Message: "is required"}))
		return
	}

	jobID, err := scr.Trigger(c.Request.Context(), websiteID)
	if err != nil {
		logger.Warn("trigger scrape failed", zap.String("website_id", websiteID), zap.String("job_id", jobID), zap.Error(err))
		// The job was recorded as FAILED
		if jobID != "" {
			respondErrorWith(c, err, gin.H{"job_id": jobID, "website_id": websiteID})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, TriggerResponse{
		JobID:     jobID,
		WebsiteID: websiteID,
		Status:    "STARTED",
		Message:   "Scraping job started",
	})
}

// JobStatusHandler returns a job's log, or an empty object for unknown jobs
func JobStatusHandler(scr Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := scr.Status(c.Request.Context(), c.Param("jobId"))
		if errors.Is(err, scraper.ErrJobNotFound) {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// CancelJobHandler cancels a queued or running job
func CancelJobHandler(scr Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if err := scr.Cancel(jobID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id":  jobID,
			"message": "Cancellation requested",
		})
	}
}

// ListSourcesHandler lists every scrape source
func ListSourcesHandler(scr Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := scr.Sources(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sources)
	}
}

// HistoryHandler returns the latest jobs of a website
func HistoryHandler(scr Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q HistoryQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		logs, err := scr.History(c.Request.Context(), c.Param("websiteId"), q.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

// ListConfigsHandler lists the loaded site configurations
func ListConfigsHandler(configs ConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, configs.All())
	}
}

// GetConfigHandler returns one site configuration
func GetConfigHandler(configs ConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := configs.Get(c.Param("websiteId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// ReloadConfigsHandler reloads the site configurations from disk
func ReloadConfigsHandler(configs ConfigStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := configs.Reload()
		if err != nil {
			logger.Error("reload scraper configs", zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Configurations reloaded",
			"count":   count,
		})
	}
}
