package api

import (
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/middleware"
)

// Deps are the collaborators served by the router
type Deps struct {
	DB      *gorm.DB
	Scraper Scraper
	Configs ConfigStore
	Staging Reviewer
	Auth    *AuthConfig
	Logger  *zap.Logger
	// Authenticate overrides the authentication middleware when set.
	Authenticate gin.HandlerFunc
}

var registerTagNames sync.Once

// NewRouter builds the gin engine with every route registered
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Report validation failures by json field name
	registerTagNames.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name == "" {
					name = f.Tag.Get("form")
				}
				return name
			})
		}
	})

	r := gin.New()

	// Add middleware
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "product-scraper",
		})
	})

	authenticate := deps.Authenticate
	if authenticate == nil {
		switch {
		case deps.Auth == nil:
			authenticate = func(c *gin.Context) { c.Next() }
		case deps.Auth.Disabled:
			logger.Warn("authentication disabled, API is open")
			authenticate = middleware.OptionalAuth(deps.Auth.JWTSecret, logger)
		default:
			authenticate = middleware.JWTRequired(deps.Auth.JWTSecret, logger)
		}
	}

	// Authentication endpoint
	if deps.DB != nil && deps.Auth != nil {
		r.POST("/auth/login", LoginHandler(deps.DB, deps.Auth, logger))
	}

	// Protected routes
	apiGroup := r.Group("/api")
	apiGroup.Use(authenticate)

	scraperGroup := apiGroup.Group("/scraper")
	{
		scraperGroup.POST("/trigger/:websiteId", TriggerScrapeHandler(deps.Scraper, logger))
		scraperGroup.POST("/trigger", TriggerScrapeBodyHandler(deps.Scraper, logger))
		scraperGroup.GET("/status/:jobId", JobStatusHandler(deps.Scraper))
		scraperGroup.POST("/jobs/:jobId/cancel", CancelJobHandler(deps.Scraper))
		scraperGroup.GET("/sources", ListSourcesHandler(deps.Scraper))
		scraperGroup.GET("/history/:websiteId", HistoryHandler(deps.Scraper))
		scraperGroup.GET("/configs", ListConfigsHandler(deps.Configs))
		scraperGroup.GET("/configs/:websiteId", GetConfigHandler(deps.Configs))
		scraperGroup.POST("/configs/reload", ReloadConfigsHandler(deps.Configs, logger))
	}

	stagingGroup := apiGroup.Group("/admin/staging")
	{
		stagingGroup.GET("", ListStagingHandler(deps.Staging))
		stagingGroup.GET("/stats", StagingStatsHandler(deps.Staging))
		stagingGroup.POST("/bulk-approve", BulkApproveHandler(deps.Staging))
		stagingGroup.GET("/:id", GetStagingHandler(deps.Staging))
		stagingGroup.PUT("/:id", UpdateStagingHandler(deps.Staging))
		stagingGroup.POST("/:id/approve", ApproveStagingHandler(deps.Staging))
		stagingGroup.POST("/:id/reject", RejectStagingHandler(deps.Staging))
		stagingGroup.DELETE("/:id", DeleteStagingHandler(deps.Staging))
	}

	return r
}
