package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/sykell/product-scraper/internal/apperr"
	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/middleware"
	"github.com/sykell/product-scraper/internal/staging"
)

// Reviewer is the staging review workflow
type Reviewer interface {
	List(ctx context.Context, pendingOnly bool) ([]db.StagingProduct, error)
	Get(ctx context.Context, id uint) (*db.StagingProduct, error)
	Update(ctx context.Context, id uint, f staging.Fields) (*db.StagingProduct, error)
	Approve(ctx context.Context, id uint, r staging.Review) (*db.Product, error)
	BulkApprove(ctx context.Context, ids []uint, r staging.Review) staging.BulkResult
	Reject(ctx context.Context, id uint, r staging.Review) (*db.StagingProduct, error)
	Delete(ctx context.Context, id uint) error
	Stats(ctx context.Context) (staging.Stats, error)
}

// ApprovalInfo is the review state of a staged product
type ApprovalInfo struct {
	Status      db.ApprovalStatus `json:"status"`
	ReviewedBy  *string           `json:"reviewed_by"`
	ReviewedAt  *time.Time        `json:"reviewed_at"`
	ReviewNotes *string           `json:"review_notes"`
}

// AIInfo is the enrichment outcome of a staged product
type AIInfo struct {
	SuggestedCategory *string           `json:"suggested_category"`
	Confidence        *float64          `json:"confidence"`
	Categorization    datatypes.JSONMap `json:"categorization,omitempty"`
}

// StagingProductResponse represents a staged product
type StagingProductResponse struct {
	ID          uint    `json:"id"`
	ProductCode *string `json:"product_code"`
	db.ProductFields
	SourceWebsiteID  string       `json:"source_website_id"`
	SourceURL        string       `json:"source_url"`
	ScrapedAt        time.Time    `json:"scraped_at"`
	DataQualityScore float64      `json:"data_quality_score"`
	ScrapeLogID      *uint        `json:"scrape_log_id"`
	Approval         ApprovalInfo `json:"approval"`
	AI               *AIInfo      `json:"ai,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// UpdateStagingRequest replaces the business fields of a staged product
type UpdateStagingRequest struct {
	ProductCode         *string        `json:"product_code" binding:"omitempty,max=100"`
	ProductName         *string        `json:"product_name" binding:"omitempty,max=255"`
	Category            *string        `json:"category" binding:"omitempty,max=100"`
	SubCategory         *string        `json:"sub_category" binding:"omitempty,max=100"`
	Description         *string        `json:"description"`
	IslamicStructure    *string        `json:"islamic_structure" binding:"omitempty,max=100"`
	AnnualRate          *float64       `json:"annual_rate" binding:"omitempty,gte=0"`
	AnnualFee           *float64       `json:"annual_fee" binding:"omitempty,gte=0"`
	MinIncome           *float64       `json:"min_income" binding:"omitempty,gte=0"`
	MinCreditScore      *int           `json:"min_credit_score" binding:"omitempty,gte=0"`
	EligibilityCriteria map[string]any `json:"eligibility_criteria"`
	KeyBenefits         []string       `json:"key_benefits"`
	ShariaCertified     *bool          `json:"sharia_certified"`
	Active              *bool          `json:"active"`
}

// ReviewRequest carries the optional review details of approve and reject
type ReviewRequest struct {
	ReviewedBy  string `json:"reviewed_by" binding:"max=100"`
	ReviewNotes string `json:"review_notes" binding:"max=2000"`
	Override    bool   `json:"override"`
}

// BulkApproveRequest represents a bulk approval request
type BulkApproveRequest struct {
	ProductIDs  []uint `json:"product_ids" binding:"required,min=1,max=500"`
	ReviewedBy  string `json:"reviewed_by" binding:"max=100"`
	ReviewNotes string `json:"review_notes" binding:"max=2000"`
}

// StagingListQuery holds the list query parameters
type StagingListQuery struct {
	PendingOnly bool `form:"pending_only"`
}

// NewStagingProductResponse converts a staging row into its API shape
func NewStagingProductResponse(row db.StagingProduct) StagingProductResponse {
	resp := StagingProductResponse{
		ID:               row.ID,
		ProductCode:      row.ProductCode,
		ProductFields:    row.ProductFields,
		SourceWebsiteID:  row.SourceWebsiteID,
		SourceURL:        row.SourceURL,
		ScrapedAt:        row.ScrapedAt,
		DataQualityScore: row.DataQualityScore,
		ScrapeLogID:      row.ScrapeLogID,
		Approval: ApprovalInfo{
			Status:      row.ApprovalStatus,
			ReviewedBy:  row.ReviewedBy,
			ReviewedAt:  row.ReviewedAt,
			ReviewNotes: row.ReviewNotes,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.AISuggestedCategory != nil || row.AIConfidence != nil || len(row.AICategorizationJSON) > 0 {
		resp.AI = &AIInfo{
			SuggestedCategory: row.AISuggestedCategory,
			Confidence:        row.AIConfidence,
			Categorization:    row.AICategorizationJSON,
		}
	}
	return resp
}

func (r UpdateStagingRequest) fields() staging.Fields {
	f := staging.Fields{
		ProductCode: r.ProductCode,
		ProductFields: db.ProductFields{
			ProductName:      r.ProductName,
			Category:         r.Category,
			SubCategory:      r.SubCategory,
			Description:      r.Description,
			IslamicStructure: r.IslamicStructure,
			AnnualRate:       r.AnnualRate,
			AnnualFee:        r.AnnualFee,
			MinIncome:        r.MinIncome,
			MinCreditScore:   r.MinCreditScore,
			ShariaCertified:  r.ShariaCertified,
			Active:           r.Active,
		},
	}
	if r.EligibilityCriteria != nil {
		f.EligibilityCriteria = datatypes.JSONMap(r.EligibilityCriteria)
	}
	if r.KeyBenefits != nil {
		f.KeyBenefits = datatypes.JSONSlice[string](r.KeyBenefits)
	}
	return f
}

// review builds the workflow review, defaulting the reviewer to the
// authenticated user
func review(c *gin.Context, reviewedBy, notes string, override bool) staging.Review {
	if reviewedBy == "" {
		if user, ok := middleware.GetUserFromContext(c); ok {
			reviewedBy = user.Username
		}
	}
	return staging.Review{Reviewer: reviewedBy, Notes: notes, Override: override}
}

// bindOptionalJSON binds the body when there is one
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ListStagingHandler lists staged products, newest first
func ListStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q StagingListQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		rows, err := rev.List(c.Request.Context(), q.PendingOnly)
		if err != nil {
			respondError(c, err)
			return
		}

		resp := make([]StagingProductResponse, 0, len(rows))
		for _, row := range rows {
			resp = append(resp, NewStagingProductResponse(row))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// StagingStatsHandler returns the counts per approval status
func StagingStatsHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := rev.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// GetStagingHandler returns one staged product
func GetStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		row, err := rev.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewStagingProductResponse(*row))
	}
}

// UpdateStagingHandler replaces the business fields of a staged product
func UpdateStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		var req UpdateStagingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		row, err := rev.Update(c.Request.Context(), id, req.fields())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewStagingProductResponse(*row))
	}
}

// ApproveStagingHandler promotes a staged product into the catalog
func ApproveStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		product, err := rev.Approve(c.Request.Context(), id, review(c, req.ReviewedBy, req.ReviewNotes, req.Override))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Product approved",
			"product": product,
		})
	}
}

// BulkApproveHandler approves several staged products
func BulkApproveHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		result := rev.BulkApprove(c.Request.Context(), req.ProductIDs, review(c, req.ReviewedBy, req.ReviewNotes, false))
		c.JSON(http.StatusOK, gin.H{
			"approved":       result.Approved,
			"failed":         result.Failed,
			"approved_count": len(result.Approved),
			"failed_count":   len(result.Failed),
		})
	}
}

// RejectStagingHandler rejects a staged product
func RejectStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		row, err := rev.Reject(c.Request.Context(), id, review(c, req.ReviewedBy, req.ReviewNotes, req.Override))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewStagingProductResponse(*row))
	}
}

// DeleteStagingHandler permanently removes a staged product
func DeleteStagingHandler(rev Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		if err := rev.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Staging product deleted"})
	}
}
