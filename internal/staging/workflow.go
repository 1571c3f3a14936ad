// Package staging implements the review workflow that promotes scraped
// products from the staging table into the product catalog.
package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/extractor"
	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/quality"
	"github.com/sykell/product-scraper/internal/service"
)

// DefaultReviewer is recorded when a review names no reviewer.
const DefaultReviewer = "admin"

var (
	ErrNotFound          = errors.New("staging product not found")
	ErrInvalidTransition = errors.New("staging product is already reviewed")
)

// catalogColumns are overwritten when an approved code already exists.
var catalogColumns = []string{
	"product_name", "category", "sub_category", "description", "islamic_structure",
	"annual_rate", "annual_fee", "min_income", "min_credit_score",
	"eligibility_criteria", "key_benefits", "sharia_certified", "active",
	"source_website_id", "source_url", "scraped_at", "data_quality_score",
	"staging_id", "updated_at",
}

// Review carries the reviewer's decision details.
type Review struct {
	Reviewer string
	Notes    string
	// Override allows reviewing a record that is no longer PENDING.
	Override bool
}

func (r Review) reviewer() string {
	if r.Reviewer == "" {
		return DefaultReviewer
	}
	return r.Reviewer
}

// Fields are the editable business fields of a staged product.
type Fields struct {
	ProductCode *string
	db.ProductFields
}

// BulkResult reports the outcome of BulkApprove per id.
type BulkResult struct {
	Approved []uint          `json:"approved"`
	Failed   map[uint]string `json:"failed"`
}

// Stats counts staged products per approval status.
type Stats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

// Workflow reviews staged products.
type Workflow struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWorkflow creates a Workflow over dbConn.
func NewWorkflow(dbConn *gorm.DB, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		db:     dbConn,
		logger: logger.With(zap.String("component", "staging")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns staged products, newest first.
func (w *Workflow) List(ctx context.Context, pendingOnly bool) ([]db.StagingProduct, error) {
	query := w.db.WithContext(ctx).Order("scraped_at desc, id desc")
	if pendingOnly {
		query = query.Where("approval_status = ?", db.ApprovalPending)
	}

	var rows []db.StagingProduct
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list staging products: %w", err)
	}
	return rows, nil
}

// Get returns one staged product.
func (w *Workflow) Get(ctx context.Context, id uint) (*db.StagingProduct, error) {
	return load(w.db.WithContext(ctx), id)
}

// Update replaces the business fields of a staged product whatever its
// status and recomputes its quality score. A nil product code keeps the
// current one.
func (w *Workflow) Update(ctx context.Context, id uint, f Fields) (*db.StagingProduct, error) {
	var row *db.StagingProduct
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = load(forUpdate(tx), id)
		if err != nil {
			return err
		}

		row.ProductFields = f.ProductFields
		if f.ProductCode != nil && *f.ProductCode != "" {
			row.ProductCode = f.ProductCode
		}
		row.DataQualityScore = quality.Score(service.RecordFromStaging(*row))
		return tx.Save(row).Error
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("staging product updated", zap.Uint("id", id), zap.Float64("quality", row.DataQualityScore))
	return row, nil
}

// Approve promotes a PENDING staged product into the catalog. The catalog
// row is upserted by product code and the staging row marked APPROVED in
// the same transaction.
func (w *Workflow) Approve(ctx context.Context, id uint, r Review) (*db.Product, error) {
	var product db.Product
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := load(forUpdate(tx), id)
		if err != nil {
			return err
		}
		if err := checkTransition(row, r); err != nil {
			return err
		}

		now := w.now()
		if row.ProductCode == nil || *row.ProductCode == "" {
			rec := service.RecordFromStaging(*row)
			extractor.EnsureProductCode(&rec, now)
			row.ProductCode = rec.ProductCode
		}

		scrapedAt := row.ScrapedAt
		product = db.Product{
			ProductCode:      *row.ProductCode,
			ProductFields:    row.ProductFields,
			SourceWebsiteID:  row.SourceWebsiteID,
			SourceURL:        row.SourceURL,
			ScrapedAt:        &scrapedAt,
			DataQualityScore: row.DataQualityScore,
			StagingID:        &row.ID,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_code"}},
			DoUpdates: clause.AssignmentColumns(catalogColumns),
		}).Create(&product).Error
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", product.ProductCode, err)
		}
		if err := tx.Where("product_code = ?", product.ProductCode).First(&product).Error; err != nil {
			return fmt.Errorf("reload product %s: %w", product.ProductCode, err)
		}

		return markReviewed(tx, row, db.ApprovalApproved, r, now)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("staging product approved",
		zap.Uint("id", id),
		zap.String("product_code", product.ProductCode),
		zap.String("reviewed_by", r.reviewer()))
	return &product, nil
}

// BulkApprove approves each id in turn. A failure is recorded and the
// remaining ids are still processed.
func (w *Workflow) BulkApprove(ctx context.Context, ids []uint, r Review) BulkResult {
	result := BulkResult{Approved: []uint{}, Failed: map[uint]string{}}
	for _, id := range ids {
		if _, err := w.Approve(ctx, id, r); err != nil {
			w.logger.Warn("bulk approve item failed", zap.Uint("id", id), zap.Error(err))
			result.Failed[id] = err.Error()
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	return result
}

// Reject marks a PENDING staged product REJECTED. The catalog is untouched.
func (w *Workflow) Reject(ctx context.Context, id uint, r Review) (*db.StagingProduct, error) {
	var row *db.StagingProduct
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = load(forUpdate(tx), id)
		if err != nil {
			return err
		}
		if err := checkTransition(row, r); err != nil {
			return err
		}
		return markReviewed(tx, row, db.ApprovalRejected, r, w.now())
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("staging product rejected", zap.Uint("id", id), zap.String("reviewed_by", r.reviewer()))
	return row, nil
}

// Delete permanently removes a staged product.
func (w *Workflow) Delete(ctx context.Context, id uint) error {
	res := w.db.WithContext(ctx).Delete(&db.StagingProduct{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete staging product %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	w.logger.Info("staging product deleted", zap.Uint("id", id))
	return nil
}

// Stats counts staged products per approval status.
func (w *Workflow) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		ApprovalStatus db.ApprovalStatus
		Count          int64
	}
	err := w.db.WithContext(ctx).Model(&db.StagingProduct{}).
		Select("approval_status, count(*) as count").
		Group("approval_status").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("count staging products: %w", err)
	}

	var stats Stats
	for _, r := range rows {
		switch r.ApprovalStatus {
		case db.ApprovalPending:
			stats.Pending = r.Count
		case db.ApprovalApproved:
			stats.Approved = r.Count
		case db.ApprovalRejected:
			stats.Rejected = r.Count
		}
		stats.Total += r.Count
	}
	return stats, nil
}

func load(tx *gorm.DB, id uint) (*db.StagingProduct, error) {
	var row db.StagingProduct
	err := tx.First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load staging product %d: %w", id, err)
	}
	return &row, nil
}

// forUpdate locks the rows read through tx until the transaction ends
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func checkTransition(row *db.StagingProduct, r Review) error {
	if row.ApprovalStatus == db.ApprovalPending || r.Override {
		return nil
	}
	return fmt.Errorf("%w: id %d is %s", ErrInvalidTransition, row.ID, row.ApprovalStatus)
}

// markReviewed records the decision. Without an override the row must
// still be PENDING when written.
func markReviewed(tx *gorm.DB, row *db.StagingProduct, status db.ApprovalStatus, r Review, at time.Time) error {
	row.ApprovalStatus = status
	row.ReviewedBy = model.Ptr(r.reviewer())
	row.ReviewedAt = &at
	row.ReviewNotes = nil
	if r.Notes != "" {
		row.ReviewNotes = model.Ptr(r.Notes)
	}

	query := tx.Model(&db.StagingProduct{}).Where("id = ?", row.ID)
	if !r.Override {
		query = query.Where("approval_status = ?", db.ApprovalPending)
	}
	res := query.Updates(map[string]interface{}{
		"approval_status": row.ApprovalStatus,
		"product_code":    row.ProductCode,
		"reviewed_by":     row.ReviewedBy,
		"reviewed_at":     row.ReviewedAt,
		"review_notes":    row.ReviewNotes,
	})
	if res.Error != nil {
		return fmt.Errorf("mark staging product %d %s: %w", row.ID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d was reviewed concurrently", ErrInvalidTransition, row.ID)
	}
	return nil
}
