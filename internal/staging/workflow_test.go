package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/db/dbtest"
	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/service"
)

func stage(t *testing.T, conn *gorm.DB, path, code, name string) *db.StagingProduct {
	t.Helper()
	rec := model.ExtractedRecord{
		SourceWebsiteID: "alpha",
		SourceURL:       "https://alpha.example" + path,
		ProductName:     model.Ptr(name),
		Category:        model.Ptr("CREDIT_CARD"),
		KeyBenefits:     []string{"Cashback"},
	}
	if code != "" {
		rec.ProductCode = model.Ptr(code)
	}
	row, _, err := service.SaveStagingProduct(context.Background(), conn, rec, nil, time.Now().UTC())
	require.NoError(t, err)
	return row
}

func countProducts(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&db.Product{}).Count(&n).Error)
	return n
}

func TestApprove_PromotesToCatalog(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	product, err := w.Approve(ctx, row.ID, Review{Reviewer: "maria", Notes: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, "GOLD-1", product.ProductCode)
	assert.Equal(t, "Gold Card", *product.ProductName)
	assert.Equal(t, []string{"Cashback"}, []string(product.KeyBenefits))
	require.NotNil(t, product.StagingID)
	assert.Equal(t, row.ID, *product.StagingID)

	got, err := w.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalApproved, got.ApprovalStatus)
	assert.Equal(t, "maria", *got.ReviewedBy)
	assert.Equal(t, "looks good", *got.ReviewNotes)
	assert.NotNil(t, got.ReviewedAt)
}

func TestApprove_ExistingCodeOverwritesSingleRow(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)

	first := stage(t, conn, "/v1", "SAME", "Old Name")
	second := stage(t, conn, "/v2", "SAME", "New Name")

	_, err := w.Approve(ctx, first.ID, Review{})
	require.NoError(t, err)
	product, err := w.Approve(ctx, second.ID, Review{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), countProducts(t, conn))
	assert.Equal(t, "New Name", *product.ProductName)
	assert.Equal(t, "https://alpha.example/v2", product.SourceURL)
	assert.Equal(t, second.ID, *product.StagingID)

	var stored db.Product
	require.NoError(t, conn.Where("product_code = ?", "SAME").First(&stored).Error)
	assert.Equal(t, "New Name", *stored.ProductName)
}

func TestApprove_TerminalGuard(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	_, err := w.Approve(ctx, row.ID, Review{})
	require.NoError(t, err)

	_, err = w.Approve(ctx, row.ID, Review{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = w.Reject(ctx, row.ID, Review{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rejected, err := w.Reject(ctx, row.ID, Review{Reviewer: "lead", Override: true})
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, "lead", *rejected.ReviewedBy)

	// the catalog keeps the row approved earlier
	assert.Equal(t, int64(1), countProducts(t, conn))

	_, err = w.Approve(ctx, 999, Review{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApprove_IsAtomic(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("test:fail_staging", func(tx *gorm.DB) {
		if tx.Statement.Table == "staging_products" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := w.Approve(ctx, row.ID, Review{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Zero(t, countProducts(t, conn))
	got, err := w.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalPending, got.ApprovalStatus)
}

func TestApprove_LosesToConcurrentReview(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	// Another reviewer rejects the row after it was read as PENDING
	require.NoError(t, conn.Callback().Create().Before("gorm:create").Register("test:concurrent_reject", func(tx *gorm.DB) {
		if tx.Statement.Table != "products" {
			return
		}
		err := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"UPDATE staging_products SET approval_status = ?, reviewed_by = ? WHERE id = ?",
			db.ApprovalRejected, "other", row.ID).Error
		_ = tx.AddError(err)
	}))

	_, err := w.Approve(ctx, row.ID, Review{Reviewer: "maria"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, countProducts(t, conn))
}

func TestMarkReviewed_RequiresPendingUnlessOverride(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	stale := *row
	_, err := w.Approve(ctx, row.ID, Review{Reviewer: "maria"})
	require.NoError(t, err)

	err = markReviewed(conn, &stale, db.ApprovalRejected, Review{Reviewer: "late"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := w.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalApproved, got.ApprovalStatus)
	assert.Equal(t, "maria", *got.ReviewedBy)

	stale = *row
	require.NoError(t, markReviewed(conn, &stale, db.ApprovalRejected, Review{Reviewer: "lead", Override: true}, time.Now()))
	got, err = w.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalRejected, got.ApprovalStatus)
}

func TestRescrape_KeepsReviewerCorrections(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)

	rec := model.ExtractedRecord{
		SourceWebsiteID: "alpha",
		SourceURL:       "https://alpha.example/gold",
		ProductName:     model.Ptr("Gold Crd"),
	}
	first, _, err := service.SaveStagingProduct(ctx, conn, rec, model.Ptr(uint(1)), time.Now().UTC())
	require.NoError(t, err)

	_, err = w.Update(ctx, first.ID, Fields{ProductFields: db.ProductFields{
		ProductName: model.Ptr("Gold Card (corrected)"),
		Category:    model.Ptr("CREDIT_CARD"),
	}})
	require.NoError(t, err)

	second, updated, err := service.SaveStagingProduct(ctx, conn, rec, model.Ptr(uint(2)), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, *first.ProductCode, *second.ProductCode)

	corrected, err := w.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gold Card (corrected)", *corrected.ProductName)
	assert.Equal(t, "CREDIT_CARD", *corrected.Category)
	assert.Equal(t, uint(1), *corrected.ScrapeLogID)
	assert.Equal(t, db.ApprovalPending, corrected.ApprovalStatus)

	var forFirstJob int64
	require.NoError(t, conn.Model(&db.StagingProduct{}).Where("scrape_log_id = ?", 1).Count(&forFirstJob).Error)
	assert.Equal(t, int64(1), forFirstJob)
}

func TestBulkApprove_ContinuesOnFailure(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)

	one := stage(t, conn, "/1", "P-1", "One")
	two := stage(t, conn, "/2", "P-2", "Two")
	three := stage(t, conn, "/3", "P-3", "Three")
	require.NoError(t, w.Delete(ctx, two.ID))

	result := w.BulkApprove(ctx, []uint{one.ID, two.ID, three.ID}, Review{Reviewer: "bulk"})
	assert.Equal(t, []uint{one.ID, three.ID}, result.Approved)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[two.ID], "not found")
	assert.Equal(t, int64(2), countProducts(t, conn))
}

func TestReject_LeavesCatalogAlone(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")

	rejected, err := w.Reject(ctx, row.ID, Review{Notes: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, DefaultReviewer, *rejected.ReviewedBy)
	assert.Equal(t, "duplicate", *rejected.ReviewNotes)
	assert.Zero(t, countProducts(t, conn))
}

func TestUpdate_RecomputesQualityKeepsStatus(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)
	row := stage(t, conn, "/gold", "GOLD-1", "Gold Card")
	_, err := w.Approve(ctx, row.ID, Review{})
	require.NoError(t, err)

	updated, err := w.Update(ctx, row.ID, Fields{
		ProductFields: db.ProductFields{
			ProductName: model.Ptr("Gold Card Plus"),
			Description: model.Ptr("Edited"),
			AnnualFee:   model.Ptr(250.0),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, db.ApprovalApproved, updated.ApprovalStatus)
	assert.Equal(t, "GOLD-1", *updated.ProductCode)
	assert.Nil(t, updated.Category)
	// name, code, description, fee
	assert.Equal(t, 0.29, updated.DataQualityScore)

	got, err := w.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gold Card Plus", *got.ProductName)
	assert.Equal(t, 0.29, got.DataQualityScore)

	_, err = w.Update(ctx, 404, Fields{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndStats(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	w := NewWorkflow(conn, nil)

	a := stage(t, conn, "/a", "A", "A")
	b := stage(t, conn, "/b", "B", "B")
	stage(t, conn, "/c", "C", "C")
	_, err := w.Approve(ctx, a.ID, Review{})
	require.NoError(t, err)
	_, err = w.Reject(ctx, b.ID, Review{})
	require.NoError(t, err)

	all, err := w.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := w.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "C", *pending[0].ProductCode)

	stats, err := w.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Approved: 1, Rejected: 1, Total: 3}, stats)

	assert.ErrorIs(t, w.Delete(ctx, 12345), ErrNotFound)
}
