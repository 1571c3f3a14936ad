package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/extractor"
	"github.com/sykell/product-scraper/internal/model"
)

// SaveStagingProduct stages a scraped record as a new PENDING row. Rows
// already staged are never modified. When a PENDING row for the same source
// URL exists the save is reported as updated and, if the record carries no
// product code, the new row reuses that row's code. Otherwise a code is
// generated.
func SaveStagingProduct(ctx context.Context, dbConn *gorm.DB, rec model.ExtractedRecord, scrapeLogID *uint, scrapedAt time.Time) (*db.StagingProduct, bool, error) {
	var (
		existing db.StagingProduct
		updated  bool
	)

	// Look for an earlier pending copy of the same product page
	err := dbConn.WithContext(ctx).
		Where("source_website_id = ? AND source_url = ? AND approval_status = ?",
			rec.SourceWebsiteID, rec.SourceURL, db.ApprovalPending).
		Order("id desc").
		First(&existing).Error
	switch {
	case err == nil:
		updated = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	if rec.ProductCode == nil && updated && existing.ProductCode != nil {
		rec.ProductCode = existing.ProductCode
	}
	extractor.EnsureProductCode(&rec, scrapedAt)

	row := StagingFromRecord(rec)
	row.ScrapeLogID = scrapeLogID
	row.ScrapedAt = scrapedAt
	row.ApprovalStatus = db.ApprovalPending

	if err := dbConn.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, false, err
	}
	return &row, updated, nil
}

// StagingFromRecord maps an extracted record onto a staging row
func StagingFromRecord(rec model.ExtractedRecord) db.StagingProduct {
	row := db.StagingProduct{
		ProductCode:          rec.ProductCode,
		ProductFields:        ProductFieldsFromRecord(rec),
		SourceWebsiteID:      rec.SourceWebsiteID,
		SourceURL:            rec.SourceURL,
		DataQualityScore:     rec.DataQualityScore,
		AISuggestedCategory:  rec.AISuggestedCategory,
		AIConfidence:         rec.AIConfidence,
		AICategorizationJSON: jsonMap(rec.AICategorizationJSON),
	}
	if rec.RawHTML != "" {
		row.RawHTML = model.Ptr(rec.RawHTML)
	}
	return row
}

// ProductFieldsFromRecord copies the business fields of a record
func ProductFieldsFromRecord(rec model.ExtractedRecord) db.ProductFields {
	return db.ProductFields{
		ProductName:         rec.ProductName,
		Category:            rec.Category,
		SubCategory:         rec.SubCategory,
		Description:         rec.Description,
		IslamicStructure:    rec.IslamicStructure,
		AnnualRate:          rec.AnnualRate,
		AnnualFee:           rec.AnnualFee,
		MinIncome:           rec.MinIncome,
		MinCreditScore:      rec.MinCreditScore,
		EligibilityCriteria: jsonMap(rec.EligibilityCriteria),
		KeyBenefits:         datatypes.JSONSlice[string](rec.KeyBenefits),
		ShariaCertified:     rec.ShariaCertified,
		Active:              rec.Active,
	}
}

// RecordFromStaging rebuilds the record view of a staging row
func RecordFromStaging(row db.StagingProduct) model.ExtractedRecord {
	f := row.ProductFields
	return model.ExtractedRecord{
		ProductCode:          row.ProductCode,
		ProductName:          f.ProductName,
		Category:             f.Category,
		SubCategory:          f.SubCategory,
		Description:          f.Description,
		IslamicStructure:     f.IslamicStructure,
		AnnualRate:           f.AnnualRate,
		AnnualFee:            f.AnnualFee,
		MinIncome:            f.MinIncome,
		MinCreditScore:       f.MinCreditScore,
		EligibilityCriteria:  map[string]any(f.EligibilityCriteria),
		KeyBenefits:          []string(f.KeyBenefits),
		ShariaCertified:      f.ShariaCertified,
		Active:               f.Active,
		SourceWebsiteID:      row.SourceWebsiteID,
		SourceURL:            row.SourceURL,
		DataQualityScore:     row.DataQualityScore,
		RawHTML:              model.Deref(row.RawHTML),
		AISuggestedCategory:  row.AISuggestedCategory,
		AIConfidence:         row.AIConfidence,
		AICategorizationJSON: map[string]any(row.AICategorizationJSON),
	}
}

func jsonMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	return datatypes.JSONMap(m)
}
