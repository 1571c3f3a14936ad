package db

import (
	"time"

	"gorm.io/datatypes"
)

type ScrapeStatus string

const (
	ScrapeRunning ScrapeStatus = "RUNNING"
	ScrapeSuccess ScrapeStatus = "SUCCESS"
	ScrapeFailed  ScrapeStatus = "FAILED"
	ScrapePartial ScrapeStatus = "PARTIAL"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ScrapeSource is a website with a loaded extraction configuration
type ScrapeSource struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	WebsiteID     string     `gorm:"uniqueIndex;not null;size:100" json:"website_id"`
	WebsiteName   string     `gorm:"size:255" json:"website_name"`
	BaseURL       string     `gorm:"size:768" json:"base_url"`
	ConfigPath    string     `gorm:"size:768" json:"config_path"`
	Active        bool       `json:"active"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ScrapeLog is the bookkeeping row of one scrape job
type ScrapeLog struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	JobID           string       `gorm:"uniqueIndex;not null;size:36" json:"job_id"`
	SourceID        uint         `gorm:"index;not null" json:"source_id"`
	Status          ScrapeStatus `gorm:"size:20;not null;index" json:"status"`
	ProductsFound   int          `json:"products_found"`
	ProductsSaved   int          `json:"products_saved"`
	ProductsUpdated int          `json:"products_updated"`
	ProductsSkipped int          `json:"products_skipped"`
	ErrorMessage    *string      `gorm:"type:text" json:"error_message"`
	StartedAt       time.Time    `gorm:"index" json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at"`
	Source          ScrapeSource `gorm:"foreignKey:SourceID" json:"-"`
}

// ProductFields are the business fields shared by staged and catalog products
type ProductFields struct {
	ProductName         *string                     `gorm:"size:255" json:"product_name"`
	Category            *string                     `gorm:"size:100;index" json:"category"`
	SubCategory         *string                     `gorm:"size:100" json:"sub_category"`
	Description         *string                     `gorm:"type:text" json:"description"`
	IslamicStructure    *string                     `gorm:"size:100" json:"islamic_structure"`
	AnnualRate          *float64                    `gorm:"type:decimal(10,4)" json:"annual_rate"`
	AnnualFee           *float64                    `gorm:"type:decimal(12,2)" json:"annual_fee"`
	MinIncome           *float64                    `gorm:"type:decimal(14,2)" json:"min_income"`
	MinCreditScore      *int                        `json:"min_credit_score"`
	EligibilityCriteria datatypes.JSONMap           `json:"eligibility_criteria"`
	KeyBenefits         datatypes.JSONSlice[string] `json:"key_benefits"`
	ShariaCertified     *bool                       `json:"sharia_certified"`
	Active              *bool                       `json:"active"`
}

// StagingProduct is a scraped product waiting for review
type StagingProduct struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	ProductCode *string `gorm:"size:100;index" json:"product_code"`
	ProductFields

	SourceWebsiteID  string    `gorm:"size:100;index:idx_staging_source" json:"source_website_id"`
	SourceURL        string    `gorm:"size:512;index:idx_staging_source" json:"source_url"`
	ScrapedAt        time.Time `json:"scraped_at"`
	DataQualityScore float64   `gorm:"type:decimal(3,2)" json:"data_quality_score"`
	ScrapeLogID      *uint     `gorm:"index" json:"scrape_log_id"`
	RawHTML          *string   `gorm:"type:longtext" json:"-"`

	ApprovalStatus ApprovalStatus `gorm:"size:20;not null;index" json:"approval_status"`
	ReviewedBy     *string        `gorm:"size:100" json:"reviewed_by"`
	ReviewedAt     *time.Time     `json:"reviewed_at"`
	ReviewNotes    *string        `gorm:"type:text" json:"review_notes"`

	AISuggestedCategory  *string           `gorm:"column:ai_suggested_category;size:100" json:"ai_suggested_category"`
	AIConfidence         *float64          `gorm:"column:ai_confidence;type:decimal(3,2)" json:"ai_confidence"`
	AICategorizationJSON datatypes.JSONMap `gorm:"column:ai_categorization_json" json:"ai_categorization_json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is the canonical catalog row, unique by product code
type Product struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProductCode string `gorm:"uniqueIndex;not null;size:100" json:"product_code"`
	ProductFields

	SourceWebsiteID  string     `gorm:"size:100" json:"source_website_id"`
	SourceURL        string     `gorm:"size:768" json:"source_url"`
	ScrapedAt        *time.Time `json:"scraped_at"`
	DataQualityScore float64    `gorm:"type:decimal(3,2)" json:"data_quality_score"`
	StagingID        *uint      `json:"staging_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// User represents a reviewer account
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
