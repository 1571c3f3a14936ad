// Package model holds the storage-independent shape of a scraped product.
package model

// ExtractedRecord is one candidate product produced by the extraction
// engine. Business fields are nullable: nil means the page did not yield a
// value.
type ExtractedRecord struct {
	ProductCode         *string        `json:"product_code"`
	ProductName         *string        `json:"product_name"`
	Category            *string        `json:"category"`
	SubCategory         *string        `json:"sub_category"`
	Description         *string        `json:"description"`
	IslamicStructure    *string        `json:"islamic_structure"`
	AnnualRate          *float64       `json:"annual_rate"`
	AnnualFee           *float64       `json:"annual_fee"`
	MinIncome           *float64       `json:"min_income"`
	MinCreditScore      *int           `json:"min_credit_score"`
	EligibilityCriteria map[string]any `json:"eligibility_criteria"`
	KeyBenefits         []string       `json:"key_benefits"`
	ShariaCertified     *bool          `json:"sharia_certified"`
	Active              *bool          `json:"active"`

	SourceWebsiteID  string  `json:"source_website_id"`
	SourceURL        string  `json:"source_url"`
	DataQualityScore float64 `json:"data_quality_score"`

	// RawHTML is only kept when AI enrichment is enabled for the site.
	RawHTML string `json:"-"`

	AISuggestedCategory  *string        `json:"ai_suggested_category,omitempty"`
	AIConfidence         *float64       `json:"ai_confidence,omitempty"`
	AICategorizationJSON map[string]any `json:"ai_categorization_json,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r ExtractedRecord) Clone() ExtractedRecord {
	out := r
	if r.EligibilityCriteria != nil {
		out.EligibilityCriteria = make(map[string]any, len(r.EligibilityCriteria))
		for k, v := range r.EligibilityCriteria {
			out.EligibilityCriteria[k] = v
		}
	}
	if r.KeyBenefits != nil {
		out.KeyBenefits = append([]string(nil), r.KeyBenefits...)
	}
	if r.AICategorizationJSON != nil {
		out.AICategorizationJSON = make(map[string]any, len(r.AICategorizationJSON))
		for k, v := range r.AICategorizationJSON {
			out.AICategorizationJSON[k] = v
		}
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
