// Package quality scores how complete a scraped product record is.
package quality

import (
	"math"

	"github.com/sykell/product-scraper/internal/model"
)

// TrackedFields is the number of business fields that count towards the score.
const TrackedFields = 14

// Score returns the share of tracked fields that are filled, rounded half-up
// to two decimals. Strings and collections only count when non-empty.
func Score(r model.ExtractedRecord) float64 {
	filled := FilledFields(r)
	return round2(float64(filled) / float64(TrackedFields))
}

// FilledFields counts the tracked fields that carry a value.
func FilledFields(r model.ExtractedRecord) int {
	n := 0
	for _, s := range []*string{
		r.ProductName,
		r.ProductCode,
		r.Category,
		r.SubCategory,
		r.Description,
		r.IslamicStructure,
	} {
		if s != nil && *s != "" {
			n++
		}
	}
	for _, f := range []*float64{r.AnnualRate, r.AnnualFee, r.MinIncome} {
		if f != nil {
			n++
		}
	}
	if r.MinCreditScore != nil {
		n++
	}
	if len(r.EligibilityCriteria) > 0 {
		n++
	}
	if len(r.KeyBenefits) > 0 {
		n++
	}
	if r.ShariaCertified != nil {
		n++
	}
	if r.Active != nil {
		n++
	}
	return n
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
