package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

var (
	nonDecimal  = regexp.MustCompile(`[^0-9.]`)
	nonDigit    = regexp.MustCompile(`[^0-9]`)
	nonAlnum    = regexp.MustCompile(`[^A-Za-z0-9]`)
	criterionKV = regexp.MustCompile(`^\s*([^:]{1,80}):\s*(.+)$`)
)

// Raw is the text read from a product page before any parsing. Empty strings
// mean the selector was missing, matched nothing or failed.
type Raw struct {
	URL string

	ProductName      string
	ProductCode      string
	Category         string
	SubCategory      string
	Description      string
	IslamicStructure string

	AnnualRate     string
	AnnualFee      string
	MinIncome      string
	MinCreditScore string

	KeyBenefits []string
	Eligibility []string

	HTML string
}

// Normalize turns raw page text into a record: text is trimmed, numbers are
// parsed, category aliases and mapping defaults are applied. The product
// code is left nil when the page has none; see EnsureProductCode.
func Normalize(raw Raw, cfg *siteconfig.SiteConfig) model.ExtractedRecord {
	rec := model.ExtractedRecord{
		SourceWebsiteID:     cfg.WebsiteID,
		SourceURL:           raw.URL,
		ProductName:         text(raw.ProductName),
		ProductCode:         text(raw.ProductCode),
		Category:            text(raw.Category),
		SubCategory:         text(raw.SubCategory),
		Description:         text(raw.Description),
		IslamicStructure:    text(raw.IslamicStructure),
		AnnualRate:          ParseDecimal(raw.AnnualRate),
		AnnualFee:           ParseDecimal(raw.AnnualFee),
		MinIncome:           ParseDecimal(raw.MinIncome),
		MinCreditScore:      ParseInt(raw.MinCreditScore),
		KeyBenefits:         nonEmpty(raw.KeyBenefits),
		EligibilityCriteria: ParseEligibility(raw.Eligibility),
	}

	if m := cfg.Mapping; m != nil {
		if rec.Category != nil {
			rec.Category = model.Ptr(mapCategory(*rec.Category, m.CategoryMapping))
		} else if m.DefaultCategory != "" {
			rec.Category = model.Ptr(m.DefaultCategory)
		}
		if rec.ShariaCertified == nil {
			rec.ShariaCertified = model.Ptr(m.ShariaCertified == nil || *m.ShariaCertified)
		}
		if rec.Active == nil {
			rec.Active = model.Ptr(m.Active == nil || *m.Active)
		}
	}

	if cfg.Options.AIEnrichment {
		rec.RawHTML = raw.HTML
	}
	return rec
}

// EnsureProductCode fills a missing product code with a generated one.
func EnsureProductCode(rec *model.ExtractedRecord, now time.Time) {
	if rec.ProductCode != nil && *rec.ProductCode != "" {
		return
	}
	rec.ProductCode = model.Ptr(ProductCode(rec.SourceWebsiteID, model.Deref(rec.ProductName), now))
}

// ProductCode builds SITE_NAME_SUFFIX where NAME is the first ten
// alphanumerics of the upper-cased name and SUFFIX the last six digits of
// the unix millisecond clock.
func ProductCode(siteID, name string, now time.Time) string {
	prefix := strings.ToUpper(strings.TrimSpace(siteID))
	if prefix == "" {
		prefix = "UNK"
	}
	n := strings.ToUpper(nonAlnum.ReplaceAllString(name, ""))
	if n == "" {
		n = "PRODUCT"
	}
	if len(n) > 10 {
		n = n[:10]
	}
	return fmt.Sprintf("%s_%s_%06d", prefix, n, now.UnixMilli()%1_000_000)
}

// ResolveURL makes href absolute against base. Absolute hrefs are returned
// unchanged.
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	if b.Path == "" {
		b.Path = "/"
	}
	return b.ResolveReference(ref).String(), nil
}

// ParseDecimal keeps digits and the decimal point and parses the rest.
// "AED 1,250.50" gives 1250.5; anything unparsable gives nil.
func ParseDecimal(s string) *float64 {
	cleaned := nonDecimal.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseInt keeps digits only.
func ParseInt(s string) *int {
	cleaned := nonDigit.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	return &v
}

// ParseEligibility turns criterion lines into a document. "Key: Value"
// lines are keyed by their label, others become criterion_N.
func ParseEligibility(items []string) map[string]any {
	out := make(map[string]any)
	n := 0
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		n++
		if m := criterionKV.FindStringSubmatch(item); m != nil {
			key := strings.TrimSpace(m[1])
			if _, dup := out[key]; !dup && key != "" {
				out[key] = strings.TrimSpace(m[2])
				continue
			}
		}
		out[fmt.Sprintf("criterion_%d", n)] = item
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mapCategory(category string, aliases map[string]string) string {
	if v, ok := aliases[category]; ok {
		return v
	}
	for k, v := range aliases {
		if strings.EqualFold(k, category) {
			return v
		}
	}
	return category
}

func text(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
