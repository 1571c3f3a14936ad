// Package enrich fills fields that extraction could not determine by asking
// a language model service. Enrichment is best effort: failures are logged
// and the record passes through unchanged.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/quality"
)

// MaxContentChars is how much raw page content goes into the prompt.
const MaxContentChars = 2000

// Enricher asks a Client to complete records.
type Enricher struct {
	client Client
	logger *zap.Logger
}

// New creates an Enricher.
func New(client Client, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{client: client, logger: logger}
}

// Enrich returns rec with null fields filled from the model's reply and
// its quality score recomputed. rec itself is never modified.
func (e *Enricher) Enrich(ctx context.Context, rec model.ExtractedRecord) model.ExtractedRecord {
	out := rec.Clone()
	log := e.logger.With(zap.String("url", rec.SourceURL))

	if rec.RawHTML == "" {
		log.Warn("no raw content available for enrichment")
		out.DataQualityScore = quality.Score(out)
		return out
	}

	reply, err := e.client.Recommend(ctx, BuildPrompt(rec))
	if err != nil {
		log.Error("llm enrichment failed", zap.Error(err))
		out.DataQualityScore = quality.Score(out)
		return out
	}

	doc, err := ParseReply(reply)
	if err != nil {
		log.Error("llm reply is not usable", zap.Error(err))
		out.DataQualityScore = quality.Score(out)
		return out
	}

	filled := Apply(&out, doc)
	out.DataQualityScore = quality.Score(out)
	log.Info("record enriched", zap.Strings("filled", filled), zap.Float64("quality", out.DataQualityScore))
	return out
}

// BuildPrompt asks for the product fields in JSON, giving the source URL
// and the first MaxContentChars characters of the page.
func BuildPrompt(rec model.ExtractedRecord) string {
	content := rec.RawHTML
	if r := []rune(content); len(r) > MaxContentChars {
		content = string(r[:MaxContentChars])
	}

	var b strings.Builder
	b.WriteString("Extract and structure banking product information from the following HTML content.\n\n")
	b.WriteString("Product URL: " + rec.SourceURL + "\n\n")
	b.WriteString("Reply with a single JSON object containing these fields:\n")
	b.WriteString("- productName: full name of the product\n")
	b.WriteString("- productCode: product code or identifier\n")
	b.WriteString("- category: product category (e.g. CREDIT_CARD, FINANCING, SAVINGS)\n")
	b.WriteString("- subCategory: sub-category if applicable\n")
	b.WriteString("- description: brief description of the product\n")
	b.WriteString("- islamicStructure: Islamic finance structure (e.g. Murabaha, Tawarruq, Musharaka)\n")
	b.WriteString("- annualRate, annualFee, minIncome, minCreditScore: numbers\n")
	b.WriteString("- keyBenefits: list of key benefits\n")
	b.WriteString("- shariaCertified: true if Sharia-compliant\n")
	b.WriteString("- confidence: your confidence in the category between 0 and 1\n\n")
	fmt.Fprintf(&b, "HTML Content (truncated to first %d chars):\n", MaxContentChars)
	b.WriteString(content)
	return b.String()
}

// ParseReply decodes the model's JSON object. The object may be wrapped in
// a "response" or "content" string and inside a markdown code fence.
func ParseReply(reply string) (map[string]any, error) {
	doc, err := decodeObject(reply)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"response", "content"} {
		inner, ok := doc[key].(string)
		if !ok {
			continue
		}
		if nested, err := decodeObject(inner); err == nil {
			return nested, nil
		}
	}
	return doc, nil
}

func decodeObject(s string) (map[string]any, error) {
	s = stripFence(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty reply")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("reply is not an object")
	}
	return doc, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Apply fills the null fields of rec that doc provides and records the AI
// suggestion. It returns the names of the fields it filled.
func Apply(rec *model.ExtractedRecord, doc map[string]any) []string {
	var filled []string
	fill := func(dst **string, name string, keys ...string) {
		if *dst != nil && **dst != "" {
			return
		}
		if v := stringField(doc, keys...); v != "" {
			*dst = model.Ptr(v)
			filled = append(filled, name)
		}
	}

	fill(&rec.ProductName, "product_name", "productName", "product_name")
	fill(&rec.ProductCode, "product_code", "productCode", "product_code")
	fill(&rec.Category, "category", "category")
	fill(&rec.Description, "description", "description")
	fill(&rec.IslamicStructure, "islamic_structure", "islamicStructure", "islamic_structure")

	if len(rec.KeyBenefits) == 0 {
		if benefits := listField(doc, "keyBenefits", "key_benefits"); len(benefits) > 0 {
			rec.KeyBenefits = benefits
			filled = append(filled, "key_benefits")
		}
	}

	if c := stringField(doc, "category"); c != "" {
		rec.AISuggestedCategory = model.Ptr(c)
	}
	if conf, ok := numberField(doc, "confidence", "aiConfidence"); ok && conf >= 0 && conf <= 1 {
		rec.AIConfidence = model.Ptr(conf)
	}
	rec.AICategorizationJSON = doc
	return filled
}

func stringField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64, bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func listField(doc map[string]any, keys ...string) []string {
	for _, k := range keys {
		items, ok := doc[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func numberField(doc map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
