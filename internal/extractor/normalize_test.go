package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://site.example", "/products/a", "https://site.example/products/a"},
		{"https://site.example", "products/a", "https://site.example/products/a"},
		{"https://site.example/cards/", "gold", "https://site.example/cards/gold"},
		{"https://site.example", "https://other.example/x", "https://other.example/x"},
		{"https://site.example", "?page=2", "https://site.example/?page=2"},
	}
	for _, tt := range tests {
		got, err := ResolveURL(tt.base, tt.href)
		require.NoError(t, err, tt.href)
		assert.Equal(t, tt.want, got, tt.href)
	}

	_, err := ResolveURL("https://site.example", "  ")
	assert.Error(t, err)
}

func TestParseNumbers(t *testing.T) {
	assert.InDelta(t, 1250.5, *ParseDecimal("AED 1,250.50"), 1e-9)
	assert.InDelta(t, 3.99, *ParseDecimal("3.99%"), 1e-9)
	assert.Nil(t, ParseDecimal("free"))
	assert.Nil(t, ParseDecimal("1.2.3"))
	assert.Nil(t, ParseDecimal(""))

	assert.Equal(t, 700, *ParseInt("700+"))
	assert.Equal(t, 15000, *ParseInt("15,000"))
	assert.Nil(t, ParseInt("none"))
}

func TestParseEligibility(t *testing.T) {
	got := ParseEligibility([]string{"Age: 21-65", "", "Salary transfer required", "Age: 18"})
	assert.Equal(t, map[string]any{
		"Age":         "21-65",
		"criterion_2": "Salary transfer required",
		"criterion_3": "Age: 18",
	}, got)
	assert.Nil(t, ParseEligibility(nil))
}

func TestProductCode(t *testing.T) {
	now := time.UnixMilli(1700000123456)
	assert.Equal(t, "ADIB_COVEREDCAR_123456", ProductCode("adib", "Covered Card - Gold!", now))
	assert.Equal(t, "UNK_PRODUCT_123456", ProductCode("", "", now))
	assert.Equal(t, "X_AB_000042", ProductCode("x", "a-b", time.UnixMilli(5000042)))
}

func TestEnsureProductCode(t *testing.T) {
	now := time.UnixMilli(1700000123456)
	rec := model.ExtractedRecord{SourceWebsiteID: "bank", ProductName: model.Ptr("Home Finance")}
	EnsureProductCode(&rec, now)
	assert.Equal(t, "BANK_HOMEFINANC_123456", *rec.ProductCode)

	rec.ProductCode = model.Ptr("KEEP")
	EnsureProductCode(&rec, now)
	assert.Equal(t, "KEEP", *rec.ProductCode)
}

func TestNormalize_MappingDefaults(t *testing.T) {
	f := false
	cfg := &siteconfig.SiteConfig{
		WebsiteID: "bank",
		Mapping: &siteconfig.MappingConfig{
			DefaultCategory: "FINANCING",
			CategoryMapping: map[string]string{"Credit Cards": "CREDIT_CARD"},
			ShariaCertified: &f,
		},
		Options: siteconfig.Options{AIEnrichment: true},
	}

	rec := Normalize(Raw{URL: "https://bank.example/p", Category: " credit cards ", HTML: "<html/>"}, cfg)
	assert.Equal(t, "CREDIT_CARD", *rec.Category)
	assert.False(t, *rec.ShariaCertified)
	assert.True(t, *rec.Active)
	assert.Equal(t, "<html/>", rec.RawHTML)

	rec = Normalize(Raw{ProductName: "  "}, cfg)
	assert.Nil(t, rec.ProductName)
	assert.Equal(t, "FINANCING", *rec.Category)

	cfg.Mapping = nil
	cfg.Options.AIEnrichment = false
	rec = Normalize(Raw{HTML: "<html/>"}, cfg)
	assert.Nil(t, rec.Category)
	assert.Nil(t, rec.ShariaCertified)
	assert.Nil(t, rec.Active)
	assert.Empty(t, rec.RawHTML)
}
