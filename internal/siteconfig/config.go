// Package siteconfig loads the per-site extraction configurations.
package siteconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Browser drivers a site can be scraped with.
const (
	DriverRod    = "rod"
	DriverStatic = "static"
)

// SiteConfig describes how to navigate and extract products from one website.
type SiteConfig struct {
	WebsiteID   string           `yaml:"website_id" json:"website_id"`
	WebsiteName string           `yaml:"website_name" json:"website_name"`
	BaseURL     string           `yaml:"base_url" json:"base_url"`
	Navigation  NavigationConfig `yaml:"navigation" json:"navigation"`
	Selectors   SelectorConfig   `yaml:"selectors" json:"selectors"`
	Mapping     *MappingConfig   `yaml:"mapping" json:"mapping,omitempty"`
	Options     Options          `yaml:"options" json:"options"`

	// Path is the file the config was read from.
	Path string `yaml:"-" json:"config_path"`
}

// NavigationConfig controls which pages are visited.
type NavigationConfig struct {
	StartURL         string `yaml:"start_url" json:"start_url"`
	ProductListURL   string `yaml:"product_list_url" json:"product_list_url,omitempty"`
	MaxPages         int    `yaml:"max_pages" json:"max_pages"`
	NextPageSelector string `yaml:"next_page_selector" json:"next_page_selector,omitempty"`
	WaitAfterLoad    int    `yaml:"wait_after_load" json:"wait_after_load"` // milliseconds
}

// SelectorConfig holds one CSS selector per extractable field.
type SelectorConfig struct {
	ProductList         string `yaml:"product_list" json:"product_list"`
	ProductLink         string `yaml:"product_link" json:"product_link"`
	ProductName         string `yaml:"product_name" json:"product_name,omitempty"`
	ProductCode         string `yaml:"product_code" json:"product_code,omitempty"`
	Category            string `yaml:"category" json:"category,omitempty"`
	SubCategory         string `yaml:"sub_category" json:"sub_category,omitempty"`
	Description         string `yaml:"description" json:"description,omitempty"`
	AnnualRate          string `yaml:"annual_rate" json:"annual_rate,omitempty"`
	AnnualFee           string `yaml:"annual_fee" json:"annual_fee,omitempty"`
	MinIncome           string `yaml:"min_income" json:"min_income,omitempty"`
	MinCreditScore      string `yaml:"min_credit_score" json:"min_credit_score,omitempty"`
	KeyBenefits         string `yaml:"key_benefits" json:"key_benefits,omitempty"`
	EligibilityCriteria string `yaml:"eligibility_criteria" json:"eligibility_criteria,omitempty"`
	IslamicStructure    string `yaml:"islamic_structure" json:"islamic_structure,omitempty"`
}

// MappingConfig supplies defaults applied after extraction.
type MappingConfig struct {
	DefaultCategory string            `yaml:"default_category" json:"default_category,omitempty"`
	CategoryMapping map[string]string `yaml:"category_mapping" json:"category_mapping,omitempty"`
	ShariaCertified *bool             `yaml:"sharia_certified" json:"sharia_certified,omitempty"`
	Active          *bool             `yaml:"active" json:"active,omitempty"`
}

// Options tune the scraper run for a site.
type Options struct {
	AIEnrichment         bool   `yaml:"ai_enrichment" json:"ai_enrichment"`
	Headless             *bool  `yaml:"headless" json:"headless"`
	Timeout              int    `yaml:"timeout" json:"timeout"` // milliseconds
	Screenshot           bool   `yaml:"screenshot" json:"screenshot"`
	ScreenshotPath       string `yaml:"screenshot_path" json:"screenshot_path,omitempty"`
	RetryCount           int    `yaml:"retry_count" json:"retry_count"`
	DelayBetweenRequests int    `yaml:"delay_between_requests" json:"delay_between_requests"` // milliseconds
	Driver               string `yaml:"driver" json:"driver"`
}

// ListingURL is the first listing page to open.
func (c *SiteConfig) ListingURL() string {
	if c.Navigation.ProductListURL != "" {
		return c.Navigation.ProductListURL
	}
	return c.Navigation.StartURL
}

// NavigationTimeout returns the per-navigation timeout.
func (c *SiteConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.Options.Timeout) * time.Millisecond
}

// SettleWait returns how long to wait after each page load.
func (c *SiteConfig) SettleWait() time.Duration {
	return time.Duration(c.Navigation.WaitAfterLoad) * time.Millisecond
}

// RequestDelay returns the pause between product pages.
func (c *SiteConfig) RequestDelay() time.Duration {
	return time.Duration(c.Options.DelayBetweenRequests) * time.Millisecond
}

// IsHeadless reports whether the browser runs without a window.
func (c *SiteConfig) IsHeadless() bool {
	return c.Options.Headless == nil || *c.Options.Headless
}

// LoadFile reads and validates a single YAML site configuration.
func LoadFile(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*SiteConfig, error) {
	var cfg SiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SiteConfig) applyDefaults() {
	c.WebsiteID = strings.TrimSpace(c.WebsiteID)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.WebsiteName == "" {
		c.WebsiteName = c.WebsiteID
	}
	if c.Navigation.MaxPages <= 0 {
		c.Navigation.MaxPages = 1
	}
	if c.Options.Timeout <= 0 {
		c.Options.Timeout = 30000
	}
	if c.Options.RetryCount < 0 {
		c.Options.RetryCount = 0
	}
	if c.Options.Driver == "" {
		c.Options.Driver = DriverRod
	}
	if c.Options.Screenshot && c.Options.ScreenshotPath == "" {
		c.Options.ScreenshotPath = "screenshots"
	}
}

// Validate checks the fields every extraction run depends on.
func (c *SiteConfig) Validate() error {
	var errs []error
	if c.WebsiteID == "" {
		errs = append(errs, errors.New("website_id is required"))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Navigation.StartURL == "" {
		errs = append(errs, errors.New("navigation.start_url is required"))
	}
	if c.Selectors.ProductList == "" {
		errs = append(errs, errors.New("selectors.product_list is required"))
	}
	if c.Selectors.ProductLink == "" {
		errs = append(errs, errors.New("selectors.product_link is required"))
	}
	switch c.Options.Driver {
	case DriverRod, DriverStatic:
	default:
		errs = append(errs, fmt.Errorf("options.driver %q is not supported", c.Options.Driver))
	}
	return errors.Join(errs...)
}
