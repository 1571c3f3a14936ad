// Package extractor drives a browser session over a site's listing and
// product pages and turns each product page into an ExtractedRecord.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/browser"
	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

// Engine extracts product records for a site configuration.
type Engine struct {
	launchers map[string]browser.Launcher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLauncher registers the launcher used for a driver name.
func WithLauncher(driver string, l browser.Launcher) Option {
	return func(e *Engine) { e.launchers[driver] = l }
}

// WithClock overrides the clock used for screenshot names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the rod and static drivers registered.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		launchers: map[string]browser.Launcher{
			siteconfig.DriverRod:    &browser.RodLauncher{},
			siteconfig.DriverStatic: &browser.StaticLauncher{},
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract opens one session for cfg, discovers product URLs on the listing
// pages and extracts every product page in discovery order. A product page
// that cannot be loaded is logged and left out. Failing to open the session
// or the first listing page returns an error, as does cancellation of ctx.
func (e *Engine) Extract(ctx context.Context, cfg *siteconfig.SiteConfig) ([]model.ExtractedRecord, error) {
	launcher, ok := e.launchers[cfg.Options.Driver]
	if !ok {
		return nil, fmt.Errorf("no browser driver %q", cfg.Options.Driver)
	}

	log := e.logger.With(zap.String("website_id", cfg.WebsiteID))

	sess, err := launcher.Open(ctx, browser.Options{
		Headless: cfg.IsHeadless(),
		Timeout:  cfg.NavigationTimeout(),
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("close browser session", zap.Error(err))
		}
	}()

	urls, err := e.discover(ctx, sess, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("discovered product urls", zap.Int("count", len(urls)))

	records := make([]model.ExtractedRecord, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			if err := browser.Wait(ctx, cfg.RequestDelay()); err != nil {
				return nil, err
			}
		}

		rec, err := e.product(ctx, sess, cfg, u, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("extract product page", zap.String("url", u), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	log.Info("extraction finished", zap.Int("found", len(urls)), zap.Int("extracted", len(records)))
	return records, nil
}

// discover walks up to max_pages listing pages and collects unique product
// URLs in the order they appear.
func (e *Engine) discover(ctx context.Context, sess browser.Session, cfg *siteconfig.SiteConfig, log *zap.Logger) ([]string, error) {
	var (
		urls []string
		seen = make(map[string]struct{})
	)

	page := cfg.ListingURL()
	for n := 1; n <= cfg.Navigation.MaxPages && page != ""; n++ {
		if err := e.navigate(ctx, sess, cfg, page); err != nil {
			if n == 1 {
				return nil, fmt.Errorf("open listing page: %w", err)
			}
			log.Warn("listing page failed, stopping pagination", zap.String("url", page), zap.Error(err))
			break
		}

		items, err := sess.Locate(ctx, cfg.Selectors.ProductList)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("locate product list", zap.String("url", page), zap.Error(err))
		}

		for i, item := range items {
			u, err := productURL(item, cfg)
			if err != nil {
				log.Debug("skip listing item", zap.Int("index", i), zap.Error(err))
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}

		page = nextPage(ctx, sess, cfg)
	}
	return urls, nil
}

func productURL(item browser.Element, cfg *siteconfig.SiteConfig) (string, error) {
	links, err := item.Locate(cfg.Selectors.ProductLink)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return "", fmt.Errorf("no element matches %q", cfg.Selectors.ProductLink)
	}
	href, ok, err := links[0].Attribute("href")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("link has no href")
	}
	return ResolveURL(cfg.BaseURL, href)
}

func nextPage(ctx context.Context, sess browser.Session, cfg *siteconfig.SiteConfig) string {
	if cfg.Navigation.NextPageSelector == "" {
		return ""
	}
	els, err := sess.Locate(ctx, cfg.Navigation.NextPageSelector)
	if err != nil || len(els) == 0 {
		return ""
	}
	href, ok, err := els[0].Attribute("href")
	if err != nil || !ok {
		return ""
	}
	base := sess.URL()
	if base == "" {
		base = cfg.BaseURL
	}
	u, err := ResolveURL(base, href)
	if err != nil {
		return ""
	}
	return u
}

// navigate loads address, retrying retry_count times, then waits the
// configured settle time.
func (e *Engine) navigate(ctx context.Context, sess browser.Session, cfg *siteconfig.SiteConfig, address string) error {
	var err error
	for attempt := 0; attempt <= cfg.Options.RetryCount; attempt++ {
		if attempt > 0 {
			e.logger.Debug("retrying navigation", zap.String("url", address), zap.Int("attempt", attempt))
		}
		if err = sess.Navigate(ctx, address); err == nil {
			return browser.Wait(ctx, cfg.SettleWait())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (e *Engine) product(ctx context.Context, sess browser.Session, cfg *siteconfig.SiteConfig, address string, log *zap.Logger) (model.ExtractedRecord, error) {
	if err := e.navigate(ctx, sess, cfg, address); err != nil {
		return model.ExtractedRecord{}, err
	}

	sel := cfg.Selectors
	f := fieldReader{ctx: ctx, sess: sess, log: log.With(zap.String("url", address))}
	raw := Raw{
		URL:              address,
		ProductName:      f.text(sel.ProductName),
		ProductCode:      f.text(sel.ProductCode),
		Category:         f.text(sel.Category),
		SubCategory:      f.text(sel.SubCategory),
		Description:      f.text(sel.Description),
		IslamicStructure: f.text(sel.IslamicStructure),
		AnnualRate:       f.text(sel.AnnualRate),
		AnnualFee:        f.text(sel.AnnualFee),
		MinIncome:        f.text(sel.MinIncome),
		MinCreditScore:   f.text(sel.MinCreditScore),
		KeyBenefits:      f.list(sel.KeyBenefits),
		Eligibility:      f.list(sel.EligibilityCriteria),
	}
	if ctx.Err() != nil {
		return model.ExtractedRecord{}, ctx.Err()
	}

	if cfg.Options.AIEnrichment {
		html, err := sess.Content(ctx)
		if err != nil {
			log.Warn("read page content", zap.String("url", address), zap.Error(err))
		}
		raw.HTML = html
	}

	if cfg.Options.Screenshot {
		path := filepath.Join(cfg.Options.ScreenshotPath, fmt.Sprintf("%s_%d.png", cfg.WebsiteID, e.now().UnixMilli()))
		if err := sess.Screenshot(ctx, path); err != nil {
			log.Warn("screenshot failed", zap.String("url", address), zap.Error(err))
		}
	}

	return Normalize(raw, cfg), nil
}

// fieldReader reads single fields from the current page. Every failure is
// logged and yields an empty value so one bad selector never drops the
// record.
type fieldReader struct {
	ctx  context.Context
	sess browser.Session
	log  *zap.Logger
}

func (f fieldReader) text(selector string) string {
	if selector == "" {
		return ""
	}
	els, err := f.sess.Locate(f.ctx, selector)
	if err != nil {
		f.log.Debug("selector failed", zap.String("selector", selector), zap.Error(err))
		return ""
	}
	if len(els) == 0 {
		return ""
	}
	s, err := els[0].Text()
	if err != nil {
		f.log.Debug("read text failed", zap.String("selector", selector), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(s)
}

func (f fieldReader) list(selector string) []string {
	if selector == "" {
		return nil
	}
	els, err := f.sess.Locate(f.ctx, selector)
	if err != nil {
		f.log.Debug("selector failed", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	var out []string
	for _, el := range els {
		s, err := el.Text()
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
