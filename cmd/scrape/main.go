// Command scrape runs one scrape job in the foreground and prints its outcome.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/enrich"
	"github.com/sykell/product-scraper/internal/extractor"
	"github.com/sykell/product-scraper/internal/logging"
	"github.com/sykell/product-scraper/internal/scraper"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

func main() {
	configDir := flag.String("configs", envOr("SCRAPER_CONFIG_DIR", "configs/sites"), "Directory of site configuration files")
	websiteID := flag.String("site", "", "Website id to scrape")
	list := flag.Bool("list", false, "List the loaded site configurations and exit")
	flag.Parse()

	logger := logging.New(logging.NewConfig())
	defer func() { _ = logger.Sync() }()

	registry := siteconfig.NewRegistry(*configDir, logger)
	if _, err := registry.Load(); err != nil {
		logger.Fatal("failed to load scraper configurations", zap.Error(err))
	}

	if *list {
		for _, cfg := range registry.All() {
			fmt.Printf("%s\t%s\t%s\n", cfg.WebsiteID, cfg.WebsiteName, cfg.ListingURL())
		}
		return
	}
	if *websiteID == "" {
		flag.Usage()
		os.Exit(2)
	}

	dbConn, err := db.InitDB()
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enricher := enrich.New(enrich.NewHTTPClient(enrich.NewConfig(), logger), logger)
	svc := scraper.NewService(dbConn, registry, extractor.NewEngine(logger), enricher, logger, nil)

	status, err := svc.RunSync(ctx, *websiteID)
	if err != nil {
		logger.Fatal("scrape failed", zap.String("website_id", *websiteID), zap.Error(err))
	}

	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(out))
	if status.ErrorMessage != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
