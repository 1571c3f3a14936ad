package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/db/dbtest"
	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/siteconfig"
)

func site(id string) *siteconfig.SiteConfig {
	return &siteconfig.SiteConfig{
		WebsiteID:   id,
		WebsiteName: id + " Bank",
		BaseURL:     "https://" + id + ".example",
		Path:        "configs/sites/" + id + ".yml",
	}
}

func TestSyncSources(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)

	require.NoError(t, SyncSources(ctx, conn, []*siteconfig.SiteConfig{site("alpha"), site("beta")}))

	renamed := site("alpha")
	renamed.WebsiteName = "Alpha Renamed"
	require.NoError(t, SyncSources(ctx, conn, []*siteconfig.SiteConfig{renamed}))

	sources, err := ListSources(ctx, conn)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "Alpha Renamed", sources[0].WebsiteName)
	assert.True(t, sources[0].Active)
	assert.Equal(t, "beta", sources[1].WebsiteID)
	assert.False(t, sources[1].Active)

	require.NoError(t, SyncSources(ctx, conn, nil))
	sources, err = ListSources(ctx, conn)
	require.NoError(t, err)
	for _, s := range sources {
		assert.False(t, s.Active, s.WebsiteID)
	}
}

func TestEnsureSourceAndTouch(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)

	src, err := EnsureSource(ctx, conn, site("gamma"))
	require.NoError(t, err)
	again, err := EnsureSource(ctx, conn, site("gamma"))
	require.NoError(t, err)
	assert.Equal(t, src.ID, again.ID)
	assert.Nil(t, src.LastScrapedAt)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, TouchLastScraped(ctx, conn, "gamma", at))
	got, err := GetSourceByWebsiteID(ctx, conn, "gamma")
	require.NoError(t, err)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, at.Equal(*got.LastScrapedAt))
}

func TestScrapeLogLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	src, err := EnsureSource(ctx, conn, site("alpha"))
	require.NoError(t, err)

	started := time.Now().UTC()
	entry, err := CreateScrapeLog(ctx, conn, "job-1", src.ID, started)
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeRunning, entry.Status)

	counts := JobCounts{Found: 3, Saved: 2, Updated: 1, Skipped: 1}
	require.NoError(t, CompleteScrapeLog(ctx, conn, "job-1", counts, "", started.Add(time.Minute)))

	status, err := GetScrapeLog(ctx, conn, "job-1")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapePartial, status.Status)
	assert.Equal(t, "alpha", status.WebsiteID)
	assert.Equal(t, "alpha Bank", status.WebsiteName)
	assert.Equal(t, status.ProductsFound, status.ProductsSaved+status.ProductsSkipped)
	assert.Nil(t, status.ErrorMessage)
	require.NotNil(t, status.CompletedAt)

	// A finished job is never finalized twice.
	require.NoError(t, CompleteScrapeLog(ctx, conn, "job-1", JobCounts{}, "late failure", time.Now()))
	status, err = GetScrapeLog(ctx, conn, "job-1")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapePartial, status.Status)

	_, err = GetScrapeLog(ctx, conn, "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCompleteScrapeLog_Failure(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	src, err := EnsureSource(ctx, conn, site("alpha"))
	require.NoError(t, err)
	_, err = CreateScrapeLog(ctx, conn, "job-f", src.ID, time.Now())
	require.NoError(t, err)

	require.NoError(t, CompleteScrapeLog(ctx, conn, "job-f", JobCounts{Found: 5, Saved: 4}, "browser crashed", time.Now()))

	status, err := GetScrapeLog(ctx, conn, "job-f")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeFailed, status.Status)
	assert.Zero(t, status.ProductsFound)
	assert.Zero(t, status.ProductsSaved)
	require.NotNil(t, status.ErrorMessage)
	assert.Equal(t, "browser crashed", *status.ErrorMessage)
}

func TestMigrate_LeavesRunningJobsAlone(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	src, err := EnsureSource(ctx, conn, site("alpha"))
	require.NoError(t, err)
	_, err = CreateScrapeLog(ctx, conn, "job-live", src.ID, time.Now().UTC())
	require.NoError(t, err)

	// Another process opening the same database
	require.NoError(t, db.Migrate(conn))

	require.NoError(t, CompleteScrapeLog(ctx, conn, "job-live", JobCounts{Found: 3, Saved: 3}, "", time.Now().UTC()))
	status, err := GetScrapeLog(ctx, conn, "job-live")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeSuccess, status.Status)
	assert.Equal(t, 3, status.ProductsFound)
	assert.Equal(t, 3, status.ProductsSaved)
}

func TestFailStaleScrapeLogs(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	src, err := EnsureSource(ctx, conn, site("alpha"))
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err = CreateScrapeLog(ctx, conn, "job-old", src.ID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = CreateScrapeLog(ctx, conn, "job-recent", src.ID, now.Add(-5*time.Minute))
	require.NoError(t, err)
	_, err = CreateScrapeLog(ctx, conn, "job-done", src.ID, now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.NoError(t, CompleteScrapeLog(ctx, conn, "job-done", JobCounts{Found: 1, Saved: 1}, "", now.Add(-170*time.Minute)))

	n, err := FailStaleScrapeLogs(ctx, conn, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := GetScrapeLog(ctx, conn, "job-old")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeFailed, old.Status)
	require.NotNil(t, old.ErrorMessage)
	assert.Equal(t, InterruptedJobMessage, *old.ErrorMessage)

	recent, err := GetScrapeLog(ctx, conn, "job-recent")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeRunning, recent.Status)

	done, err := GetScrapeLog(ctx, conn, "job-done")
	require.NoError(t, err)
	assert.Equal(t, db.ScrapeSuccess, done.Status)
}

func TestJobCountsStatus(t *testing.T) {
	assert.Equal(t, db.ScrapeSuccess, JobCounts{}.Status())
	assert.Equal(t, db.ScrapeSuccess, JobCounts{Found: 2, Saved: 2}.Status())
	assert.Equal(t, db.ScrapePartial, JobCounts{Found: 2, Saved: 1, Skipped: 1}.Status())
}

func TestGetScrapeHistory(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	alpha, err := EnsureSource(ctx, conn, site("alpha"))
	require.NoError(t, err)
	beta, err := EnsureSource(ctx, conn, site("beta"))
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 55; i++ {
		_, err := CreateScrapeLog(ctx, conn, fmt.Sprintf("a-%02d", i), alpha.ID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, err = CreateScrapeLog(ctx, conn, "b-00", beta.ID, base)
	require.NoError(t, err)

	logs, err := GetScrapeHistory(ctx, conn, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, logs, MaxHistory)
	assert.Equal(t, "a-54", logs[0].JobID)

	logs, err = GetScrapeHistory(ctx, conn, "alpha", 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"a-54", "a-53", "a-52"}, []string{logs[0].JobID, logs[1].JobID, logs[2].JobID})

	logs, err = GetScrapeHistory(ctx, conn, "beta", 500)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSaveStagingProduct_InsertsEveryScrape(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(t)
	now := time.UnixMilli(1700000123456).UTC()

	rec := model.ExtractedRecord{
		SourceWebsiteID:     "alpha",
		SourceURL:           "https://alpha.example/p/1",
		ProductName:         model.Ptr("Gold Card"),
		KeyBenefits:         []string{"Lounge"},
		EligibilityCriteria: map[string]any{"Age": "21"},
		DataQualityScore:    0.21,
		RawHTML:             "<html/>",
	}

	first, updated, err := SaveStagingProduct(ctx, conn, rec, model.Ptr(uint(1)), now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "ALPHA_GOLDCARD_123456", *first.ProductCode)
	assert.Equal(t, db.ApprovalPending, first.ApprovalStatus)

	rec.Description = model.Ptr("Refreshed")
	second, updated, err := SaveStagingProduct(ctx, conn, rec, model.Ptr(uint(2)), now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "ALPHA_GOLDCARD_123456", *second.ProductCode)

	var rows []db.StagingProduct
	require.NoError(t, conn.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].Description)
	assert.Equal(t, uint(1), *rows[0].ScrapeLogID)
	assert.Equal(t, "Refreshed", *rows[1].Description)
	assert.Equal(t, uint(2), *rows[1].ScrapeLogID)
	assert.Equal(t, []string{"Lounge"}, []string(rows[1].KeyBenefits))
	assert.Equal(t, "21", rows[1].EligibilityCriteria["Age"])
	assert.Equal(t, "<html/>", *rows[1].RawHTML)

	back := RecordFromStaging(rows[1])
	assert.Equal(t, "Gold Card", *back.ProductName)
	assert.Equal(t, rec.SourceURL, back.SourceURL)

	// Once no pending copy is left the next scrape is a plain insert
	require.NoError(t, conn.Model(&db.StagingProduct{}).Where("approval_status = ?", db.ApprovalPending).
		Update("approval_status", db.ApprovalRejected).Error)
	third, updated, err := SaveStagingProduct(ctx, conn, rec, nil, now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NotEqual(t, second.ID, third.ID)
}
