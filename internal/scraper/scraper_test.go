package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis4/Crawly/internal/config"
	"github.com/oasis4/Crawly/internal/database"
	"github.com/oasis4/Crawly/internal/extractor"
)

// fakeSession serves a scripted sequence of pages without a browser.
type fakeSession struct {
	pages       []string
	current     int
	hasNext     bool
	navigateErr error
	clickErr    error
	contentErr  error
	closed      bool
	clicks      int
}

func (f *fakeSession) Navigate(string) error { return f.navigateErr }
func (f *fakeSession) ScrollToBottom() error { return nil }

func (f *fakeSession) Content() (string, error) {
	if f.contentErr != nil {
		return "", f.contentErr
	}
	if f.current >= len(f.pages) {
		return "", nil
	}
	return f.pages[f.current], nil
}

func (f *fakeSession) HasNext(string) bool { return f.hasNext }

func (f *fakeSession) Click(string) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks++
	if f.current < len(f.pages)-1 {
		f.current++
	}
	return nil
}

func (f *fakeSession) Throttle(context.Context) error { return nil }
func (f *fakeSession) Close() error                   { f.closed = true; return nil }

// fakeExtractor maps page markup to canned records. A page named
// "more:..." reports a further page available.
type fakeExtractor struct {
	records map[string][]extractor.Record
}

func (f *fakeExtractor) ExtractProducts(html string) ([]extractor.Record, error) {
	return f.records[html], nil
}

func (f *fakeExtractor) ExtractPaginationInfo(html string) extractor.PaginationInfo {
	return extractor.PaginationInfo{HasNext: len(html) > 5 && html[:5] == "more:"}
}

type fakeStore struct {
	nextRunID   int64
	createErr   error
	saveErr     error
	saveErrOnce bool

	created   []int64
	completed map[int64][3]int
	failed    map[int64]string
	saved     [][]extractor.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextRunID: 1,
		completed: make(map[int64][3]int),
		failed:    make(map[int64]string),
	}
}

func (f *fakeStore) CreateRun(context.Context) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextRunID
	f.nextRunID++
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeStore) CompleteRun(_ context.Context, runID int64, found, added, updated int) error {
	f.completed[runID] = [3]int{found, added, updated}
	return nil
}

func (f *fakeStore) FailRun(_ context.Context, runID int64, errText string) error {
	f.failed[runID] = errText
	return nil
}

func (f *fakeStore) SaveProducts(_ context.Context, records []extractor.Record, _ int64) (database.SaveStats, error) {
	if f.saveErr != nil {
		err := f.saveErr
		if f.saveErrOnce {
			f.saveErr = nil
		}
		return database.SaveStats{}, err
	}
	f.saved = append(f.saved, records)
	return database.SaveStats{New: len(records)}, nil
}

func record(sku string) extractor.Record {
	return extractor.Record{SKU: sku, Name: "Produkt " + sku, Price: 9.99, Currency: "EUR"}
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		TargetURL:      "https://www.lidl.de",
		MaxRetries:     3,
		PaginationNext: ".s-load-more__button",
	}
}

func newOrchestrator(cfg config.ScraperConfig, session *fakeSession, ex PageExtractor, store Store) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := func() (Session, error) { return session, nil }
	o := NewOrchestrator(cfg, sessions, ex, store, logger)
	o.backoff = func(int) time.Duration { return 0 }
	return o
}

func TestScrapeSinglePage(t *testing.T) {
	session := &fakeSession{pages: []string{"done:1"}}
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"done:1": {record("LIDL-1"), record("LIDL-2")},
	}}
	store := newFakeStore()

	o := newOrchestrator(testScraperConfig(), session, ex, store)
	result, err := o.Scrape(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 2, result.New)
	assert.True(t, session.closed)
	assert.Equal(t, [3]int{2, 2, 0}, store.completed[result.RunID])
	assert.Empty(t, store.failed)
}

func TestScrapeFollowsPagination(t *testing.T) {
	session := &fakeSession{pages: []string{"more:1", "more:2", "done:3"}, hasNext: true}
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"more:1": {record("LIDL-1")},
		"more:2": {record("LIDL-2")},
		"done:3": {record("LIDL-3")},
	}}
	store := newFakeStore()

	o := newOrchestrator(testScraperConfig(), session, ex, store)
	result, err := o.Scrape(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 2, session.clicks)
	assert.Len(t, store.saved, 3, "each page is persisted as its own batch")
}

func TestScrapeStopsAtPageCap(t *testing.T) {
	session := &fakeSession{pages: []string{"more:1", "more:2", "more:3"}, hasNext: true}
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"more:1": {record("LIDL-1")},
		"more:2": {record("LIDL-2")},
		"more:3": {record("LIDL-3")},
	}}
	store := newFakeStore()

	cfg := testScraperConfig()
	cfg.MaxPages = 2

	o := newOrchestrator(cfg, session, ex, store)
	result, err := o.Scrape(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.Found)
}

func TestScrapeStopsWhenClickFails(t *testing.T) {
	session := &fakeSession{pages: []string{"more:1"}, hasNext: true, clickErr: errors.New("not clickable")}
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"more:1": {record("LIDL-1")},
	}}
	store := newFakeStore()

	o := newOrchestrator(testScraperConfig(), session, ex, store)
	result, err := o.Scrape(context.Background())

	// A failed expansion click ends the crawl instead of looping forever.
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, store.completed, 1)
}

func TestScrapeRetriesAfterNavigationFailure(t *testing.T) {
	attempts := 0
	store := newFakeStore()
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"done:1": {record("LIDL-1")},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := func() (Session, error) {
		attempts++
		if attempts == 1 {
			return &fakeSession{navigateErr: errors.New("net::ERR_TIMED_OUT")}, nil
		}
		return &fakeSession{pages: []string{"done:1"}}, nil
	}

	o := NewOrchestrator(testScraperConfig(), sessions, ex, store, logger)
	o.backoff = func(int) time.Duration { return 0 }
	result, err := o.Scrape(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	// The failed attempt got its own run row, marked failed.
	require.Len(t, store.created, 2)
	assert.Contains(t, store.failed[store.created[0]], "ERR_TIMED_OUT")
	assert.Equal(t, result.RunID, store.created[1])
}

func TestScrapeGivesUpAfterMaxRetries(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := func() (Session, error) {
		return &fakeSession{navigateErr: errors.New("blocked")}, nil
	}

	cfg := testScraperConfig()
	o := NewOrchestrator(cfg, sessions, ex, store, logger)
	o.backoff = func(int) time.Duration { return 0 }

	_, err := o.Scrape(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("after %d attempts", cfg.MaxRetries))
	assert.Len(t, store.failed, cfg.MaxRetries)
}

func TestScrapeSalvagesUnsavedRecords(t *testing.T) {
	session := &fakeSession{pages: []string{"done:1"}}
	ex := &fakeExtractor{records: map[string][]extractor.Record{
		"done:1": {record("LIDL-1")},
	}}
	store := newFakeStore()
	store.saveErr = errors.New("connection reset")
	store.saveErrOnce = true

	cfg := testScraperConfig()
	cfg.MaxRetries = 1

	o := newOrchestrator(cfg, session, ex, store)
	_, err := o.Scrape(context.Background())

	require.Error(t, err)
	// The extracted-but-unsaved page was persisted by the salvage pass
	// before the run was marked failed.
	require.Len(t, store.saved, 1)
	assert.Equal(t, "LIDL-1", store.saved[0][0].SKU)
	assert.Len(t, store.failed, 1)
}

func TestScrapeHonorsContextCancellation(t *testing.T) {
	session := &fakeSession{pages: []string{"done:1"}}
	ex := &fakeExtractor{}
	store := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(testScraperConfig(), session, ex, store)
	_, err := o.Scrape(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryBackoffClamped(t *testing.T) {
	assert.Equal(t, 4*time.Second, retryBackoff(1))
	assert.Equal(t, 4*time.Second, retryBackoff(2))
	assert.Equal(t, 8*time.Second, retryBackoff(3))
	assert.Equal(t, 16*time.Second, retryBackoff(4))
	assert.Equal(t, 60*time.Second, retryBackoff(10))
}
