package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/calendar"
	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
	"github.com/ternarybob/rangealert/internal/services/alerts"
)

type fakeExtractor struct {
	results    []models.CategoryResult
	categories []models.Category
}

func (f *fakeExtractor) ExtractCategories(ctx context.Context, categories []models.Category, mode interfaces.ExtractionMode) []models.CategoryResult {
	f.categories = categories
	if f.results != nil {
		return f.results
	}
	results := make([]models.CategoryResult, 0, len(categories))
	for _, c := range categories {
		results = append(results, models.CategoryResult{Category: c, Rows: 5})
	}
	return results
}

type fakeFetcher struct {
	batch *models.PriceBatch
	err   error
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, stocks []*models.Stock) (*models.PriceBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

type fakeEvaluator struct {
	alerts   []models.Alert
	received []*models.Stock
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, stocks []*models.Stock, session models.Session, tradingDay string) []models.Alert {
	f.received = stocks
	return f.alerts
}

type fakeNotifier struct {
	sent []models.Alert
	err  error
}

func (f *fakeNotifier) SendDigest(ctx context.Context, alerts []models.Alert, session models.Session, day string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = alerts
	return nil
}

type fakeManager struct {
	stocks fakeStocks
	runs   fakeRuns
}

func (m *fakeManager) Stocks() interfaces.StockStorage { return &m.stocks }
func (m *fakeManager) Runs() interfaces.RunStorage     { return &m.runs }
func (m *fakeManager) Close() error                    { return nil }

type fakeStocks struct {
	active []*models.Stock
}

func (f *fakeStocks) ReplaceCategory(ctx context.Context, category models.Category, rows []models.ExtractedRow) error {
	return nil
}

func (f *fakeStocks) GetStock(ctx context.Context, category models.Category, ticker string) (*models.Stock, error) {
	return nil, nil
}

func (f *fakeStocks) ListCategory(ctx context.Context, category models.Category) ([]*models.Stock, error) {
	return nil, nil
}

func (f *fakeStocks) ListActive(ctx context.Context) ([]*models.Stock, error) {
	return f.active, nil
}

func (f *fakeStocks) UpdatePrice(ctx context.Context, category models.Category, ticker string, quote models.Quote) error {
	return nil
}

func (f *fakeStocks) CacheContract(ctx context.Context, category models.Category, ticker string, contract models.Contract) error {
	return nil
}

func (f *fakeStocks) GetContract(ctx context.Context, category models.Category, ticker string) (*models.Contract, error) {
	return nil, nil
}

func (f *fakeStocks) CountCategory(ctx context.Context, category models.Category) (int, error) {
	return 0, nil
}

type fakeRuns struct {
	saved []*models.SessionRun
}

func (f *fakeRuns) SaveRun(ctx context.Context, run *models.SessionRun) error {
	f.saved = append(f.saved, run)
	return nil
}

func (f *fakeRuns) GetRun(ctx context.Context, id string) (*models.SessionRun, error) {
	return nil, nil
}

func (f *fakeRuns) ListRuns(ctx context.Context, runType models.RunType, limit int) ([]*models.SessionRun, error) {
	return nil, nil
}

type deps struct {
	extractor *fakeExtractor
	fetcher   *fakeFetcher
	evaluator *fakeEvaluator
	notifier  *fakeNotifier
	manager   *fakeManager
}

func newTestScheduler(t *testing.T, d *deps, at time.Time) *Service {
	t.Helper()
	config := common.NewDefaultConfig()
	cal := calendar.New(config.Location())
	svc := NewService(config, d.extractor, d.fetcher, d.evaluator, d.notifier, d.manager, cal, arbor.NewLogger()).(*Service)
	svc.now = func() time.Time { return at }
	return svc
}

func defaultDeps() *deps {
	return &deps{
		extractor: &fakeExtractor{},
		fetcher:   &fakeFetcher{batch: models.NewPriceBatch()},
		evaluator: &fakeEvaluator{},
		notifier:  &fakeNotifier{},
		manager:   &fakeManager{},
	}
}

func marketTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	at, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return at
}

func TestRunExtractionDailyOnly(t *testing.T) {
	d := defaultDeps()
	// Wednesday: daily categories only.
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 09:00"))

	run, err := svc.RunExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, "2026-08-26", run.TradingDay)
	assert.ElementsMatch(t, []models.Category{models.CategoryDaily, models.CategoryDigitalAssets}, d.extractor.categories)

	require.Len(t, d.manager.runs.saved, 1)
	assert.Equal(t, models.RunExtraction, d.manager.runs.saved[0].Type)
}

func TestRunExtractionFirstMarketDayAddsWeekly(t *testing.T) {
	d := defaultDeps()
	// Monday.
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-24 09:00"))

	run, err := svc.RunExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.ElementsMatch(t, []models.Category{
		models.CategoryDaily, models.CategoryDigitalAssets,
		models.CategoryETFs, models.CategoryIdeas,
	}, d.extractor.categories)
}

func TestRunExtractionSkipsWeekend(t *testing.T) {
	d := defaultDeps()
	// Saturday.
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-29 09:00"))

	run, err := svc.RunExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSkipped, run.Status)
	assert.Nil(t, d.extractor.categories)
	require.Len(t, d.manager.runs.saved, 1)
}

func TestRunExtractionAllNoMessage(t *testing.T) {
	d := defaultDeps()
	d.extractor.results = []models.CategoryResult{
		{Category: models.CategoryDaily, Error: models.ErrNoMessage.Error()},
		{Category: models.CategoryDigitalAssets, Error: models.ErrNoMessage.Error()},
	}
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 09:00"))

	run, err := svc.RunExtraction(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoMessage)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunExtractionPartial(t *testing.T) {
	d := defaultDeps()
	d.extractor.results = []models.CategoryResult{
		{Category: models.CategoryDaily, Rows: 20},
		{Category: models.CategoryDigitalAssets, Error: "ocr transcription failed"},
	}
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 09:00"))

	run, err := svc.RunExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, run.Status)
}

func TestRunAlerts(t *testing.T) {
	d := defaultDeps()
	d.manager.stocks.active = []*models.Stock{
		{Ticker: "AAPL", Category: models.CategoryDaily, Sentiment: models.SentimentBullish, BuyTrade: 225.10, SellTrade: 239.80},
	}
	d.fetcher.batch.Quotes["AAPL"] = models.Quote{Ticker: "AAPL", Price: 224.50, Source: "last"}
	d.evaluator.alerts = []models.Alert{{Ticker: "AAPL", Kind: models.AlertBuy}}
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 10:45"))

	run, err := svc.RunAlerts(context.Background(), models.SessionAM)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, models.RunAlertsAM, run.Type)
	assert.Equal(t, 1, run.Quotes)
	assert.Equal(t, 1, run.Alerts)
	require.Len(t, d.notifier.sent, 1)

	// The evaluator saw the fresh quote.
	assert.Equal(t, 224.50, d.manager.stocks.active[0].LastPrice)
}

func TestRunAlertsSkipsUnpricedRows(t *testing.T) {
	d := defaultDeps()
	// Stale AM price sitting below the buy level; the PM fetch for the
	// ticker failed, so no alert may fire from the old price.
	d.manager.stocks.active = []*models.Stock{
		{Ticker: "AAPL", Category: models.CategoryDaily, Sentiment: models.SentimentBullish,
			BuyTrade: 150.00, SellTrade: 162.00, LastPrice: 149.50, PriceSource: "last"},
		{Ticker: "TSLA", Category: models.CategoryDaily, Sentiment: models.SentimentBullish,
			BuyTrade: 400.00, SellTrade: 455.00},
	}
	d.fetcher.batch.Quotes["TSLA"] = models.Quote{Ticker: "TSLA", Price: 420.00, Source: "last"}
	d.fetcher.batch.Failures = []models.QuoteFailure{{Ticker: "AAPL", Reason: "no quote"}}
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 14:30"))

	run, err := svc.RunAlerts(context.Background(), models.SessionPM)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Alerts)
	assert.Equal(t, models.RunStatusPartial, run.Status)

	require.Len(t, d.evaluator.received, 1)
	assert.Equal(t, "TSLA", d.evaluator.received[0].Ticker)
}

func TestRunAlertsUnpricedRowFiresNothing(t *testing.T) {
	d := defaultDeps()
	d.manager.stocks.active = []*models.Stock{
		{Ticker: "AAPL", Category: models.CategoryDaily, Sentiment: models.SentimentBullish,
			BuyTrade: 150.00, SellTrade: 162.00, LastPrice: 149.50, PriceSource: "last"},
	}
	d.fetcher.batch.Failures = []models.QuoteFailure{{Ticker: "AAPL", Reason: "no quote"}}

	config := common.NewDefaultConfig()
	cal := calendar.New(config.Location())
	// Real evaluator: the stale 149.50 would cross the 150.00 buy level
	// if the unpriced row leaked through.
	svc := NewService(config, d.extractor, d.fetcher, alerts.NewEvaluator(arbor.NewLogger()), d.notifier, d.manager, cal, arbor.NewLogger()).(*Service)
	at := marketTime(t, "2026-08-26 14:30")
	svc.now = func() time.Time { return at }

	run, err := svc.RunAlerts(context.Background(), models.SessionPM)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Alerts)
	assert.Empty(t, d.notifier.sent)
}

func TestRunAlertsGatewayDown(t *testing.T) {
	d := defaultDeps()
	d.manager.stocks.active = []*models.Stock{{Ticker: "AAPL", Category: models.CategoryDaily}}
	d.fetcher.err = models.ErrBrokerUnavailable
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 10:45"))

	run, err := svc.RunAlerts(context.Background(), models.SessionAM)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBrokerUnavailable)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunAlertsEmptyStore(t *testing.T) {
	d := defaultDeps()
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 14:30"))

	run, err := svc.RunAlerts(context.Background(), models.SessionPM)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSkipped, run.Status)
	assert.Equal(t, models.RunAlertsPM, run.Type)
}

func TestRunAlertsMailFailure(t *testing.T) {
	d := defaultDeps()
	d.manager.stocks.active = []*models.Stock{{Ticker: "AAPL", Category: models.CategoryDaily}}
	d.fetcher.batch.Quotes["AAPL"] = models.Quote{Ticker: "AAPL", Price: 210.00, Source: "last"}
	d.evaluator.alerts = []models.Alert{{Ticker: "AAPL", Kind: models.AlertBuy}}
	d.notifier.err = models.ErrMail
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 10:45"))

	run, err := svc.RunAlerts(context.Background(), models.SessionAM)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMail)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestStartStop(t *testing.T) {
	d := defaultDeps()
	svc := newTestScheduler(t, d, marketTime(t, "2026-08-26 08:00"))

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	assert.Error(t, svc.Start())

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
}
