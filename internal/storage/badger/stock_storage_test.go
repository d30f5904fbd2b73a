package badger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rangealert/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func testRows() []models.ExtractedRow {
	return []models.ExtractedRow{
		{Ticker: "AAPL", Sentiment: models.SentimentBullish, BuyTrade: 225.10, SellTrade: 239.80},
		{Ticker: "NVDA", Sentiment: models.SentimentBearish, BuyTrade: 171.25, SellTrade: 184.50},
		{Ticker: "XLE", Sentiment: models.SentimentNeutral, BuyTrade: 88.40, SellTrade: 92.10},
	}
}

func TestReplaceCategory(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, testRows()))

	stocks, err := storage.ListCategory(ctx, models.CategoryDaily)
	require.NoError(t, err)
	require.Len(t, stocks, 3)

	// Sorted by ticker.
	assert.Equal(t, "AAPL", stocks[0].Ticker)
	assert.Equal(t, "NVDA", stocks[1].Ticker)
	assert.Equal(t, "XLE", stocks[2].Ticker)
	assert.Equal(t, models.SentimentBullish, stocks[0].Sentiment)
	assert.Equal(t, 225.10, stocks[0].BuyTrade)

	// Replacing again fully swaps the contents.
	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, []models.ExtractedRow{
		{Ticker: "TSLA", Sentiment: models.SentimentBullish, BuyTrade: 410.00, SellTrade: 455.00},
	}))

	stocks, err = storage.ListCategory(ctx, models.CategoryDaily)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "TSLA", stocks[0].Ticker)
}

func TestReplaceCategoryDuplicateKeepsLast(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	rows := []models.ExtractedRow{
		{Ticker: "AAPL", Sentiment: models.SentimentBullish, BuyTrade: 225.10, SellTrade: 239.80},
		{Ticker: "AAPL", Sentiment: models.SentimentBearish, BuyTrade: 220.00, SellTrade: 235.00},
	}
	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, rows))

	stocks, err := storage.ListCategory(ctx, models.CategoryDaily)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, models.SentimentBearish, stocks[0].Sentiment)
	assert.Equal(t, 220.00, stocks[0].BuyTrade)
}

func TestReplaceCategoryRollbackOnInvalidRow(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, testRows()))

	bad := []models.ExtractedRow{
		{Ticker: "MSFT", Sentiment: models.SentimentBullish, BuyTrade: 500, SellTrade: 520},
		{Ticker: "lower-case!", Sentiment: models.SentimentBullish, BuyTrade: 1, SellTrade: 2},
	}
	err := storage.ReplaceCategory(ctx, models.CategoryDaily, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStore)

	// Prior contents intact.
	stocks, err := storage.ListCategory(ctx, models.CategoryDaily)
	require.NoError(t, err)
	assert.Len(t, stocks, 3)
}

func TestReplaceCategoryIsolation(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, testRows()))
	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryETFs, []models.ExtractedRow{
		{Ticker: "GLD", Sentiment: models.SentimentBullish, BuyTrade: 310.00, SellTrade: 325.00},
	}))

	// Replacing ETFs never touches daily.
	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryETFs, []models.ExtractedRow{
		{Ticker: "XLU", Sentiment: models.SentimentNeutral, BuyTrade: 80.00, SellTrade: 84.00},
	}))

	count, err := storage.CountCategory(ctx, models.CategoryDaily)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := storage.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUpdatePrice(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDaily, testRows()))

	quote := models.Quote{Ticker: "AAPL", Price: 231.456, Source: "last"}
	require.NoError(t, storage.UpdatePrice(ctx, models.CategoryDaily, "AAPL", quote))

	stock, err := storage.GetStock(ctx, models.CategoryDaily, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 231.46, stock.LastPrice)
	assert.Equal(t, "last", stock.PriceSource)
	require.NotNil(t, stock.LastPriceUpdate)
	assert.WithinDuration(t, time.Now(), *stock.LastPriceUpdate, 5*time.Second)

	// Unknown ticker is an error.
	err = storage.UpdatePrice(ctx, models.CategoryDaily, "ZZZZ", quote)
	assert.ErrorIs(t, err, models.ErrStore)
}

func TestContractCache(t *testing.T) {
	storage := NewStockStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDigitalAssets, []models.ExtractedRow{
		{Ticker: "BTC", Sentiment: models.SentimentBullish, BuyTrade: 89012, SellTrade: 96968},
	}))

	// Cache miss returns nil without error.
	contract, err := storage.GetContract(ctx, models.CategoryDigitalAssets, "BTC")
	require.NoError(t, err)
	assert.Nil(t, contract)

	want := models.Contract{
		Kind:        models.KindCrypto,
		Symbol:      "BTC",
		LocalSymbol: "BTC",
		Exchange:    "PAXOS",
		Currency:    "USD",
	}
	require.NoError(t, storage.CacheContract(ctx, models.CategoryDigitalAssets, "BTC", want))

	contract, err = storage.GetContract(ctx, models.CategoryDigitalAssets, "BTC")
	require.NoError(t, err)
	require.NotNil(t, contract)
	assert.Equal(t, want, *contract)

	// ReplaceCategory drops the cached contract with the rows.
	require.NoError(t, storage.ReplaceCategory(ctx, models.CategoryDigitalAssets, []models.ExtractedRow{
		{Ticker: "ETH", Sentiment: models.SentimentBullish, BuyTrade: 3253, SellTrade: 3924},
	}))

	contract, err = storage.GetContract(ctx, models.CategoryDigitalAssets, "BTC")
	require.NoError(t, err)
	assert.Nil(t, contract)
}

func TestRunStorage(t *testing.T) {
	storage := NewRunStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		run := &models.SessionRun{
			ID:         "run-" + string(rune('a'+i)),
			Type:       models.RunExtraction,
			TradingDay: "2026-08-26",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Status:     models.RunStatusSuccess,
		}
		require.NoError(t, storage.SaveRun(ctx, run))
	}

	runs, err := storage.ListRuns(ctx, models.RunExtraction, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)

	got, err := storage.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, got.Status)

	_, err = storage.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrStore)
}
