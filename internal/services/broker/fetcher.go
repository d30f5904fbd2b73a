package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// Gateway is the quote session the fetcher fans out over.
type Gateway interface {
	Connect(ctx context.Context) error
	Snapshot(ctx context.Context, contract models.Contract) (*Snapshot, error)
	Close() error
}

// Fetcher snapshots prices for the active rows. A failed dial fails
// the batch; everything after that is a per-ticker outcome.
type Fetcher struct {
	gateway     Gateway
	resolver    interfaces.ContractResolver
	storage     interfaces.StockStorage
	timeout     time.Duration
	parallelism int
	logger      arbor.ILogger
}

// NewFetcher creates the batch price fetcher
func NewFetcher(config *common.BrokerConfig, parallelism int, gateway Gateway, resolver interfaces.ContractResolver, storage interfaces.StockStorage, logger arbor.ILogger) interfaces.PriceFetcher {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Fetcher{
		gateway:     gateway,
		resolver:    resolver,
		storage:     storage,
		timeout:     config.Timeout,
		parallelism: parallelism,
		logger:      logger,
	}
}

func (f *Fetcher) FetchPrices(ctx context.Context, stocks []*models.Stock) (*models.PriceBatch, error) {
	batch := models.NewPriceBatch()
	if len(stocks) == 0 {
		return batch, nil
	}

	if err := f.gateway.Connect(ctx); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.parallelism)

	for _, stock := range stocks {
		wg.Add(1)
		sem <- struct{}{}
		go func(stock *models.Stock) {
			defer wg.Done()
			defer func() { <-sem }()

			quote, err := f.fetchOne(ctx, stock)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failures = append(batch.Failures, models.QuoteFailure{
					Ticker: stock.Ticker,
					Reason: err.Error(),
				})
				return
			}
			batch.Quotes[stock.Ticker] = *quote
		}(stock)
	}
	wg.Wait()

	f.logger.Info().
		Int("quotes", len(batch.Quotes)).
		Int("failures", len(batch.Failures)).
		Msg("Price batch complete")
	return batch, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, stock *models.Stock) (*models.Quote, error) {
	tickerCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	contract, err := f.resolver.Resolve(tickerCtx, stock)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", stock.Ticker, err)
	}

	snap, err := f.gateway.Snapshot(tickerCtx, contract)
	if err != nil {
		return nil, err
	}

	price, source, ok := selectPrice(snap)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no usable field in snapshot", models.ErrNoQuote, stock.Ticker)
	}

	quote := models.Quote{Ticker: stock.Ticker, Price: common.Round2(price), Source: source}
	if err := f.storage.UpdatePrice(ctx, stock.Category, stock.Ticker, quote); err != nil {
		// The evaluator still gets the in-memory quote.
		f.logger.Warn().Err(err).Str("ticker", stock.Ticker).Msg("Failed to persist price")
	}

	f.logger.Debug().
		Str("ticker", stock.Ticker).
		Float64("price", quote.Price).
		Str("source", source).
		Msg("Quote")
	return &quote, nil
}

// selectPrice walks the fallback chain: last trade, then previous
// close, then the bid/ask midpoint.
func selectPrice(snap *Snapshot) (float64, string, bool) {
	if v, ok := usable(snap.Last); ok {
		return v, "last", true
	}
	if v, ok := usable(snap.Close); ok {
		return v, "close", true
	}
	bid, okBid := usable(snap.Bid)
	ask, okAsk := usable(snap.Ask)
	if okBid && okAsk {
		return (bid + ask) / 2, "midpoint", true
	}
	return 0, "", false
}

func usable(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || *v <= 0 {
		return 0, false
	}
	return *v, true
}

// IsGatewayDown reports whether an error means the whole session is
// unusable rather than one ticker failing.
func IsGatewayDown(err error) bool {
	return errors.Is(err, models.ErrBrokerUnavailable)
}
