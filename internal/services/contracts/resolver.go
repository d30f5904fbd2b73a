// -----------------------------------------------------------------------
// Contract Resolver - maps newsletter tickers to tradeable instruments
// -----------------------------------------------------------------------

package contracts

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// Resolver classifies tickers into contract kinds and fills in the
// exchange routing. Resolution order: explicit overrides, the category
// default, then symbol pattern heuristics. Results are cached in
// the store; ReplaceCategory invalidates the cache with the rows.
type Resolver struct {
	storage interfaces.StockStorage
	logger  arbor.ILogger
}

// NewResolver creates a contract resolver backed by the store cache
func NewResolver(storage interfaces.StockStorage, logger arbor.ILogger) interfaces.ContractResolver {
	return &Resolver{
		storage: storage,
		logger:  logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, stock *models.Stock) (models.Contract, error) {
	if cached, err := r.storage.GetContract(ctx, stock.Category, stock.Ticker); err == nil && cached != nil {
		return *cached, nil
	}

	contract := classify(stock.Category, stock.Ticker)

	if err := r.storage.CacheContract(ctx, stock.Category, stock.Ticker, contract); err != nil {
		// A cold cache only costs re-resolution next session.
		r.logger.Warn().Err(err).Str("ticker", stock.Ticker).Msg("Failed to cache contract")
	}

	r.logger.Debug().
		Str("ticker", stock.Ticker).
		Str("kind", string(contract.Kind)).
		Str("exchange", contract.Exchange).
		Msg("Contract resolved")

	return contract, nil
}

// classify applies overrides, category defaults and symbol patterns.
func classify(category models.Category, ticker string) models.Contract {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	// Crypto-newsletter rows that trade as listed equities.
	if common.IsCryptoStock(symbol) {
		return stockContract(symbol, ticker)
	}

	// The category default outranks symbol heuristics: an index-style
	// symbol published in the ETF letter still routes as an ETF.
	switch category {
	case models.CategoryDigitalAssets:
		return cryptoContract(strings.TrimSuffix(symbol, "-USD"), ticker)
	case models.CategoryETFs:
		return models.Contract{
			Kind:        models.KindETF,
			Symbol:      symbol,
			LocalSymbol: ticker,
			Exchange:    "SMART",
			Currency:    "USD",
		}
	}

	switch {
	case strings.HasSuffix(symbol, "=F"):
		return models.Contract{
			Kind:        models.KindFuture,
			Symbol:      strings.TrimSuffix(symbol, "=F"),
			LocalSymbol: ticker,
			Exchange:    "CME",
			Currency:    "USD",
		}
	case strings.HasPrefix(symbol, "^"):
		return models.Contract{
			Kind:        models.KindIndex,
			Symbol:      strings.TrimPrefix(symbol, "^"),
			LocalSymbol: ticker,
			Exchange:    "CBOE",
			Currency:    "USD",
		}
	case strings.HasSuffix(symbol, "-USD"):
		return cryptoContract(strings.TrimSuffix(symbol, "-USD"), ticker)
	}

	return stockContract(symbol, ticker)
}

func stockContract(symbol, local string) models.Contract {
	return models.Contract{
		Kind:        models.KindStock,
		Symbol:      symbol,
		LocalSymbol: local,
		Exchange:    "SMART",
		Currency:    "USD",
	}
}

func cryptoContract(symbol, local string) models.Contract {
	return models.Contract{
		Kind:        models.KindCrypto,
		Symbol:      symbol,
		LocalSymbol: local,
		Exchange:    "PAXOS",
		Currency:    "USD",
	}
}
