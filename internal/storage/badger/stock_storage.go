package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// StockStorage implements the StockStorage interface for Badger
type StockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Serializes writers per category. Readers see either the old or
	// the new contents of a category, never a mix.
	mu    sync.Mutex
	locks map[models.Category]*sync.Mutex
}

// NewStockStorage creates a new StockStorage instance
func NewStockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StockStorage {
	return &StockStorage{
		db:     db,
		logger: logger,
		locks:  make(map[models.Category]*sync.Mutex),
	}
}

func (s *StockStorage) categoryLock(category models.Category) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[category]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[category] = lock
	}
	return lock
}

// ReplaceCategory swaps a category's contents in one transaction:
// delete everything under the category, then insert the new rows. A
// failed transaction leaves the prior contents intact. Duplicate
// tickers keep the last occurrence. Contract cache entries for the
// category are dropped alongside the rows.
func (s *StockStorage) ReplaceCategory(ctx context.Context, category models.Category, rows []models.ExtractedRow) error {
	lock := s.categoryLock(category)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	// Last occurrence wins for duplicate tickers.
	deduped := make(map[string]models.ExtractedRow, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStore, err)
		}
		if _, seen := deduped[row.Ticker]; !seen {
			order = append(order, row.Ticker)
		}
		deduped[row.Ticker] = row
	}

	store := s.db.Store()
	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		if err := store.TxDeleteMatching(tx, &models.Stock{}, badgerhold.Where("Category").Eq(category)); err != nil {
			return fmt.Errorf("failed to clear category %s: %w", category, err)
		}
		if err := store.TxDeleteMatching(tx, &models.CachedContract{}, badgerhold.Where("Category").Eq(category)); err != nil {
			return fmt.Errorf("failed to clear contract cache for %s: %w", category, err)
		}

		for _, ticker := range order {
			row := deduped[ticker]
			stock := &models.Stock{
				ID:        models.StockKey(category, row.Ticker),
				Ticker:    row.Ticker,
				Category:  category,
				Sentiment: row.Sentiment,
				BuyTrade:  common.Round2(row.BuyTrade),
				SellTrade: common.Round2(row.SellTrade),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := store.TxInsert(tx, stock.ID, stock); err != nil {
				return fmt.Errorf("failed to insert %s: %w", stock.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace category %s: %v", models.ErrStore, category, err)
	}

	s.logger.Info().
		Str("category", string(category)).
		Int("rows", len(deduped)).
		Msg("Category contents replaced")

	return nil
}

func (s *StockStorage) GetStock(ctx context.Context, category models.Category, ticker string) (*models.Stock, error) {
	var stock models.Stock
	if err := s.db.Store().Get(models.StockKey(category, ticker), &stock); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: stock not found: %s/%s", models.ErrStore, category, ticker)
		}
		return nil, fmt.Errorf("%w: failed to get stock: %v", models.ErrStore, err)
	}
	return &stock, nil
}

func (s *StockStorage) ListCategory(ctx context.Context, category models.Category) ([]*models.Stock, error) {
	var stocks []models.Stock
	err := s.db.Store().Find(&stocks, badgerhold.Where("Category").Eq(category).SortBy("Ticker"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list category %s: %v", models.ErrStore, category, err)
	}
	result := make([]*models.Stock, len(stocks))
	for i := range stocks {
		result[i] = &stocks[i]
	}
	return result, nil
}

func (s *StockStorage) ListActive(ctx context.Context) ([]*models.Stock, error) {
	var stocks []models.Stock
	err := s.db.Store().Find(&stocks, badgerhold.Where("ID").Ne("").SortBy("Category", "Ticker"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list stocks: %v", models.ErrStore, err)
	}
	result := make([]*models.Stock, len(stocks))
	for i := range stocks {
		result[i] = &stocks[i]
	}
	return result, nil
}

// UpdatePrice records a quote snapshot. LastPriceUpdate is monotonic:
// a snapshot older than the stored one is dropped.
func (s *StockStorage) UpdatePrice(ctx context.Context, category models.Category, ticker string, quote models.Quote) error {
	lock := s.categoryLock(category)
	lock.Lock()
	defer lock.Unlock()

	stock, err := s.GetStock(ctx, category, ticker)
	if err != nil {
		return err
	}

	now := time.Now()
	if stock.LastPriceUpdate != nil && stock.LastPriceUpdate.After(now) {
		s.logger.Debug().
			Str("ticker", ticker).
			Msg("Skipping stale price update")
		return nil
	}

	stock.LastPrice = common.Round2(quote.Price)
	stock.PriceSource = quote.Source
	stock.LastPriceUpdate = &now
	stock.UpdatedAt = now

	if err := s.db.Store().Upsert(stock.ID, stock); err != nil {
		return fmt.Errorf("%w: failed to update price for %s: %v", models.ErrStore, stock.ID, err)
	}
	return nil
}

func (s *StockStorage) CacheContract(ctx context.Context, category models.Category, ticker string, contract models.Contract) error {
	cached := &models.CachedContract{
		Key:        models.StockKey(category, ticker),
		Category:   category,
		Contract:   contract,
		ResolvedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(cached.Key, cached); err != nil {
		return fmt.Errorf("%w: failed to cache contract for %s: %v", models.ErrStore, cached.Key, err)
	}
	return nil
}

func (s *StockStorage) GetContract(ctx context.Context, category models.Category, ticker string) (*models.Contract, error) {
	var cached models.CachedContract
	if err := s.db.Store().Get(models.StockKey(category, ticker), &cached); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to get contract: %v", models.ErrStore, err)
	}
	return &cached.Contract, nil
}

func (s *StockStorage) CountCategory(ctx context.Context, category models.Category) (int, error) {
	count, err := s.db.Store().Count(&models.Stock{}, badgerhold.Where("Category").Eq(category))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count category %s: %v", models.ErrStore, category, err)
	}
	return int(count), nil
}
