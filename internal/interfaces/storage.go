package interfaces

import (
	"context"

	"github.com/ternarybob/rangealert/internal/models"
)

// StockStorage - interface for reconciled ticker-row persistence
type StockStorage interface {
	// ReplaceCategory atomically swaps a category's contents for the
	// given rows. On error the category's prior contents are intact.
	ReplaceCategory(ctx context.Context, category models.Category, rows []models.ExtractedRow) error

	// GetStock returns one row by its category|ticker key.
	GetStock(ctx context.Context, category models.Category, ticker string) (*models.Stock, error)

	// ListCategory returns all rows of one category.
	ListCategory(ctx context.Context, category models.Category) ([]*models.Stock, error)

	// ListActive returns all rows across categories.
	ListActive(ctx context.Context) ([]*models.Stock, error)

	// UpdatePrice records a broker snapshot for one row. Updates with a
	// timestamp older than the stored one are ignored.
	UpdatePrice(ctx context.Context, category models.Category, ticker string, quote models.Quote) error

	// Contract cache, invalidated by ReplaceCategory.
	CacheContract(ctx context.Context, category models.Category, ticker string, contract models.Contract) error
	GetContract(ctx context.Context, category models.Category, ticker string) (*models.Contract, error)

	CountCategory(ctx context.Context, category models.Category) (int, error)
}

// RunStorage - interface for workflow run history
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.SessionRun) error
	GetRun(ctx context.Context, id string) (*models.SessionRun, error)
	ListRuns(ctx context.Context, runType models.RunType, limit int) ([]*models.SessionRun, error)
}

// StorageManager aggregates the per-entity storages over one database.
type StorageManager interface {
	Stocks() StockStorage
	Runs() RunStorage
	Close() error
}
