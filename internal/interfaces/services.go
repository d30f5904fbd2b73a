package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/rangealert/internal/models"
)

// NewsletterSource retrieves newsletter emails from the mailbox.
type NewsletterSource interface {
	// Latest returns the most recent message whose subject contains the
	// given phrase within the lookback window, or ErrNoMessage.
	Latest(ctx context.Context, subject string, since time.Time) (*models.Message, error)
	Close() error
}

// OCRService transcribes a table image into rows of cells.
type OCRService interface {
	Recognize(ctx context.Context, image []byte, hint string) (models.TableText, error)
}

// Parser extracts ticker rows from one newsletter message.
type Parser interface {
	Category() models.Category
	Parse(ctx context.Context, msg *models.Message) ([]models.ExtractedRow, error)
}

// ExtractionMode controls whether parsed rows are committed.
type ExtractionMode string

const (
	ModeCommit   ExtractionMode = "commit"
	ModeValidate ExtractionMode = "validate"
	ModeTest     ExtractionMode = "test"
)

// ExtractorService runs the fetch-parse-reconcile pipeline.
type ExtractorService interface {
	// ExtractCategories processes each category independently and
	// returns a per-category result. A failure in one category never
	// affects another.
	ExtractCategories(ctx context.Context, categories []models.Category, mode ExtractionMode) []models.CategoryResult
}

// ContractResolver maps a ticker row to its tradeable instrument.
type ContractResolver interface {
	Resolve(ctx context.Context, stock *models.Stock) (models.Contract, error)
}

// PriceFetcher snapshots current prices for the active rows.
type PriceFetcher interface {
	// FetchPrices resolves and quotes every row. Per-ticker failures
	// are reported in the result, not as the batch error; only a
	// gateway-level failure aborts the batch.
	FetchPrices(ctx context.Context, stocks []*models.Stock) (*models.PriceBatch, error)
}

// AlertEvaluator turns priced rows into deduplicated alerts.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, stocks []*models.Stock, session models.Session, tradingDay string) []models.Alert
}

// NotifierService delivers the alert digest.
type NotifierService interface {
	// SendDigest emails the session's alerts. An empty list sends
	// nothing and returns nil.
	SendDigest(ctx context.Context, alerts []models.Alert, session models.Session, day string) error
}

// SchedulerService manages the cron-driven workflows.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool

	// RunExtraction and RunAlerts trigger workflows manually; the
	// scheduler uses the same entry points.
	RunExtraction(ctx context.Context) (*models.SessionRun, error)
	RunAlerts(ctx context.Context, session models.Session) (*models.SessionRun, error)
}
