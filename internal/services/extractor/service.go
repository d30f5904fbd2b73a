// -----------------------------------------------------------------------
// Extractor Service - fetch, parse and reconcile newsletter categories
// -----------------------------------------------------------------------

package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
	"github.com/ternarybob/rangealert/internal/services/parser"
)

// Service runs the per-category pipeline: find the latest matching
// newsletter, parse its rows, and either commit them to the store or
// report the delta against the current contents. Categories are
// independent; one failing leaves the others untouched.
type Service struct {
	config  *common.SourceConfig
	source  interfaces.NewsletterSource
	parsers *parser.Registry
	storage interfaces.StockStorage
	logger  arbor.ILogger
}

// NewService creates the extraction orchestrator
func NewService(config *common.SourceConfig, source interfaces.NewsletterSource, parsers *parser.Registry, storage interfaces.StockStorage, logger arbor.ILogger) interfaces.ExtractorService {
	return &Service{
		config:  config,
		source:  source,
		parsers: parsers,
		storage: storage,
		logger:  logger,
	}
}

func (s *Service) ExtractCategories(ctx context.Context, categories []models.Category, mode interfaces.ExtractionMode) []models.CategoryResult {
	results := make([]models.CategoryResult, 0, len(categories))
	for _, category := range categories {
		result := s.extractOne(ctx, category, mode)
		if result.Error != "" {
			s.logger.Warn().
				Str("category", string(result.Category)).
				Str("error", result.Error).
				Msg("Category extraction failed")
		} else {
			s.logger.Info().
				Str("category", string(result.Category)).
				Int("rows", result.Rows).
				Int("dropped", result.Dropped).
				Msg("Category extracted")
		}
		results = append(results, result)
	}
	return results
}

func (s *Service) extractOne(ctx context.Context, category models.Category, mode interfaces.ExtractionMode) models.CategoryResult {
	result := models.CategoryResult{Category: category}

	subject, err := s.subjectFor(category)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	p := s.parsers.For(category)
	if p == nil {
		result.Error = fmt.Sprintf("no parser registered for category %s", category)
		return result
	}

	since := time.Now().Add(-s.config.Lookback)
	msg, err := s.source.Latest(ctx, subject, since)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	s.logger.Info().
		Str("category", string(category)).
		Str("subject", msg.Subject).
		Str("date", msg.Date.Format(time.RFC3339)).
		Msg("Newsletter located")

	rows, err := p.Parse(ctx, msg)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	valid, dropped := filterRows(rows, s.logger)
	result.Rows = len(valid)
	result.Dropped = dropped
	if len(valid) == 0 {
		result.Error = fmt.Sprintf("%v: all %d parsed rows invalid", models.ErrParse, len(rows))
		return result
	}

	switch mode {
	case interfaces.ModeCommit:
		if err := s.storage.ReplaceCategory(ctx, category, valid); err != nil {
			result.Error = err.Error()
			return result
		}
	case interfaces.ModeValidate, interfaces.ModeTest:
		s.reportDelta(ctx, category, valid)
	}

	return result
}

func (s *Service) subjectFor(category models.Category) (string, error) {
	switch category {
	case models.CategoryDaily:
		return s.config.DailySubject, nil
	case models.CategoryDigitalAssets:
		return s.config.CryptoSubject, nil
	case models.CategoryETFs:
		return s.config.ETFSubject, nil
	case models.CategoryIdeas:
		return s.config.IdeasSubject, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", models.ErrConfig, category)
	}
}

// filterRows drops rows that fail validation so one malformed line
// never blocks a reconcile.
func filterRows(rows []models.ExtractedRow, logger arbor.ILogger) ([]models.ExtractedRow, int) {
	valid := make([]models.ExtractedRow, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			logger.Debug().Str("ticker", row.Ticker).Err(err).Msg("Extracted row dropped")
			dropped++
			continue
		}
		valid = append(valid, row)
	}
	return valid, dropped
}

// reportDelta logs how a validate-mode run would change the stored
// category without writing anything.
func (s *Service) reportDelta(ctx context.Context, category models.Category, rows []models.ExtractedRow) {
	current, err := s.storage.ListCategory(ctx, category)
	if err != nil {
		s.logger.Warn().Err(err).Str("category", string(category)).Msg("Delta report unavailable")
		return
	}

	stored := make(map[string]*models.Stock, len(current))
	for _, stock := range current {
		stored[stock.Ticker] = stock
	}

	added, changed := 0, 0
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		seen[row.Ticker] = true
		prev, ok := stored[row.Ticker]
		if !ok {
			added++
			continue
		}
		if prev.BuyTrade != row.BuyTrade || prev.SellTrade != row.SellTrade || prev.Sentiment != row.Sentiment {
			changed++
		}
	}

	removed := 0
	for ticker := range stored {
		if !seen[ticker] {
			removed++
		}
	}

	s.logger.Info().
		Str("category", string(category)).
		Int("added", added).
		Int("removed", removed).
		Int("changed", changed).
		Int("unchanged", len(rows)-added-changed).
		Msg("Validate mode: no rows written")
}
