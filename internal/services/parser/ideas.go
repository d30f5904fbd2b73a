package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

var (
	longsHeading  = regexp.MustCompile(`(?i)^#?\s*Longs\b`)
	shortsHeading = regexp.MustCompile(`(?i)^#?\s*Shorts\b`)
)

// IdeasParser extracts the weekly investing-ideas image: a two-section
// table (Longs then Shorts) delivered as a PNG. Longs are bullish,
// Shorts bearish; each row carries closing price then the trend range.
type IdeasParser struct {
	ocr    interfaces.OCRService
	logger arbor.ILogger
}

// NewIdeasParser creates the ideas newsletter parser
func NewIdeasParser(ocr interfaces.OCRService, logger arbor.ILogger) interfaces.Parser {
	return &IdeasParser{
		ocr:    ocr,
		logger: logger,
	}
}

func (p *IdeasParser) Category() models.Category {
	return models.CategoryIdeas
}

func (p *IdeasParser) Parse(ctx context.Context, msg *models.Message) ([]models.ExtractedRow, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: empty ideas newsletter", models.ErrParse)
	}

	var rows []models.ExtractedRow
	for _, img := range msg.InlineImages {
		table, err := p.ocr.Recognize(ctx, img.Data, "Longs and Shorts")
		if err != nil {
			p.logger.Warn().Err(err).Int("image_index", img.Index).Msg("Ideas image transcription failed")
			continue
		}
		rows = p.parseSections(table)
		if len(rows) > 0 {
			break
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no ideas rows extracted", models.ErrParse)
	}

	p.logger.Info().Int("rows", len(rows)).Msg("Ideas newsletter parsed")
	return rows, nil
}

// parseSections walks the transcription, switching sentiment at the
// Longs and Shorts headings.
func (p *IdeasParser) parseSections(table models.TableText) []models.ExtractedRow {
	var rows []models.ExtractedRow
	sentiment := models.SentimentBullish

	for _, cells := range table.Rows {
		line := strings.TrimSpace(strings.Join(cells, " "))
		if longsHeading.MatchString(line) {
			sentiment = models.SentimentBullish
			continue
		}
		if shortsHeading.MatchString(line) {
			sentiment = models.SentimentBearish
			continue
		}

		row, ok := p.parseRow(cells, sentiment)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func (p *IdeasParser) parseRow(cells []string, sentiment models.Sentiment) (models.ExtractedRow, bool) {
	if populatedCells(cells) < 3 {
		return models.ExtractedRow{}, false
	}

	ticker := common.NormalizeTicker(cells[0])
	if !isIdeasTicker(ticker) {
		return models.ExtractedRow{}, false
	}

	// Columns: ticker, closing price, trend low, trend high. The
	// closing price is skipped.
	numbers := ExtractNumbers(strings.Join(cells[1:], " "))
	var buy, sell float64
	switch {
	case len(numbers) >= 3:
		buy, sell = numbers[1], numbers[2]
	case len(numbers) == 2:
		buy, sell = numbers[0], numbers[1]
	default:
		p.logger.Debug().Str("ticker", ticker).Msg("Ideas row without levels dropped")
		return models.ExtractedRow{}, false
	}

	return models.ExtractedRow{
		Ticker:    ticker,
		Sentiment: sentiment,
		BuyTrade:  buy,
		SellTrade: sell,
	}, true
}

var ideasTickerPattern = regexp.MustCompile(`^[A-Z]{2,5}$`)

func isIdeasTicker(ticker string) bool {
	if !ideasTickerPattern.MatchString(ticker) {
		return false
	}
	switch ticker {
	case "STOCK", "LONGS", "SHORT", "TREND", "PRICE", "RANGE", "CLOSE":
		return false
	}
	return true
}
