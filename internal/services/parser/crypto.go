package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

const (
	coinTableHint       = "RISK RANGES"
	derivativeTableHint = "DIRECT & DERIVATIVE EXPOSURES"
)

// CryptoParser extracts the crypto newsletter's two table images: the
// coin risk-range table and the direct/derivative exposure table. The
// tables arrive as inline images at known positions in the MIME tree
// and go through OCR.
type CryptoParser struct {
	ocr    interfaces.OCRService
	config *common.OCRConfig
	logger arbor.ILogger
}

// NewCryptoParser creates the crypto newsletter parser
func NewCryptoParser(ocr interfaces.OCRService, config *common.OCRConfig, logger arbor.ILogger) interfaces.Parser {
	return &CryptoParser{
		ocr:    ocr,
		config: config,
		logger: logger,
	}
}

func (p *CryptoParser) Category() models.Category {
	return models.CategoryDigitalAssets
}

func (p *CryptoParser) Parse(ctx context.Context, msg *models.Message) ([]models.ExtractedRow, error) {
	if msg == nil || len(msg.InlineImages) == 0 {
		return nil, fmt.Errorf("%w: crypto newsletter has no inline images", models.ErrParse)
	}

	hints := []string{coinTableHint, derivativeTableHint}
	var rows []models.ExtractedRow

	// The two tables normally sit at fixed image positions. When the
	// layout shifts, fall back to scanning every image.
	indices := p.config.CryptoImageIndices
	found := 0
	for i, idx := range indices {
		if i >= len(hints) || idx < 0 || idx >= len(msg.InlineImages) {
			continue
		}
		extracted, err := p.recognizeTable(ctx, msg.InlineImages[idx].Data, hints[i])
		if err != nil {
			p.logger.Warn().Err(err).Int("image_index", idx).Msg("Crypto table transcription failed")
			continue
		}
		rows = append(rows, extracted...)
		found++
	}

	if found < len(hints) {
		p.logger.Info().
			Int("found", found).
			Int("images", len(msg.InlineImages)).
			Msg("Scanning all inline images for crypto tables")
		rows = p.scanImages(ctx, msg, rows)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no crypto rows extracted", models.ErrParse)
	}

	p.logger.Info().Int("rows", len(rows)).Msg("Crypto newsletter parsed")
	return rows, nil
}

// scanImages OCRs the remaining images until both tables are seen.
func (p *CryptoParser) scanImages(ctx context.Context, msg *models.Message, rows []models.ExtractedRow) []models.ExtractedRow {
	haveCoins := containsCoin(rows)
	haveStocks := containsStock(rows)

	configured := make(map[int]bool, len(p.config.CryptoImageIndices))
	for _, idx := range p.config.CryptoImageIndices {
		configured[idx] = true
	}

	for _, img := range msg.InlineImages {
		if haveCoins && haveStocks {
			break
		}
		if configured[img.Index] {
			continue
		}

		table, err := p.ocr.Recognize(ctx, img.Data, "")
		if err != nil {
			continue
		}
		title := tableTitle(table)
		switch {
		case !haveCoins && strings.Contains(title, coinTableHint):
			rows = append(rows, p.parseTable(table)...)
			haveCoins = containsCoin(rows)
		case !haveStocks && strings.Contains(title, "DERIVATIVE EXPOSURES"):
			rows = append(rows, p.parseTable(table)...)
			haveStocks = containsStock(rows)
		}
	}
	return rows
}

func (p *CryptoParser) recognizeTable(ctx context.Context, image []byte, hint string) ([]models.ExtractedRow, error) {
	table, err := p.ocr.Recognize(ctx, image, hint)
	if err != nil {
		return nil, err
	}
	rows := p.parseTable(table)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table %q produced no rows", models.ErrParse, hint)
	}
	return rows, nil
}

// parseTable reads a transcribed table: ticker in the first cell, then
// price / buy / sell columns. The price column is skipped.
func (p *CryptoParser) parseTable(table models.TableText) []models.ExtractedRow {
	var rows []models.ExtractedRow
	for _, cells := range table.Rows {
		if populatedCells(cells) < 3 {
			continue
		}
		first := strings.TrimSpace(cells[0])
		if first == "" || isCryptoHeaderCell(first) {
			continue
		}

		ticker := common.NormalizeTicker(first)
		if !models.ValidTicker(ticker) {
			continue
		}

		rest := strings.Join(cells[1:], " ")
		numbers := ExtractNumbers(rest)
		var buy, sell float64
		switch {
		case len(numbers) >= 3:
			// price, buy, sell
			buy, sell = numbers[1], numbers[2]
		case len(numbers) == 2:
			buy, sell = numbers[0], numbers[1]
		default:
			p.logger.Debug().Str("ticker", ticker).Msg("Crypto row without levels dropped")
			continue
		}

		rows = append(rows, models.ExtractedRow{
			Ticker:    ticker,
			Sentiment: rowSentiment(cells, p.logger, ticker),
			BuyTrade:  buy,
			SellTrade: sell,
		})
	}
	return rows
}

// rowSentiment finds a sentiment token anywhere in the row; rows
// without one default to neutral.
func rowSentiment(cells []string, logger arbor.ILogger, ticker string) models.Sentiment {
	joined := strings.ToUpper(strings.Join(cells, " "))
	switch {
	case strings.Contains(joined, "BULLISH"):
		return models.SentimentBullish
	case strings.Contains(joined, "BEARISH"):
		return models.SentimentBearish
	case strings.Contains(joined, "NEUTRAL"):
		return models.SentimentNeutral
	default:
		logger.Debug().Str("ticker", ticker).Msg("Row without sentiment token, defaulting to neutral")
		return models.SentimentNeutral
	}
}

func isCryptoHeaderCell(cell string) bool {
	c := strings.ToUpper(cell)
	for _, token := range []string{"TICKER", "PRICE", "TREND", "RISK RANGE", "HEDGEYE", "DERIVATIVE", "EXPOSURE", "SIGNAL"} {
		if strings.Contains(c, token) {
			return true
		}
	}
	return false
}

func tableTitle(table models.TableText) string {
	if len(table.Rows) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Join(table.Rows[0], " "))
}

func containsCoin(rows []models.ExtractedRow) bool {
	for _, r := range rows {
		if !common.IsCryptoStock(r.Ticker) {
			return true
		}
	}
	return false
}

func containsStock(rows []models.ExtractedRow) bool {
	for _, r := range rows {
		if common.IsCryptoStock(r.Ticker) {
			return true
		}
	}
	return false
}
