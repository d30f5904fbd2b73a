package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// ETFParser extracts the weekly ETF levels table. Columns are located
// by header name since the sender shuffles column order.
type ETFParser struct {
	logger arbor.ILogger
}

// NewETFParser creates the ETF newsletter parser
func NewETFParser(logger arbor.ILogger) interfaces.Parser {
	return &ETFParser{logger: logger}
}

func (p *ETFParser) Category() models.Category {
	return models.CategoryETFs
}

func (p *ETFParser) Parse(ctx context.Context, msg *models.Message) ([]models.ExtractedRow, error) {
	if msg == nil || msg.HTML == "" {
		return nil, fmt.Errorf("%w: empty ETF newsletter", models.ErrParse)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid html: %v", models.ErrParse, err)
	}

	table := findSignalTable(doc)
	if table == nil {
		return nil, fmt.Errorf("%w: no ETF table found", models.ErrParse)
	}

	header := headerCells(table)
	tickerIdx := columnIndex(header, "TICKER")
	if tickerIdx < 0 {
		tickerIdx = columnIndex(header, "INDEX")
	}
	buyIdx := columnIndex(header, "BUY")
	sellIdx := columnIndex(header, "SELL")
	trendIdx := columnIndex(header, "TREND")
	if tickerIdx < 0 || buyIdx < 0 || sellIdx < 0 {
		return nil, fmt.Errorf("%w: ETF table missing ticker/buy/sell columns", models.ErrParse)
	}

	var rows []models.ExtractedRow
	for _, cells := range tableRows(table) {
		if populatedCells(cells) < 3 {
			continue
		}
		max := tickerIdx
		if buyIdx > max {
			max = buyIdx
		}
		if sellIdx > max {
			max = sellIdx
		}
		if len(cells) <= max {
			continue
		}

		row, ok := p.parseRow(cells, tickerIdx, buyIdx, sellIdx, trendIdx)
		if ok {
			rows = append(rows, row)
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no ETF rows extracted", models.ErrParse)
	}

	p.logger.Info().Int("rows", len(rows)).Msg("ETF newsletter parsed")
	return rows, nil
}

func (p *ETFParser) parseRow(cells []string, tickerIdx, buyIdx, sellIdx, trendIdx int) (models.ExtractedRow, bool) {
	raw := cells[tickerIdx]
	sentiment := models.SentimentNeutral

	// Ticker cell may carry the sentiment inline.
	if match := tickerSentimentPattern.FindStringSubmatch(raw); match != nil {
		raw = match[1]
		sentiment = models.ParseSentiment(match[2])
	} else if trendIdx >= 0 && trendIdx < len(cells) {
		sentiment = rowSentiment([]string{cells[trendIdx]}, p.logger, raw)
	} else {
		p.logger.Debug().Str("ticker", raw).Msg("ETF row without sentiment, defaulting to neutral")
	}

	ticker := common.NormalizeTicker(raw)
	if !models.ValidTicker(ticker) || common.IsExcluded(ticker) {
		return models.ExtractedRow{}, false
	}

	buy, err := CleanNumber(cells[buyIdx])
	if err != nil {
		p.logger.Debug().Str("ticker", ticker).Err(err).Msg("ETF row with bad buy level dropped")
		return models.ExtractedRow{}, false
	}
	sell, err := CleanNumber(cells[sellIdx])
	if err != nil {
		p.logger.Debug().Str("ticker", ticker).Err(err).Msg("ETF row with bad sell level dropped")
		return models.ExtractedRow{}, false
	}

	return models.ExtractedRow{
		Ticker:    ticker,
		Sentiment: sentiment,
		BuyTrade:  buy,
		SellTrade: sell,
	}, true
}
