package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

var riskRangeHeading = regexp.MustCompile(`(?i)RISK RANGE\s*(?:™)?\s*SIGNALS`)

// DailyParser extracts the daily risk-range table. The table is plain
// HTML; when no table matches, the HTML is converted to text and
// parsed line by line.
type DailyParser struct {
	logger    arbor.ILogger
	converter *md.Converter
}

// NewDailyParser creates the daily newsletter parser
func NewDailyParser(logger arbor.ILogger) interfaces.Parser {
	return &DailyParser{
		logger:    logger,
		converter: md.NewConverter("", true, nil),
	}
}

func (p *DailyParser) Category() models.Category {
	return models.CategoryDaily
}

func (p *DailyParser) Parse(ctx context.Context, msg *models.Message) ([]models.ExtractedRow, error) {
	if msg == nil || (msg.HTML == "" && msg.Text == "") {
		return nil, fmt.Errorf("%w: empty daily newsletter", models.ErrParse)
	}

	var rows []models.ExtractedRow

	if msg.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid html: %v", models.ErrParse, err)
		}

		if table := findSignalTable(doc); table != nil {
			rows = p.parseTable(table.Find("tr"))
		}
	}

	// Table parsing can come up empty when the sender switches to an
	// image-heavy layout; fall back to the text rendering.
	if len(rows) == 0 {
		text := msg.Text
		if text == "" && msg.HTML != "" {
			converted, err := p.converter.ConvertString(msg.HTML)
			if err != nil {
				return nil, fmt.Errorf("%w: html-to-text conversion failed: %v", models.ErrParse, err)
			}
			text = converted
		}
		p.logger.Info().Msg("Daily table not found in HTML, parsing text rendering")
		rows = p.parseText(text)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no daily rows extracted", models.ErrParse)
	}

	p.logger.Info().Int("rows", len(rows)).Msg("Daily newsletter parsed")
	return rows, nil
}

func (p *DailyParser) parseTable(trs *goquery.Selection) []models.ExtractedRow {
	var rows []models.ExtractedRow
	trs.Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if populatedCells(cells) < 3 {
			return
		}

		row, ok := p.parseCells(cells)
		if ok {
			rows = append(rows, row)
		}
	})
	return rows
}

func (p *DailyParser) parseCells(cells []string) (models.ExtractedRow, bool) {
	var ticker string
	sentiment := models.SentimentNeutral

	if match := tickerSentimentPattern.FindStringSubmatch(cells[0]); match != nil {
		ticker = match[1]
		sentiment = models.ParseSentiment(match[2])
	} else if bare := strings.ToUpper(strings.TrimSpace(cells[0])); bareTickerPattern.MatchString(bare) {
		// Keep the level pair when the sentiment annotation is missing
		// or unreadable; neutral shares the bullish rule row anyway.
		ticker = bare
		p.logger.Warn().Str("cell", cells[0]).Msg("Daily row without sentiment annotation, defaulting to neutral")
	} else {
		p.logger.Debug().Str("cell", cells[0]).Msg("Daily row without ticker pattern dropped")
		return models.ExtractedRow{}, false
	}

	if common.IsExcluded(ticker) {
		return models.ExtractedRow{}, false
	}

	buy, err := CleanNumber(cells[1])
	if err != nil {
		p.logger.Debug().Str("ticker", ticker).Err(err).Msg("Daily row with bad buy level dropped")
		return models.ExtractedRow{}, false
	}
	sell, err := CleanNumber(cells[2])
	if err != nil {
		p.logger.Debug().Str("ticker", ticker).Err(err).Msg("Daily row with bad sell level dropped")
		return models.ExtractedRow{}, false
	}

	return models.ExtractedRow{
		Ticker:    common.NormalizeTicker(ticker),
		Sentiment: sentiment,
		BuyTrade:  buy,
		SellTrade: sell,
	}, true
}

// parseText handles the text rendering: find the header (or the RISK
// RANGE SIGNALS heading), then read ticker lines below it. Levels may
// spill onto the following line.
func (p *DailyParser) parseText(text string) []models.ExtractedRow {
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if headerTokens(line) || riskRangeHeading.MatchString(line) {
			start = i
			break
		}
	}
	if start == -1 {
		p.logger.Warn().Msg("Daily text rendering has no signal header")
		return nil
	}

	var rows []models.ExtractedRow
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		loc := tickerSentimentPattern.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		ticker := line[loc[2]:loc[3]]
		sentiment := line[loc[4]:loc[5]]
		if common.IsExcluded(ticker) {
			continue
		}

		values := ExtractNumbers(line[loc[1]:])
		for j := i + 1; j < len(lines) && len(values) < 2; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" {
				continue
			}
			if tickerSentimentPattern.MatchString(next) {
				break
			}
			values = append(values, ExtractNumbers(next)...)
		}
		if len(values) < 2 {
			p.logger.Debug().Str("ticker", ticker).Msg("Daily text row without levels dropped")
			continue
		}

		rows = append(rows, models.ExtractedRow{
			Ticker:    common.NormalizeTicker(ticker),
			Sentiment: models.ParseSentiment(sentiment),
			BuyTrade:  values[0],
			SellTrade: values[1],
		})
	}
	return rows
}
