// Package parser extracts risk-range rows from newsletter emails.
// Each newsletter category has its own parser; all of them produce
// the same normalized row shape.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// Registry maps categories to their parsers.
type Registry struct {
	parsers map[models.Category]interfaces.Parser
}

// NewRegistry builds the full parser set.
func NewRegistry(ocr interfaces.OCRService, config *common.OCRConfig, logger arbor.ILogger) *Registry {
	parsers := []interfaces.Parser{
		NewDailyParser(logger),
		NewCryptoParser(ocr, config, logger),
		NewETFParser(logger),
		NewIdeasParser(ocr, logger),
	}
	r := &Registry{parsers: make(map[models.Category]interfaces.Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Category()] = p
	}
	return r
}

// For returns the parser for a category, or nil.
func (r *Registry) For(category models.Category) interfaces.Parser {
	return r.parsers[category]
}

// headerTokens reports whether a joined header row names a signal
// table: a ticker column plus buy and sell columns ("trade" optional).
func headerTokens(header string) bool {
	h := strings.ToUpper(header)
	hasTicker := strings.Contains(h, "TICKER") || strings.Contains(h, "INDEX")
	return hasTicker && strings.Contains(h, "BUY") && strings.Contains(h, "SELL")
}

// findSignalTable locates the first table whose header row carries the
// signal tokens. Returns nil when no table matches.
func findSignalTable(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, table *goquery.Selection) bool {
		header := table.Find("tr").First()
		var cells []string
		header.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if headerTokens(strings.Join(cells, " ")) {
			found = table
			return false
		}
		return true
	})
	return found
}

// tableRows returns the cell text of every row after the header.
func tableRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}

// columnIndex finds the first header cell containing the token, or -1.
func columnIndex(header []string, token string) int {
	for i, cell := range header {
		if strings.Contains(strings.ToUpper(cell), token) {
			return i
		}
	}
	return -1
}

// headerCells returns the first row's cell text.
func headerCells(table *goquery.Selection) []string {
	var cells []string
	table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}
