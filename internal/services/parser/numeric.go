package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// tickerSentimentPattern matches "AAPL (BULLISH)" style cells.
	tickerSentimentPattern = regexp.MustCompile(`([A-Z0-9/.\-]+)\s*\((BULLISH|BEARISH|NEUTRAL)\)`)

	// bareTickerPattern matches a cell that is only a symbol, with no
	// sentiment annotation. The leading letter keeps price cells from
	// reading as tickers.
	bareTickerPattern = regexp.MustCompile(`^\^?[A-Z][A-Z0-9/.\-=]{0,11}$`)

	numberPattern = regexp.MustCompile(`-?[\d,]+\.?\d*`)
)

// CleanNumber parses a newsletter price cell: strips currency symbols,
// thousands separators and surrounding noise.
func CleanNumber(cell string) (float64, error) {
	match := numberPattern.FindString(strings.ReplaceAll(cell, "$", ""))
	if match == "" {
		return 0, fmt.Errorf("no number in %q", cell)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", cell, err)
	}
	return v, nil
}

// ExtractNumbers returns every number found in a line of text, in
// order of appearance.
func ExtractNumbers(line string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllString(line, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// populatedCells counts non-empty cells in a row.
func populatedCells(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
