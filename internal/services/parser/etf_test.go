package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/models"
)

const etfHTML = `
<html><body>
<table>
  <tr><th>TICKER</th><th>TREND</th><th>BUY TRADE</th><th>SELL TRADE</th></tr>
  <tr><td>XLE</td><td>BULLISH</td><td>$88.40</td><td>$92.10</td></tr>
  <tr><td>GLD</td><td>BEARISH</td><td>308.20</td><td>321.75</td></tr>
  <tr><td>TLT</td><td></td><td>86.90</td><td>89.80</td></tr>
  <tr><td>BAD</td><td>BULLISH</td><td>n/a</td><td>1.00</td></tr>
</table>
</body></html>`

func TestETFParser(t *testing.T) {
	p := NewETFParser(arbor.NewLogger())

	rows, err := p.Parse(context.Background(), &models.Message{HTML: etfHTML})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, models.ExtractedRow{Ticker: "XLE", Sentiment: models.SentimentBullish, BuyTrade: 88.40, SellTrade: 92.10}, rows[0])
	assert.Equal(t, models.ExtractedRow{Ticker: "GLD", Sentiment: models.SentimentBearish, BuyTrade: 308.20, SellTrade: 321.75}, rows[1])
	// Empty trend cell falls back to neutral.
	assert.Equal(t, models.SentimentNeutral, rows[2].Sentiment)
}

func TestETFParserShuffledColumns(t *testing.T) {
	html := `<table>
	  <tr><th>BUY TRADE</th><th>SELL TRADE</th><th>TICKER</th></tr>
	  <tr><td>88.40</td><td>92.10</td><td>XLU (BULLISH)</td></tr>
	</table>`
	p := NewETFParser(arbor.NewLogger())

	rows, err := p.Parse(context.Background(), &models.Message{HTML: html})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "XLU", rows[0].Ticker)
	assert.Equal(t, models.SentimentBullish, rows[0].Sentiment)
	assert.Equal(t, 88.40, rows[0].BuyTrade)
}

func TestETFParserNoTable(t *testing.T) {
	p := NewETFParser(arbor.NewLogger())

	_, err := p.Parse(context.Background(), &models.Message{HTML: "<p>no tables</p>"})
	assert.ErrorIs(t, err, models.ErrParse)

	_, err = p.Parse(context.Background(), &models.Message{})
	assert.ErrorIs(t, err, models.ErrParse)
}
