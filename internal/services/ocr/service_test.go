package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscript(t *testing.T) {
	text := `
HEDGEYE RISK RANGES*
| TICKER | PRICE | BUY TRADE | SELL TRADE | TREND |
| --- | --- | --- | --- | --- |
| BTC | 94,567 | 89,012 | 96,968 | BULLISH |
| ETH | 3,456 | 3,253 | 3,924 | BULLISH |
`
	table := ParseTranscript(text)
	require.Len(t, table.Rows, 4)

	assert.Equal(t, []string{"HEDGEYE RISK RANGES*"}, table.Rows[0])
	assert.Equal(t, []string{"TICKER", "PRICE", "BUY TRADE", "SELL TRADE", "TREND"}, table.Rows[1])
	assert.Equal(t, []string{"BTC", "94,567", "89,012", "96,968", "BULLISH"}, table.Rows[2])
	assert.Equal(t, []string{"ETH", "3,456", "3,253", "3,924", "BULLISH"}, table.Rows[3])
}

func TestParseTranscriptEmpty(t *testing.T) {
	assert.True(t, ParseTranscript("").Empty())
	assert.True(t, ParseTranscript("\n \n").Empty())
	assert.True(t, ParseTranscript("| --- | --- |").Empty())
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/png", detectMIME([]byte{0x89, 'P', 'N', 'G', 0x0D}))
	assert.Equal(t, "image/jpeg", detectMIME([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/gif", detectMIME([]byte("GIF89a....")))
	assert.Equal(t, "image/png", detectMIME([]byte("unknown")))
}
