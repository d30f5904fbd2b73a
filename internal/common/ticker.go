// Package common provides shared utilities across the application.
package common

import (
	"math"
	"strings"
)

// CryptoSymbolMap maps newsletter long names to trading symbols. The
// crypto newsletter prints coin names; the broker wants symbols.
var CryptoSymbolMap = map[string]string{
	"BITCOIN":   "BTC",
	"ETHEREUM":  "ETH",
	"SOLANA":    "SOL",
	"AVALANCHE": "AVAX",
	"AAVE":      "AAVE",
	"CARDANO":   "ADA",
	"CHAINLINK": "LINK",
	"POLYGON":   "MATIC",
	"DOGECOIN":  "DOGE",
	"SHIBA":     "SHIB",
	"LITECOIN":  "LTC",
	"XRP":       "XRP",
	"BNB":       "BNB",
	"POLKADOT":  "DOT",
	"UNISWAP":   "UNI",
	"MAKER":     "MKR",
}

// CryptoStocks are exchange-listed tickers that appear in the crypto
// newsletter but trade as regular stock/ETF contracts.
var CryptoStocks = map[string]bool{
	"IBIT": true,
	"MSTR": true,
	"MARA": true,
	"RIOT": true,
	"ETHA": true,
	"BLOK": true,
	"COIN": true,
	"BITO": true,
}

// ExcludedTickers are daily-newsletter rows that are not tradeable
// instruments for our purposes: indices, bonds, FX and commodities.
var ExcludedTickers = map[string]bool{
	"UST30Y": true, "UST10Y": true, "UST2Y": true,
	"SPX": true, "COMPQ": true, "RUT": true, "SSEC": true,
	"NIKK": true, "BSE": true, "DAX": true, "VIX": true,
	"USD": true, "EUR/USD": true, "USD/YEN": true,
	"GBP/USD": true, "CAD/USD": true,
	"WTIC": true, "BRENT": true, "NATGAS": true,
	"GOLD": true, "COPPER": true, "SILVER": true,
	"BITCOIN": true,
}

// NormalizeTicker uppercases and trims a newsletter ticker token and
// resolves crypto long names to their trading symbols.
func NormalizeTicker(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if sym, ok := CryptoSymbolMap[t]; ok {
		return sym
	}
	return t
}

// IsExcluded reports whether a daily-newsletter ticker should be
// dropped from extraction.
func IsExcluded(ticker string) bool {
	return ExcludedTickers[strings.ToUpper(strings.TrimSpace(ticker))]
}

// IsCryptoStock reports whether a crypto-newsletter ticker is an
// exchange-listed stock or ETF rather than a coin.
func IsCryptoStock(ticker string) bool {
	return CryptoStocks[strings.ToUpper(strings.TrimSpace(ticker))]
}

// Round2 rounds a price to two decimal places, matching the store's
// NUMERIC(10,2) semantics.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
