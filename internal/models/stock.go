package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentiment is the newsletter's trend call for a ticker.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// ParseSentiment normalizes a sentiment token from newsletter text.
// Unknown tokens fall back to neutral.
func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return SentimentBullish
	case "bearish":
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// Category identifies which newsletter a ticker row came from. Each
// category is reconciled atomically and independently of the others.
type Category string

const (
	CategoryDaily         Category = "daily"
	CategoryDigitalAssets Category = "digitalassets"
	CategoryETFs          Category = "etfs"
	CategoryIdeas         Category = "ideas"
)

// AllCategories lists every category in extraction order.
func AllCategories() []Category {
	return []Category{CategoryDaily, CategoryDigitalAssets, CategoryETFs, CategoryIdeas}
}

// DailyCategories are refreshed every market day; the remaining
// categories only publish on the first market day of the week.
func DailyCategories() []Category {
	return []Category{CategoryDaily, CategoryDigitalAssets}
}

// WeeklyCategories publish once per week.
func WeeklyCategories() []Category {
	return []Category{CategoryETFs, CategoryIdeas}
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,20}$`)

// ValidTicker reports whether s is an acceptable normalized ticker
// symbol: uppercase alphanumerics plus '.' and '-', at most 20 chars.
func ValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

// Stock is one reconciled ticker row: the active risk-range levels for
// a ticker within a category. The (Category, Ticker) pair is unique.
type Stock struct {
	ID        string    `badgerhold:"key" json:"id"`
	Ticker    string    `badgerholdIndex:"Ticker" json:"ticker"`
	Category  Category  `badgerholdIndex:"Category" json:"category"`
	Sentiment Sentiment `json:"sentiment"`
	BuyTrade  float64   `json:"buy_trade"`
	SellTrade float64   `json:"sell_trade"`

	// Last broker snapshot, refreshed before each alert session.
	LastPrice       float64    `json:"last_price,omitempty"`
	PriceSource     string     `json:"price_source,omitempty"` // last, close, midpoint
	LastPriceUpdate *time.Time `json:"last_price_update,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the uniqueness key for a stock row within the store.
func StockKey(category Category, ticker string) string {
	return fmt.Sprintf("%s|%s", category, ticker)
}

// ExtractedRow is a parsed newsletter row before reconciliation.
type ExtractedRow struct {
	Ticker    string    `json:"ticker"`
	Sentiment Sentiment `json:"sentiment"`
	BuyTrade  float64   `json:"buy_trade"`
	SellTrade float64   `json:"sell_trade"`
}

// Validate checks the invariants a row must satisfy before it may be
// committed: a well-formed ticker and strictly positive levels.
func (r ExtractedRow) Validate() error {
	if !ValidTicker(r.Ticker) {
		return fmt.Errorf("%w: invalid ticker %q", ErrParse, r.Ticker)
	}
	if r.BuyTrade <= 0 || r.SellTrade <= 0 {
		return fmt.Errorf("%w: non-positive levels for %s (buy=%.2f sell=%.2f)", ErrParse, r.Ticker, r.BuyTrade, r.SellTrade)
	}
	return nil
}

// ContractKind classifies how a ticker trades.
type ContractKind string

const (
	KindStock  ContractKind = "stock"
	KindETF    ContractKind = "etf"
	KindFuture ContractKind = "future"
	KindIndex  ContractKind = "index"
	KindCrypto ContractKind = "crypto"
)

// Contract describes the tradeable instrument resolved for a ticker.
type Contract struct {
	Kind        ContractKind `json:"kind"`
	Symbol      string       `json:"symbol"`       // broker-facing symbol
	LocalSymbol string       `json:"local_symbol"` // original newsletter symbol
	Exchange    string       `json:"exchange"`     // SMART, PAXOS, CME, CBOE
	Currency    string       `json:"currency"`
}

// CachedContract is a resolved contract persisted alongside its stock
// row so resolution only happens once per reconciled ticker.
type CachedContract struct {
	Key        string    `badgerhold:"key" json:"key"` // category|ticker
	Category   Category  `badgerholdIndex:"Category" json:"category"`
	Contract   Contract  `json:"contract"`
	ResolvedAt time.Time `json:"resolved_at"`
}
