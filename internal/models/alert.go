package models

import "time"

// AlertKind is the action an alert recommends.
type AlertKind string

const (
	AlertBuy   AlertKind = "BUY"
	AlertSell  AlertKind = "SELL"
	AlertShort AlertKind = "SHORT"
	AlertCover AlertKind = "COVER"
)

// kindOrder fixes digest ordering: buys first, then sells, shorts, covers.
var kindOrder = map[AlertKind]int{
	AlertBuy:   0,
	AlertSell:  1,
	AlertShort: 2,
	AlertCover: 3,
}

// Rank returns the sort rank of the kind within a digest.
func (k AlertKind) Rank() int {
	if r, ok := kindOrder[k]; ok {
		return r
	}
	return len(kindOrder)
}

// Session identifies an intraday market phase. Only AM and PM carry
// evaluation runs; the other phases exist for the market clock.
type Session string

const (
	SessionPre  Session = "PRE"
	SessionAM   Session = "AM"
	SessionMid  Session = "MID"
	SessionPM   Session = "PM"
	SessionPost Session = "POST"
)

// Alert is one triggered recommendation for a ticker in a session.
type Alert struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Category   Category  `json:"category"`
	Kind       AlertKind `json:"kind"`
	Sentiment  Sentiment `json:"sentiment"`
	Session    Session   `json:"session"`
	TradingDay string    `json:"trading_day"` // YYYY-MM-DD in market time
	Price      float64   `json:"price"`
	BuyTrade   float64   `json:"buy_trade"`
	SellTrade  float64   `json:"sell_trade"`
	CreatedAt  time.Time `json:"created_at"`
}

// DedupKey identifies an alert for suppression within a trading day.
// The same (ticker, category, kind, session) fires at most once per day.
type DedupKey struct {
	Ticker     string
	Category   Category
	Kind       AlertKind
	Session    Session
	TradingDay string
}

// Key returns the alert's dedup identity.
func (a Alert) Key() DedupKey {
	return DedupKey{
		Ticker:     a.Ticker,
		Category:   a.Category,
		Kind:       a.Kind,
		Session:    a.Session,
		TradingDay: a.TradingDay,
	}
}

// Quote is one broker price snapshot with its fallback provenance.
type Quote struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Source string  `json:"source"` // last, close, midpoint
}
