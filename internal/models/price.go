package models

// QuoteFailure records why one ticker produced no usable price.
type QuoteFailure struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// PriceBatch is the outcome of one snapshot pass over the active rows.
// Per-ticker failures live here; only a gateway failure aborts a batch.
type PriceBatch struct {
	Quotes   map[string]Quote `json:"quotes"` // keyed by ticker
	Failures []QuoteFailure   `json:"failures,omitempty"`
}

// NewPriceBatch returns an empty batch ready to collect quotes.
func NewPriceBatch() *PriceBatch {
	return &PriceBatch{Quotes: make(map[string]Quote)}
}
