// -----------------------------------------------------------------------
// Alert Evaluator - risk-range threshold checks with per-day dedup
// -----------------------------------------------------------------------

package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// rule fires kind when the comparison between price and the named
// level holds. Neutral rows are treated exactly like bullish ones.
type rule struct {
	kind    models.AlertKind
	level   func(s *models.Stock) float64
	matches func(price, level float64) bool
}

var sentimentRules = map[models.Sentiment][]rule{
	models.SentimentBullish: {
		{models.AlertBuy, buyLevel, atOrBelow},
		{models.AlertSell, sellLevel, atOrAbove},
	},
	models.SentimentNeutral: {
		{models.AlertBuy, buyLevel, atOrBelow},
		{models.AlertSell, sellLevel, atOrAbove},
	},
	models.SentimentBearish: {
		{models.AlertShort, sellLevel, atOrAbove},
		{models.AlertCover, buyLevel, atOrBelow},
	},
}

func buyLevel(s *models.Stock) float64  { return s.BuyTrade }
func sellLevel(s *models.Stock) float64 { return s.SellTrade }

func atOrBelow(price, level float64) bool { return price <= level }
func atOrAbove(price, level float64) bool { return price >= level }

// Evaluator applies the sentiment rules and suppresses repeats within
// a trading day. The dedup set lives in memory; a restart starts the
// day's suppression over, which at worst repeats an alert once.
type Evaluator struct {
	logger arbor.ILogger

	mu   sync.Mutex
	day  string
	seen map[models.DedupKey]bool
}

// NewEvaluator creates the alert evaluator
func NewEvaluator(logger arbor.ILogger) interfaces.AlertEvaluator {
	return &Evaluator{
		logger: logger,
		seen:   make(map[models.DedupKey]bool),
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, stocks []*models.Stock, session models.Session, tradingDay string) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tradingDay != e.day {
		e.day = tradingDay
		e.seen = make(map[models.DedupKey]bool)
	}

	var alerts []models.Alert
	for _, stock := range stocks {
		if stock.LastPrice <= 0 {
			continue
		}
		if stock.BuyTrade == stock.SellTrade {
			e.logger.Warn().
				Str("ticker", stock.Ticker).
				Str("category", string(stock.Category)).
				Float64("level", stock.BuyTrade).
				Msg("Degenerate range, row skipped")
			continue
		}

		for _, r := range sentimentRules[stock.Sentiment] {
			if !r.matches(stock.LastPrice, r.level(stock)) {
				continue
			}
			alert := models.Alert{
				ID:         uuid.New().String(),
				Ticker:     stock.Ticker,
				Category:   stock.Category,
				Kind:       r.kind,
				Sentiment:  stock.Sentiment,
				Session:    session,
				TradingDay: tradingDay,
				Price:      stock.LastPrice,
				BuyTrade:   stock.BuyTrade,
				SellTrade:  stock.SellTrade,
				CreatedAt:  time.Now(),
			}
			if e.seen[alert.Key()] {
				e.logger.Debug().
					Str("ticker", stock.Ticker).
					Str("kind", string(r.kind)).
					Msg("Alert suppressed by dedup")
				continue
			}
			e.seen[alert.Key()] = true
			alerts = append(alerts, alert)
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Kind != alerts[j].Kind {
			return alerts[i].Kind.Rank() < alerts[j].Kind.Rank()
		}
		if alerts[i].Category != alerts[j].Category {
			return alerts[i].Category < alerts[j].Category
		}
		return alerts[i].Ticker < alerts[j].Ticker
	})

	e.logger.Info().
		Str("session", string(session)).
		Int("alerts", len(alerts)).
		Int("evaluated", len(stocks)).
		Msg("Alert evaluation complete")
	return alerts
}
