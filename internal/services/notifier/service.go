// -----------------------------------------------------------------------
// Notifier Service - renders and dispatches the alert digest
// -----------------------------------------------------------------------

package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
	"github.com/ternarybob/rangealert/internal/services/mailer"
)

// Service turns a session's alerts into a multipart digest email.
// An empty alert list sends nothing. Delivery gets one retry before
// the session is reported as a mail failure.
type Service struct {
	sender mailer.Sender
	loc    *time.Location
	logger arbor.ILogger
}

// NewService creates the digest notifier
func NewService(sender mailer.Sender, loc *time.Location, logger arbor.ILogger) interfaces.NotifierService {
	return &Service{
		sender: sender,
		loc:    loc,
		logger: logger,
	}
}

func (s *Service) SendDigest(ctx context.Context, alerts []models.Alert, session models.Session, day string) error {
	if len(alerts) == 0 {
		s.logger.Info().Str("session", string(session)).Msg("No alerts triggered, digest skipped")
		return nil
	}

	now := time.Now().In(s.loc)
	subject := fmt.Sprintf("Range Alerts - %s Session (%d alerts) - %s %s ET",
		session, len(alerts), day, now.Format("15:04"))

	html := renderHTML(alerts, session, now)
	text := renderText(alerts, session, day)

	err := s.sender.Send(ctx, subject, html, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Digest send failed, retrying once")
		err = s.sender.Send(ctx, subject, html, text)
	}
	if err != nil {
		return fmt.Errorf("%w: digest for %s %s: %v", models.ErrMail, day, session, err)
	}

	s.logger.Info().
		Str("session", string(session)).
		Int("alerts", len(alerts)).
		Msg("Digest sent")
	return nil
}

const digestStyle = `
  body { font-family: Arial, sans-serif; margin: 20px; }
  h2 { color: #333; }
  table { border-collapse: collapse; width: 100%; margin-top: 20px; }
  th, td { border: 1px solid #ddd; padding: 12px; text-align: center; }
  th { background-color: #4CAF50; color: white; }
  .bullish-row { background-color: #e8f5e9; }
  .bearish-row { background-color: #ffebee; }
  .buy-action { color: #2e7d32; font-weight: bold; }
  .sell-action { color: #d32f2f; font-weight: bold; }
  .short-action { color: #f57c00; font-weight: bold; }
  .cover-action { color: #1976d2; font-weight: bold; }
  .highlight { font-weight: bold; font-size: 1.1em; }
  .footer { margin-top: 20px; font-size: 0.9em; color: #666; }`

func renderHTML(alerts []models.Alert, session models.Session, now time.Time) string {
	var b strings.Builder
	b.WriteString("<html><head><style>")
	b.WriteString(digestStyle)
	b.WriteString("</style></head><body>\n")
	fmt.Fprintf(&b, "<h2>Range Alerts - %s Session</h2>\n", session)
	fmt.Fprintf(&b, "<p><strong>Time:</strong> %s ET</p>\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<p><strong>Total Alerts:</strong> %d</p>\n", len(alerts))

	b.WriteString("<table>\n<tr><th>Ticker</th><th>Category</th><th>Sentiment</th><th>Action</th>")
	b.WriteString("<th>Current Price</th><th>Buy Level</th><th>Sell Level</th></tr>\n")

	for _, a := range alerts {
		rowClass := "bullish-row"
		if a.Sentiment == models.SentimentBearish {
			rowClass = "bearish-row"
		}

		price := fmt.Sprintf("$%.2f", a.Price)
		buy := fmt.Sprintf("$%.2f", a.BuyTrade)
		sell := fmt.Sprintf("$%.2f", a.SellTrade)

		// Emphasize the level the price crossed.
		switch a.Kind {
		case models.AlertBuy, models.AlertCover:
			buy = highlight(buy)
			price = highlight(price)
		case models.AlertSell, models.AlertShort:
			sell = highlight(sell)
			price = highlight(price)
		}

		fmt.Fprintf(&b, "<tr class=%q><td><strong>%s</strong></td><td>%s</td><td>%s</td>"+
			"<td class=%q>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			rowClass,
			a.Ticker,
			strings.ToUpper(string(a.Category)),
			strings.ToUpper(string(a.Sentiment)),
			strings.ToLower(string(a.Kind))+"-action",
			a.Kind,
			price, buy, sell)
	}

	b.WriteString("</table>\n<div class=\"footer\">\n<p><strong>Alert Logic:</strong></p>\n<ul>\n")
	b.WriteString("<li>BULLISH: BUY when price &le; buy level, SELL when price &ge; sell level</li>\n")
	b.WriteString("<li>BEARISH: SHORT when price &ge; sell level, COVER when price &le; buy level</li>\n")
	b.WriteString("</ul>\n</div>\n</body></html>\n")
	return b.String()
}

func highlight(s string) string {
	return `<span class="highlight">` + s + `</span>`
}

// renderText is the plain-text alternative: a per-kind summary then
// one line per alert, in the digest's sorted order.
func renderText(alerts []models.Alert, session models.Session, day string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Range Alerts - %s Session - %s\n\n", session, day)

	counts := make(map[models.AlertKind][]string)
	for _, a := range alerts {
		counts[a.Kind] = append(counts[a.Kind], a.Ticker)
	}
	for _, kind := range []models.AlertKind{models.AlertBuy, models.AlertSell, models.AlertShort, models.AlertCover} {
		if tickers := counts[kind]; len(tickers) > 0 {
			fmt.Fprintf(&b, "%s (%d): %s\n", kind, len(tickers), strings.Join(tickers, ", "))
		}
	}
	b.WriteString("\n")

	for _, a := range alerts {
		fmt.Fprintf(&b, "%-5s %-14s %-7s @ $%.2f  range $%.2f - $%.2f (%s)\n",
			a.Kind, a.Category, a.Ticker, a.Price, a.BuyTrade, a.SellTrade, a.Sentiment)
	}
	return b.String()
}
