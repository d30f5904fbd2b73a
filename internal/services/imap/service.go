// -----------------------------------------------------------------------
// IMAP Service - newsletter retrieval over IMAP/TLS
// -----------------------------------------------------------------------

package imap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

const (
	retryInitial = 500 * time.Millisecond
	retryCap     = 8 * time.Second
	maxAttempts  = 4
)

// Service reads newsletter emails from the configured mailbox. Each
// call dials a fresh session; transient failures are retried with
// exponential backoff before surfacing ErrSourceUnavailable.
type Service struct {
	config *common.SourceConfig
	logger arbor.ILogger
}

// NewService creates a new newsletter source backed by IMAP
func NewService(config *common.SourceConfig, logger arbor.ILogger) interfaces.NewsletterSource {
	return &Service{
		config: config,
		logger: logger,
	}
}

// Latest returns the most recent message whose subject contains the
// given phrase, dated on or after since. Returns ErrNoMessage when the
// search matches nothing.
func (s *Service) Latest(ctx context.Context, subject string, since time.Time) (*models.Message, error) {
	var msg *models.Message

	delay := retryInitial
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		msg, err = s.fetchLatest(ctx, subject, since)
		if err == nil {
			return msg, nil
		}
		if err == errNoMatch {
			s.logger.Info().
				Str("subject", subject).
				Str("since", since.Format(time.RFC3339)).
				Msg("No matching newsletter in window")
			return nil, fmt.Errorf("%w: subject %q", models.ErrNoMessage, subject)
		}

		lastErr = err
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("subject", subject).
			Msg("Newsletter fetch failed")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryCap {
			delay = retryCap
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, lastErr)
}

// Close is a no-op; sessions are per-call.
func (s *Service) Close() error {
	return nil
}

// errNoMatch distinguishes an empty search from a transport failure so
// the retry loop does not hammer the server for a quiet mailbox.
var errNoMatch = fmt.Errorf("no matching message")

func (s *Service) fetchLatest(ctx context.Context, subject string, since time.Time) (*models.Message, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	if s.config.Timeout > 0 {
		c.Timeout = s.config.Timeout
	}

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := s.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil, errNoMatch
	}

	// IMAP SINCE has date granularity; the envelope date narrows below.
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	criteria.Header.Add("Subject", subject)

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for subject %q: %w", subject, err)
	}
	if len(seqNums) == 0 {
		return nil, errNoMatch
	}

	s.logger.Debug().
		Str("subject", subject).
		Int("count", len(seqNums)).
		Msg("Found matching newsletters")

	// Fetch envelopes first to pick the newest by date.
	latest, err := s.latestByDate(c, seqNums, since)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		return nil, errNoMatch
	}

	return s.fetchBody(c, latest)
}

func (s *Service) latestByDate(c *client.Client, seqNums []uint32, since time.Time) (uint32, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var best uint32
	var bestDate time.Time
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		if msg.Envelope.Date.Before(since) {
			continue
		}
		if best == 0 || msg.Envelope.Date.After(bestDate) {
			best = msg.SeqNum
			bestDate = msg.Envelope.Date
		}
	}
	if err := <-done; err != nil {
		return 0, fmt.Errorf("failed to fetch envelopes: %w", err)
	}
	return best, nil
}

func (s *Service) fetchBody(c *client.Client, seqNum uint32) (*models.Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNum)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		if msg != nil {
			fetched = msg
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message body: %w", err)
	}
	if fetched == nil {
		return nil, errNoMatch
	}

	result := &models.Message{
		UID:     fetched.SeqNum,
		Subject: fetched.Envelope.Subject,
		Date:    fetched.Envelope.Date,
	}

	r := fetched.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("no body section in message %d", seqNum)
	}
	if err := s.walkParts(r, result); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("subject", result.Subject).
		Int("inline_images", len(result.InlineImages)).
		Msg("Fetched newsletter")

	return result, nil
}

// walkParts flattens the MIME tree. Inline images keep the positional
// order they appear in; the crypto tables are addressed by position.
func (s *Service) walkParts(r io.Reader, out *models.Message) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return fmt.Errorf("failed to create mail reader: %w", err)
	}

	imageIndex := 0
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read html part: %w", err)
				}
				out.HTML += string(b)
			case strings.HasPrefix(contentType, "text/plain"):
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read text part: %w", err)
				}
				out.Text += string(b)
			case strings.HasPrefix(contentType, "image/"):
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read inline image: %w", err)
				}
				_, dispParams, _ := h.ContentDisposition()
				filename := dispParams["filename"]
				if filename == "" {
					_, ctParams, _ := h.ContentType()
					filename = ctParams["name"]
				}
				out.InlineImages = append(out.InlineImages, models.InlineImage{
					Index:       imageIndex,
					ContentType: contentType,
					Filename:    filename,
					Data:        b,
				})
				imageIndex++
			}
		case *mail.AttachmentHeader:
			contentType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			if strings.HasPrefix(contentType, "image/") {
				// Some senders flag table images as attachments.
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read attached image: %w", err)
				}
				out.InlineImages = append(out.InlineImages, models.InlineImage{
					Index:       imageIndex,
					ContentType: contentType,
					Filename:    filename,
					Data:        b,
				})
				imageIndex++
				continue
			}
			size := 0
			if b, err := io.ReadAll(p.Body); err == nil {
				size = len(b)
			}
			out.Attachments = append(out.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}

	out.Text = strings.TrimSpace(out.Text)
	return nil
}
