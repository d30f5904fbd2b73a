// -----------------------------------------------------------------------
// Mailer Service - SMTP transport for the alert digest
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/models"
)

// Sender delivers one rendered message to the configured recipients.
type Sender interface {
	Send(ctx context.Context, subject, htmlBody, textBody string) error
}

// Service sends multipart mail over TLS, falling back to STARTTLS when
// the server does not accept a direct TLS session.
type Service struct {
	config *common.MailConfig
	logger arbor.ILogger
}

// NewService creates the SMTP mailer
func NewService(config *common.MailConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

// Send builds a multipart/alternative message and delivers it to every
// configured recipient in one SMTP transaction.
func (s *Service) Send(ctx context.Context, subject, htmlBody, textBody string) error {
	if s.config.Host == "" || s.config.From == "" || len(s.config.To) == 0 {
		return fmt.Errorf("%w: mail transport not configured", models.ErrConfig)
	}

	msg := s.buildMessage(subject, htmlBody, textBody)
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.sendTLS(ctx, addr, auth, msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMail, err)
	}

	s.logger.Info().
		Str("subject", subject).
		Int("recipients", len(s.config.To)).
		Msg("Mail delivered")
	return nil
}

func (s *Service) buildMessage(subject, htmlBody, textBody string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))

	if htmlBody == "" {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
		return msg.String()
	}

	boundary := generateBoundary()
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	if textBody != "" {
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(textBody))
		msg.WriteString("\r\n")
	}

	// RFC 5322 caps line length; base64 keeps long table rows intact.
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return msg.String()
}

// sendTLS tries a direct TLS session first, then a plain dial upgraded
// with STARTTLS.
func (s *Service) sendTLS(ctx context.Context, addr string, auth smtp.Auth, msg string) error {
	dialer := &net.Dialer{Timeout: s.config.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	tlsConfig := &tls.Config{ServerName: s.config.Host}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return s.sendSTARTTLS(dialer, addr, auth, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	return s.transact(client, auth, msg)
}

func (s *Service) sendSTARTTLS(dialer *net.Dialer, addr string, auth smtp.Auth, msg string) error {
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	return s.transact(client, auth, msg)
}

func (s *Service) transact(client *smtp.Client, auth smtp.Auth, msg string) error {
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range s.config.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// generateBoundary creates a unique MIME boundary so the digest body
// can never collide with it.
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "rangealert_boundary_fallback"
	}
	return fmt.Sprintf("rangealert_%x", b)
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char
// lines per RFC 2045.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76
	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}
