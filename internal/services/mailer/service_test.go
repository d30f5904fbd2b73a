package mailer

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/models"
)

func testMailConfig() *common.MailConfig {
	return &common.MailConfig{
		Host:    "smtp.example.com",
		Port:    587,
		From:    "alerts@example.com",
		To:      []string{"trader@example.com", "desk@example.com"},
		Timeout: 20 * time.Second,
	}
}

func TestBuildMessageMultipart(t *testing.T) {
	s := NewService(testMailConfig(), arbor.NewLogger())

	msg := s.buildMessage("AM Alerts", "<h1>3 alerts</h1>", "3 alerts")

	assert.Contains(t, msg, "From: alerts@example.com\r\n")
	assert.Contains(t, msg, "To: trader@example.com, desk@example.com\r\n")
	assert.Contains(t, msg, "Subject: AM Alerts\r\n")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.Contains(t, msg, "Content-Type: text/html")

	// Both bodies travel base64-encoded.
	assert.Contains(t, msg, encodeBase64WithLineBreaks("<h1>3 alerts</h1>"))
	assert.Contains(t, msg, encodeBase64WithLineBreaks("3 alerts"))

	// Terminal boundary marker.
	assert.True(t, strings.Contains(msg, "--\r\n"))
}

func TestBuildMessagePlainOnly(t *testing.T) {
	s := NewService(testMailConfig(), arbor.NewLogger())

	msg := s.buildMessage("AM Alerts", "", "nothing fired")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.NotContains(t, msg, "multipart")
	assert.Contains(t, msg, "nothing fired")
}

func TestSendUnconfigured(t *testing.T) {
	s := NewService(&common.MailConfig{}, arbor.NewLogger())

	err := s.Send(context.Background(), "x", "", "y")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	long := strings.Repeat("table row content ", 40)
	encoded := encodeBase64WithLineBreaks(long)

	for _, line := range strings.Split(encoded, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, long, string(decoded))
}

func TestGenerateBoundaryUnique(t *testing.T) {
	assert.NotEqual(t, generateBoundary(), generateBoundary())
}
