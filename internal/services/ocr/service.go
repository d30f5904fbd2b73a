// -----------------------------------------------------------------------
// OCR Service - table transcription via Gemini vision
// -----------------------------------------------------------------------

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

const transcribePrompt = `Transcribe every table in this image as plain text.
Output one line per table row with cells separated by " | ".
Include header rows and table titles as their own lines.
Reproduce tickers, names and numbers exactly as shown. Output nothing else.`

// Service transcribes newsletter table images with the Gemini vision
// API. The service is stateless; each call is one request.
type Service struct {
	config *common.OCRConfig
	logger arbor.ILogger
	client *genai.Client
}

// NewService creates a new OCR service instance
func NewService(ctx context.Context, config *common.OCRConfig, logger arbor.ILogger) (interfaces.OCRService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: OCR API key is required", models.ErrConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &Service{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// Recognize transcribes one table image into rows of cells. A hint
// (e.g. the expected table title) narrows the transcription. Failures
// return an empty table wrapped in ErrOCR.
func (s *Service) Recognize(ctx context.Context, image []byte, hint string) (models.TableText, error) {
	if len(image) == 0 {
		return models.TableText{}, fmt.Errorf("%w: empty image", models.ErrOCR)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	prompt := transcribePrompt
	if hint != "" {
		prompt += "\nFocus on the table titled \"" + hint + "\"."
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromBytes(image, detectMIME(image)),
			},
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, contents, config)
	if err != nil {
		return models.TableText{}, fmt.Errorf("%w: transcription request failed: %v", models.ErrOCR, err)
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return models.TableText{}, fmt.Errorf("%w: empty transcription", models.ErrOCR)
	}

	table := ParseTranscript(text.String())
	if table.Empty() {
		return models.TableText{}, fmt.Errorf("%w: no rows in transcription", models.ErrOCR)
	}

	s.logger.Debug().
		Int("rows", len(table.Rows)).
		Str("hint", hint).
		Msg("Table transcribed")

	return table, nil
}

// ParseTranscript splits a pipe-separated transcription into rows of
// trimmed cells. Markdown separator rows (---) are dropped.
func ParseTranscript(text string) models.TableText {
	var table models.TableText
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.Trim(line, "|")

		cells := strings.Split(line, "|")
		row := make([]string, 0, len(cells))
		separator := true
		for _, cell := range cells {
			cell = strings.TrimSpace(cell)
			if strings.Trim(cell, "-: ") != "" {
				separator = false
			}
			row = append(row, cell)
		}
		if separator {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func detectMIME(image []byte) string {
	switch {
	case len(image) > 3 && image[0] == 0x89 && image[1] == 'P' && image[2] == 'N' && image[3] == 'G':
		return "image/png"
	case len(image) > 2 && image[0] == 0xFF && image[1] == 0xD8:
		return "image/jpeg"
	case len(image) > 5 && string(image[:6]) == "GIF87a" || len(image) > 5 && string(image[:6]) == "GIF89a":
		return "image/gif"
	default:
		return "image/png"
	}
}
