package models

import "time"

// InlineImage is one inline image part of a newsletter, in the
// positional order it appears in the MIME tree. Crypto extraction
// addresses the risk-range tables by this position.
type InlineImage struct {
	Index       int    `json:"index"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
	Data        []byte `json:"-"`
}

// Attachment is a non-inline message part kept for diagnostics.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Message is one fetched newsletter email, normalized from MIME.
type Message struct {
	UID          uint32        `json:"uid"`
	Subject      string        `json:"subject"`
	Date         time.Time     `json:"date"`
	HTML         string        `json:"-"`
	Text         string        `json:"-"`
	InlineImages []InlineImage `json:"inline_images,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
}

// TableText is an OCR transcription of a table image: rows of cells.
type TableText struct {
	Rows [][]string `json:"rows"`
}

// Empty reports whether the transcription contains no usable rows.
func (t TableText) Empty() bool {
	return len(t.Rows) == 0
}
