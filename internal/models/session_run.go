package models

import "time"

// RunType distinguishes the scheduled workflows.
type RunType string

const (
	RunExtraction RunType = "extraction"
	RunAlertsAM   RunType = "alerts_am"
	RunAlertsPM   RunType = "alerts_pm"
)

// RunStatus is the terminal state of a workflow run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// CategoryResult summarizes one category within an extraction run.
type CategoryResult struct {
	Category Category `json:"category"`
	Rows     int      `json:"rows"`
	Dropped  int      `json:"dropped"`
	Error    string   `json:"error,omitempty"`
}

// SessionRun records one scheduled or manual workflow execution for
// observability: what ran, when, what it produced, what failed.
type SessionRun struct {
	ID         string           `badgerhold:"key" json:"id"`
	Type       RunType          `badgerholdIndex:"Type" json:"type"`
	TradingDay string           `json:"trading_day"`
	StartedAt  time.Time        `badgerholdIndex:"StartedAt" json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Status     RunStatus        `json:"status"`
	Categories []CategoryResult `json:"categories,omitempty"`
	Alerts     int              `json:"alerts"`
	Quotes     int              `json:"quotes"`
	QuoteFails int              `json:"quote_fails"`
	Error      string           `json:"error,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (r SessionRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
