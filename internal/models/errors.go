package models

import "errors"

// Sentinel errors for the pipeline. Callers classify failures with
// errors.Is; the workflow runner maps them to process exit codes.
var (
	// ErrSourceUnavailable means the mailbox could not be reached after
	// retries (network, auth, TLS).
	ErrSourceUnavailable = errors.New("newsletter source unavailable")

	// ErrNoMessage means the subject search matched nothing in the
	// lookback window. Expected on holidays; not a failure by itself.
	ErrNoMessage = errors.New("no matching message")

	// ErrParse means a message was retrieved but no valid rows could be
	// extracted from it.
	ErrParse = errors.New("parse failed")

	// ErrOCR means image transcription failed or returned no table.
	ErrOCR = errors.New("ocr failed")

	// ErrStore covers storage transaction failures.
	ErrStore = errors.New("store operation failed")

	// ErrBrokerUnavailable means the market-data gateway connection
	// could not be established; the whole price batch is abandoned.
	ErrBrokerUnavailable = errors.New("broker gateway unavailable")

	// ErrNoQuote means a single ticker produced no usable price after
	// the last/close/midpoint fallback chain.
	ErrNoQuote = errors.New("no usable quote")

	// ErrMail means the alert digest could not be delivered.
	ErrMail = errors.New("mail delivery failed")

	// ErrConfig marks invalid or incomplete configuration; fatal at
	// startup.
	ErrConfig = errors.New("invalid configuration")
)

// Process exit codes for one-shot runs.
const (
	ExitOK        = 0
	ExitGeneral   = 1
	ExitNoMessage = 2
	ExitBroker    = 3
	ExitStore     = 4
	ExitMail      = 5
)

// ExitCodeFor maps a pipeline error to its process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNoMessage):
		return ExitNoMessage
	case errors.Is(err, ErrBrokerUnavailable):
		return ExitBroker
	case errors.Is(err, ErrStore):
		return ExitStore
	case errors.Is(err, ErrMail):
		return ExitMail
	default:
		return ExitGeneral
	}
}
