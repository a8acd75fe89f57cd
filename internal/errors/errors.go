// Package errors defines the structured error taxonomy for the report
// pipeline: usage errors (caller mistakes, never retried), transient
// I/O errors (retryable, draft state unchanged), and partial delivery
// failures carrying per-recipient outcomes.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrMissingClient    = errors.New("no client selected")
	ErrStageBusy        = errors.New("operation already in flight")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("timeout")
)

// ErrorType categorizes a pipeline error.
type ErrorType string

const (
	ErrorTypeUsage     ErrorType = "usage"     // caller mistake, fatal
	ErrorTypeTransient ErrorType = "transient" // network/IO, retryable
	ErrorTypePartial   ErrorType = "partial"   // some recipients failed
)

// ReportError is a structured error raised at a workflow stage
// boundary. The draft is never mutated before one of these surfaces.
type ReportError struct {
	Type      ErrorType
	Stage     string // stage that failed (e.g. "enhance", "upload", "dispatch")
	Err       error  // underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *ReportError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("report pipeline error: %v", e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is against the base error types.
func (e *ReportError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Type == ErrorTypeUsage
	case ErrConnectionFailed, ErrTimeout:
		return e.Type == ErrorTypeTransient
	}
	return errors.Is(e.Err, target)
}

// NewUsageError wraps a caller mistake: bad weekday key, missing
// client before a client-requiring action. Never retried.
func NewUsageError(stage string, err error) *ReportError {
	return &ReportError{
		Type:      ErrorTypeUsage,
		Stage:     stage,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: false,
	}
}

// NewTransientError wraps a recoverable collaborator failure. The
// caller surfaces it as retryable; nothing auto-retries.
func NewTransientError(stage string, err error) *ReportError {
	return &ReportError{
		Type:      ErrorTypeTransient,
		Stage:     stage,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: true,
	}
}

// RecipientOutcome records the result of one (recipient, channel)
// dispatch.
type RecipientOutcome struct {
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"` // "email" or "sms"
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// PartialDeliveryError reports that a subset of recipients failed.
// It is not a total failure: successful sends stand and only the
// failed recipients need a retry.
type PartialDeliveryError struct {
	Stage    string
	Outcomes []RecipientOutcome
}

func (e *PartialDeliveryError) Error() string {
	failed := 0
	for _, o := range e.Outcomes {
		if !o.Success {
			failed++
		}
	}
	return fmt.Sprintf("%s: %d of %d recipients failed", e.Stage, failed, len(e.Outcomes))
}

// Failed returns only the failed outcomes.
func (e *PartialDeliveryError) Failed() []RecipientOutcome {
	var out []RecipientOutcome
	for _, o := range e.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// IsRetryable reports whether a manual retry can succeed.
func IsRetryable(err error) bool {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Retryable
	}
	var pe *PartialDeliveryError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// IsUsage reports whether the error is a caller mistake.
func IsUsage(err error) bool {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Type == ErrorTypeUsage
	}
	return errors.Is(err, ErrInvalidInput)
}

// UserMessage renders the single human-readable notification shown
// for a failure: which stage failed and whether retry is possible.
func UserMessage(err error) string {
	var pe *PartialDeliveryError
	if errors.As(err, &pe) {
		return fmt.Sprintf("Delivery partially failed: %d recipient(s) did not receive the report. Retry the failed recipients.", len(pe.Failed()))
	}
	var re *ReportError
	if errors.As(err, &re) {
		if re.Retryable {
			return fmt.Sprintf("The %s step failed. You can retry it.", re.Stage)
		}
		return fmt.Sprintf("The %s step was given invalid input: %v", re.Stage, re.Err)
	}
	return err.Error()
}
