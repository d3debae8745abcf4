// models/bulkjob.go
package models

import "time"

// AttemptState tracks a single phone number's progress through verification.
type AttemptState string

const (
	AttemptPending          AttemptState = "pending"
	AttemptCodeRequested    AttemptState = "code_requested"
	AttemptAwaitingCode     AttemptState = "awaiting_code"
	AttemptAwaitingPassword AttemptState = "awaiting_password"
	AttemptVerified         AttemptState = "verified"
	AttemptFailed           AttemptState = "failed"
	AttemptSkipped          AttemptState = "skipped"
)

// Terminal reports whether the state can no longer change.
func (s AttemptState) Terminal() bool {
	return s == AttemptVerified || s == AttemptFailed || s == AttemptSkipped
}

// PhoneAttempt is one phone number inside a bulk job.
type PhoneAttempt struct {
	Phone            string       `json:"phone"`
	State            AttemptState `json:"state"`
	PasswordAttempts int          `json:"passwordAttempts"`
	FailReason       string       `json:"failReason,omitempty"`
}

// FailedNumber is one failed or skipped entry in the final summary.
type FailedNumber struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

// ProgressSnapshot is what the UI polls while a bulk job runs.
type ProgressSnapshot struct {
	CurrentIndex int          `json:"currentIndex"`
	Total        int          `json:"total"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	CurrentPhone string       `json:"currentPhone,omitempty"`
	CurrentState AttemptState `json:"currentState,omitempty"`
	Running      bool         `json:"running"`
}

// BulkSummary is emitted once when a bulk job finishes.
type BulkSummary struct {
	Country      string         `json:"country"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"successCount"`
	FailureCount int            `json:"failureCount"`
	FailedList   []FailedNumber `json:"failedList,omitempty"`
	CompletedAt  time.Time      `json:"completedAt"`
}

// CreateBulkJobRequest is the request body for creating a bulk job
type CreateBulkJobRequest struct {
	Country string   `json:"country" validate:"required"`
	Numbers []string `json:"numbers" validate:"required,min=1"`
}

// BulkInputRequest carries OTP/password/skip text for the current attempt
type BulkInputRequest struct {
	Text string `json:"text" validate:"required"`
}
