// services/verifier.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CodeOutcome is the result of submitting a verification code.
type CodeOutcome int

const (
	// CodeAccepted means the account is signed in and the credential can be exported.
	CodeAccepted CodeOutcome = iota
	// CodePasswordNeeded means the account has two-step verification enabled.
	CodePasswordNeeded
)

// LoginSession drives one phone number's login after the code was sent.
// Release must be called exactly once per session, on every exit path.
type LoginSession interface {
	SubmitCode(ctx context.Context, code string) (CodeOutcome, error)
	SubmitPassword(ctx context.Context, password string) error
	ExportSession(ctx context.Context) (string, error)
	Release()
}

// Verifier starts login attempts against the external verification service.
// Any backend that can send a code, check it, check a two-step password and
// export a durable session string can sit behind this interface.
type Verifier interface {
	RequestCode(ctx context.Context, phone string) (LoginSession, error)
}

// RateLimitedError is returned when the verification service flood-limits a
// number. RetryAfter tells when the number may be tried again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// CodeRejectedError is returned when the service refuses the submitted code
// (wrong, expired or empty).
type CodeRejectedError struct {
	Detail string
}

func (e *CodeRejectedError) Error() string {
	return "code rejected: " + e.Detail
}

// PasswordRejectedError is returned when the two-step password is wrong. The
// engine retries these up to the attempt cap; any other error fails the
// attempt immediately.
type PasswordRejectedError struct {
	Detail string
}

func (e *PasswordRejectedError) Error() string {
	return "password rejected: " + e.Detail
}

var (
	// ErrInvalidNumber means the verification service refused the phone number itself.
	ErrInvalidNumber = errors.New("phone number rejected by verification service")
	// ErrNotAuthorized means ExportSession was called before the login completed.
	ErrNotAuthorized = errors.New("session is not authorized yet")
)
