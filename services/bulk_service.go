// services/bulk_service.go
package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/utils"
)

// maxPasswordRetries is how many rejected two-step passwords are tolerated
// after the first one. Three submissions total, then the attempt fails.
const maxPasswordRetries = 2

var (
	ErrNoJob          = errors.New("no bulk job in progress")
	ErrJobExists      = errors.New("a bulk job is already in progress for this admin")
	ErrNoValidNumbers = errors.New("no valid phone numbers found")
	ErrAlreadyRunning = errors.New("bulk job already running")
	ErrAlreadyStarted = errors.New("bulk job already started, use resume")
	ErrBadCodeFormat  = errors.New("invalid OTP format, expected 5 digits")
	ErrEmptyPassword  = errors.New("password cannot be empty")
	ErrNoInput        = errors.New("no input expected right now")
	ErrBusy           = errors.New("a verification call is already in progress")
)

// CredentialStore persists successfully verified accounts. Implemented by
// repositories.AccountRepository.
type CredentialStore interface {
	SaveVerifiedAccount(ctx context.Context, country, phone, sessionString string, hasPassword bool, password string, createdBy int64) error
}

// ProgressSink receives job lifecycle events. The websocket hub, the Telegram
// bot and the report mailer all register as sinks.
type ProgressSink interface {
	JobProgress(owner int64, snap models.ProgressSnapshot)
	JobCompleted(owner int64, summary models.BulkSummary)
}

// BulkJob is one admin's run over an ordered list of phone attempts. All
// mutable fields are guarded by mu; every engine operation on the same job is
// serialized through it. Owner and Country are fixed at creation.
type BulkJob struct {
	Owner   int64
	Country string

	mu        sync.Mutex
	attempts  []*models.PhoneAttempt
	cursor    int
	running   bool
	success   int
	failure   int
	session   LoginSession
	inflight  bool
	cancelled bool
	done      bool
	summary   *models.BulkSummary
}

func (j *BulkJob) snapshotLocked() models.ProgressSnapshot {
	snap := models.ProgressSnapshot{
		CurrentIndex: j.cursor,
		Total:        len(j.attempts),
		SuccessCount: j.success,
		FailureCount: j.failure,
		Running:      j.running,
	}
	if j.cursor < len(j.attempts) {
		snap.CurrentPhone = j.attempts[j.cursor].Phone
		snap.CurrentState = j.attempts[j.cursor].State
	}
	return snap
}

func (j *BulkJob) summaryLocked() models.BulkSummary {
	sum := models.BulkSummary{
		Country:      j.Country,
		Total:        len(j.attempts),
		SuccessCount: j.success,
		FailureCount: j.failure,
		CompletedAt:  time.Now().UTC(),
	}
	for _, att := range j.attempts {
		if att.State == models.AttemptFailed || att.State == models.AttemptSkipped {
			sum.FailedList = append(sum.FailedList, models.FailedNumber{
				Phone:  att.Phone,
				Reason: att.FailReason,
			})
		}
	}
	return sum
}

// Attempts returns a copy of the attempt list for rendering.
func (j *BulkJob) Attempts() []models.PhoneAttempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.PhoneAttempt, len(j.attempts))
	for i, att := range j.attempts {
		out[i] = *att
	}
	return out
}

// BulkService owns the per-admin job table and drives jobs through the
// verification facade. At most one job exists per admin; jobs vanish from the
// table on completion or cancellation.
type BulkService struct {
	verifier Verifier
	store    CredentialStore

	mu    sync.RWMutex
	jobs  map[int64]*BulkJob
	sinks []ProgressSink
}

// NewBulkService creates the bulk provisioning service
func NewBulkService(verifier Verifier, store CredentialStore) *BulkService {
	return &BulkService{
		verifier: verifier,
		store:    store,
		jobs:     make(map[int64]*BulkJob),
	}
}

// AddSink registers a progress sink. Call during startup, before jobs run.
func (s *BulkService) AddSink(sink ProgressSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// CreateJob validates the raw number list and registers a new job for the
// admin. Invalid entries are dropped and returned so the caller can report
// them. Fails if no valid numbers remain or the admin already has a job.
func (s *BulkService) CreateJob(owner int64, country string, raw []string) (*BulkJob, []string, error) {
	valid, invalid := utils.ParsePhoneLines(raw)
	if len(valid) == 0 {
		return nil, invalid, ErrNoValidNumbers
	}

	attempts := make([]*models.PhoneAttempt, len(valid))
	for i, phone := range valid {
		attempts[i] = &models.PhoneAttempt{Phone: phone, State: models.AttemptPending}
	}

	job := &BulkJob{
		Owner:    owner,
		Country:  country,
		attempts: attempts,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[owner]; exists {
		return nil, nil, ErrJobExists
	}
	s.jobs[owner] = job

	log.Printf("Bulk job created: owner=%d country=%s numbers=%d dropped=%d",
		owner, country, len(valid), len(invalid))
	return job, invalid, nil
}

// Job returns the admin's current job, if any.
func (s *BulkService) Job(owner int64) (*BulkJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[owner]
	if !ok {
		return nil, ErrNoJob
	}
	return job, nil
}

func (s *BulkService) removeJob(owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, owner)
}

func (s *BulkService) emitProgress(owner int64, snap models.ProgressSnapshot) {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()
	for _, sink := range sinks {
		sink.JobProgress(owner, snap)
	}
}

func (s *BulkService) emitCompleted(owner int64, sum models.BulkSummary) {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()
	for _, sink := range sinks {
		sink.JobCompleted(owner, sum)
	}
}

// Start begins processing the first attempt. Only valid on a fresh job. The
// call blocks until the job next waits on external input, pauses, or ends, so
// HTTP handlers and the bot invoke it from their own goroutines.
func (s *BulkService) Start(owner int64) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return ErrAlreadyRunning
	}
	if job.cursor != 0 {
		job.mu.Unlock()
		return ErrAlreadyStarted
	}
	job.running = true
	job.mu.Unlock()

	s.run(job)
	return nil
}

// Pause stops the cursor from advancing to the next attempt. The current
// attempt is left untouched; input for it is still accepted. Idempotent.
func (s *BulkService) Pause(owner int64) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}
	job.mu.Lock()
	if job.done || job.cancelled {
		job.mu.Unlock()
		return ErrNoJob
	}
	job.running = false
	snap := job.snapshotLocked()
	job.mu.Unlock()
	s.emitProgress(owner, snap)
	return nil
}

// Resume re-enables advancement and kicks the cursor attempt: a Pending
// attempt is processed, a terminal one (e.g. skipped while paused) is
// advanced past, and an awaiting one keeps waiting for input. Idempotent.
func (s *BulkService) Resume(owner int64) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}

	job.mu.Lock()
	// The job can finish while we wait on the lock (the final advance holds
	// it across the session release); waking into a done job must not replay
	// the completion path.
	if job.done || job.cancelled {
		job.mu.Unlock()
		return ErrNoJob
	}
	if job.running {
		job.mu.Unlock()
		return nil
	}
	job.running = true
	if job.cursor < len(job.attempts) && job.attempts[job.cursor].State.Terminal() {
		s.advanceLocked(job)
	}
	s.afterMutation(job)
	return nil
}

// SkipCurrent forces the current attempt to Skipped, equivalent to the
// literal "skip" input. Works regardless of the pause flag.
func (s *BulkService) SkipCurrent(owner int64) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}
	job.mu.Lock()
	return s.skipCurrentLocked(job)
}

// skipCurrentLocked marks the cursor attempt skipped and advances. Takes
// ownership of the held job lock (released via afterMutation).
func (s *BulkService) skipCurrentLocked(job *BulkJob) error {
	if job.done || job.cancelled || job.cursor >= len(job.attempts) {
		job.mu.Unlock()
		return ErrNoJob
	}
	if job.inflight {
		job.mu.Unlock()
		return ErrBusy
	}
	att := job.attempts[job.cursor]
	if att.State.Terminal() {
		job.mu.Unlock()
		return ErrNoInput
	}
	att.State = models.AttemptSkipped
	att.FailReason = "skipped by admin"
	s.advanceLocked(job)
	s.afterMutation(job)
	return nil
}

// Cancel tears the job down unconditionally. Safe to call while a
// verification call is in flight: the in-flight goroutine observes the flag
// and performs the single release when its call returns.
func (s *BulkService) Cancel(owner int64) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}

	job.mu.Lock()
	job.cancelled = true
	job.running = false
	if !job.inflight {
		s.releaseSessionLocked(job)
	}
	job.mu.Unlock()

	s.removeJob(owner)
	log.Printf("Bulk job cancelled: owner=%d", owner)
	return nil
}

// Progress returns the polling snapshot for the admin's job.
func (s *BulkService) Progress(owner int64) (models.ProgressSnapshot, error) {
	job, err := s.Job(owner)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.snapshotLocked(), nil
}

// SubmitInput routes free text to the current attempt: a 5-digit code while
// awaiting the OTP, the two-step password while awaiting it, or the literal
// "skip" (case-insensitive) to abandon the attempt from either state.
func (s *BulkService) SubmitInput(owner int64, text string) error {
	job, err := s.Job(owner)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)

	job.mu.Lock()
	if job.done || job.cancelled || job.cursor >= len(job.attempts) {
		job.mu.Unlock()
		return ErrNoJob
	}

	if strings.EqualFold(text, "skip") {
		return s.skipCurrentLocked(job)
	}

	if job.inflight {
		job.mu.Unlock()
		return ErrBusy
	}

	att := job.attempts[job.cursor]
	switch att.State {
	case models.AttemptAwaitingCode:
		return s.submitCode(job, att, text)
	case models.AttemptAwaitingPassword:
		return s.submitPassword(job, att, text)
	default:
		job.mu.Unlock()
		return ErrNoInput
	}
}

// submitCode verifies the OTP for the current attempt. Called with the job
// lock held; the facade call itself runs unlocked under the inflight guard.
func (s *BulkService) submitCode(job *BulkJob, att *models.PhoneAttempt, code string) error {
	if !utils.IsValidOTP(code) {
		job.mu.Unlock()
		return ErrBadCodeFormat
	}

	sess := job.session
	job.inflight = true
	job.mu.Unlock()

	ctx := context.Background()
	outcome, err := sess.SubmitCode(ctx, code)

	var credential string
	var exportErr, saveErr error
	if err == nil && outcome == CodeAccepted {
		credential, exportErr = sess.ExportSession(ctx)
		if exportErr == nil {
			saveErr = s.store.SaveVerifiedAccount(ctx, job.Country, att.Phone, credential, false, "", job.Owner)
		}
	}

	job.mu.Lock()
	job.inflight = false
	if job.cancelled {
		s.releaseSessionLocked(job)
		job.mu.Unlock()
		return nil
	}

	switch {
	case err != nil:
		s.failAttemptLocked(job, att, "OTP error: "+err.Error())
	case outcome == CodePasswordNeeded:
		att.State = models.AttemptAwaitingPassword
		att.PasswordAttempts = 0
	case exportErr != nil:
		s.failAttemptLocked(job, att, "failed to export session: "+exportErr.Error())
	case saveErr != nil:
		s.failAttemptLocked(job, att, "save error: "+saveErr.Error())
	default:
		att.State = models.AttemptVerified
		s.advanceLocked(job)
	}
	s.afterMutation(job)
	return nil
}

// submitPassword verifies the two-step password. Rejections are retried up to
// maxPasswordRetries; any other error fails the attempt. Called with the job
// lock held.
func (s *BulkService) submitPassword(job *BulkJob, att *models.PhoneAttempt, password string) error {
	if password == "" {
		job.mu.Unlock()
		return ErrEmptyPassword
	}

	sess := job.session
	job.inflight = true
	job.mu.Unlock()

	ctx := context.Background()
	err := sess.SubmitPassword(ctx, password)

	var credential string
	var exportErr, saveErr error
	if err == nil {
		credential, exportErr = sess.ExportSession(ctx)
		if exportErr == nil {
			saveErr = s.store.SaveVerifiedAccount(ctx, job.Country, att.Phone, credential, true, password, job.Owner)
		}
	}

	job.mu.Lock()
	job.inflight = false
	if job.cancelled {
		s.releaseSessionLocked(job)
		job.mu.Unlock()
		return nil
	}

	var rejected *PasswordRejectedError
	switch {
	case err == nil && exportErr == nil && saveErr == nil:
		att.State = models.AttemptVerified
		s.advanceLocked(job)
	case errors.As(err, &rejected):
		if att.PasswordAttempts >= maxPasswordRetries {
			s.failAttemptLocked(job, att, "max password attempts exceeded")
		} else {
			att.PasswordAttempts++
		}
	case err != nil:
		s.failAttemptLocked(job, att, "password error: "+err.Error())
	case exportErr != nil:
		s.failAttemptLocked(job, att, "failed to export session: "+exportErr.Error())
	default:
		s.failAttemptLocked(job, att, "save error: "+saveErr.Error())
	}
	s.afterMutation(job)
	return nil
}

// failAttemptLocked marks the attempt failed and advances the cursor.
func (s *BulkService) failAttemptLocked(job *BulkJob, att *models.PhoneAttempt, reason string) {
	att.State = models.AttemptFailed
	att.FailReason = reason
	log.Printf("Bulk attempt failed: owner=%d phone=%s reason=%s", job.Owner, att.Phone, reason)
	s.advanceLocked(job)
}

// advanceLocked closes out the cursor attempt: releases the session, updates
// the counters (skips count as failures), moves the cursor and, when the list
// is exhausted, builds the summary and marks the job done.
func (s *BulkService) advanceLocked(job *BulkJob) {
	s.releaseSessionLocked(job)

	att := job.attempts[job.cursor]
	if att.State == models.AttemptVerified {
		job.success++
	} else {
		job.failure++
	}
	job.cursor++

	if job.cursor >= len(job.attempts) {
		job.done = true
		job.running = false
		sum := job.summaryLocked()
		job.summary = &sum
	}
}

// releaseSessionLocked releases the held facade session exactly once.
func (s *BulkService) releaseSessionLocked(job *BulkJob) {
	if job.session != nil {
		job.session.Release()
		job.session = nil
	}
}

// afterMutation finishes an engine operation: it emits progress, finalizes a
// completed job and, while running, processes the next Pending attempt. Takes
// ownership of the held job lock and releases it.
func (s *BulkService) afterMutation(job *BulkJob) {
	if job.done {
		sum := *job.summary
		job.mu.Unlock()
		s.finishJob(job.Owner, sum)
		return
	}

	snap := job.snapshotLocked()
	runNext := job.running && job.cursor < len(job.attempts) &&
		job.attempts[job.cursor].State == models.AttemptPending
	job.mu.Unlock()

	s.emitProgress(job.Owner, snap)
	if runNext {
		s.run(job)
	}
}

// finishJob emits the summary and discards the job state.
func (s *BulkService) finishJob(owner int64, sum models.BulkSummary) {
	s.removeJob(owner)
	log.Printf("Bulk job complete: owner=%d total=%d success=%d failed=%d",
		owner, sum.Total, sum.SuccessCount, sum.FailureCount)
	s.emitCompleted(owner, sum)
}

// run drives the job from the cursor until it blocks on external input,
// pauses, completes or is cancelled. Exactly one attempt is in flight at any
// time; the code request runs outside the job lock under the inflight guard.
func (s *BulkService) run(job *BulkJob) {
	for {
		job.mu.Lock()
		if job.done || job.cancelled || !job.running || job.cursor >= len(job.attempts) {
			job.mu.Unlock()
			return
		}
		att := job.attempts[job.cursor]
		if att.State != models.AttemptPending {
			job.mu.Unlock()
			return
		}
		att.State = models.AttemptCodeRequested
		phone := att.Phone
		job.inflight = true
		snap := job.snapshotLocked()
		job.mu.Unlock()

		s.emitProgress(job.Owner, snap)

		sess, err := s.verifier.RequestCode(context.Background(), phone)

		job.mu.Lock()
		job.inflight = false
		if job.cancelled {
			// Cancel raced ahead of the code request; honor the single
			// release here since Cancel could not.
			if sess != nil {
				sess.Release()
			}
			job.mu.Unlock()
			return
		}
		if err != nil {
			att.State = models.AttemptFailed
			att.FailReason = "failed to send OTP: " + err.Error()
			log.Printf("Bulk attempt failed: owner=%d phone=%s reason=%s", job.Owner, phone, att.FailReason)
			s.advanceLocked(job)
			if job.done {
				sum := *job.summary
				job.mu.Unlock()
				s.finishJob(job.Owner, sum)
				return
			}
			cont := job.running
			snap = job.snapshotLocked()
			job.mu.Unlock()
			s.emitProgress(job.Owner, snap)
			if !cont {
				return
			}
			continue
		}

		job.session = sess
		att.State = models.AttemptAwaitingCode
		snap = job.snapshotLocked()
		job.mu.Unlock()
		s.emitProgress(job.Owner, snap)
		return
	}
}
