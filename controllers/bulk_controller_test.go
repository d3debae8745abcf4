package controllers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/services"
)

// acceptAllSession verifies any code on the first try.
type acceptAllSession struct{}

func (acceptAllSession) SubmitCode(ctx context.Context, code string) (services.CodeOutcome, error) {
	return services.CodeAccepted, nil
}
func (acceptAllSession) SubmitPassword(ctx context.Context, password string) error { return nil }
func (acceptAllSession) ExportSession(ctx context.Context) (string, error) {
	return "session-data", nil
}
func (acceptAllSession) Release() {}

type acceptAllVerifier struct{}

func (acceptAllVerifier) RequestCode(ctx context.Context, phone string) (services.LoginSession, error) {
	return acceptAllSession{}, nil
}

type nullStore struct{}

func (nullStore) SaveVerifiedAccount(ctx context.Context, country, phone, sessionString string, hasPassword bool, password string, createdBy int64) error {
	return nil
}

const testOwner int64 = 424242

func newTestController() (*BulkController, *services.BulkService) {
	svc := services.NewBulkService(acceptAllVerifier{}, nullStore{})
	bc := &BulkController{
		bulk:     svc,
		validate: validator.New(),
		logger:   log.New(os.Stdout, "[BULK] ", log.LstdFlags),
	}
	return bc, svc
}

func newRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("telegramId", testOwner)
	return c, rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.Response {
	var resp models.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func awaitState(t *testing.T, svc *services.BulkService, state models.AttemptState) {
	require.Eventually(t, func() bool {
		snap, err := svc.Progress(testOwner)
		return err == nil && snap.CurrentState == state
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGetProgressNoJob(t *testing.T) {
	bc, _ := newTestController()

	c, rec := newRequest(http.MethodGet, "/api/admin/bulk-jobs/progress", "")
	require.NoError(t, bc.GetProgress(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndSubmitInput(t *testing.T) {
	bc, svc := newTestController()

	_, _, err := svc.CreateJob(testOwner, "India", []string{"+12345678901"})
	require.NoError(t, err)

	c, rec := newRequest(http.MethodPost, "/api/admin/bulk-jobs/start", "")
	require.NoError(t, bc.StartJob(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	awaitState(t, svc, models.AttemptAwaitingCode)

	c, rec = newRequest(http.MethodPost, "/api/admin/bulk-jobs/input", `{"text":"12345"}`)
	require.NoError(t, bc.SubmitInput(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The single number verified, so the job is done
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Input accepted, job complete", resp.Message)

	_, err = svc.Job(testOwner)
	assert.ErrorIs(t, err, services.ErrNoJob)
}

func TestSubmitInputBadCode(t *testing.T) {
	bc, svc := newTestController()

	_, _, err := svc.CreateJob(testOwner, "India", []string{"+12345678901"})
	require.NoError(t, err)
	require.NoError(t, svc.Start(testOwner))

	c, rec := newRequest(http.MethodPost, "/api/admin/bulk-jobs/input", `{"text":"12"}`)
	require.NoError(t, bc.SubmitInput(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.Message, "5 digits")
}

func TestPauseSkipCancelFlow(t *testing.T) {
	bc, svc := newTestController()

	_, _, err := svc.CreateJob(testOwner, "India", []string{"+12345678901", "+19876543210"})
	require.NoError(t, err)
	require.NoError(t, svc.Start(testOwner))

	c, rec := newRequest(http.MethodPost, "/api/admin/bulk-jobs/pause", "")
	require.NoError(t, bc.PauseJob(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRequest(http.MethodPost, "/api/admin/bulk-jobs/skip", "")
	require.NoError(t, bc.SkipCurrent(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRequest(http.MethodGet, "/api/admin/bulk-jobs/progress", "")
	require.NoError(t, bc.GetProgress(c))
	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var snap models.ProgressSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 1, snap.FailureCount)
	assert.False(t, snap.Running)

	c, rec = newRequest(http.MethodPost, "/api/admin/bulk-jobs/cancel", "")
	require.NoError(t, bc.CancelJob(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRequest(http.MethodPost, "/api/admin/bulk-jobs/cancel", "")
	require.NoError(t, bc.CancelJob(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingTelegramIdentity(t *testing.T) {
	bc, _ := newTestController()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/bulk-jobs/progress", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, bc.GetProgress(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
