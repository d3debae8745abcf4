package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSidecar scripts the login sidecar's responses per endpoint.
type fakeSidecar struct {
	t         *testing.T
	responses map[string]gatewayResponse
	requests  map[string][]gatewayRequest
	releases  int32
}

func newFakeSidecar(t *testing.T) (*fakeSidecar, *httptest.Server) {
	fs := &fakeSidecar{
		t:         t,
		responses: make(map[string]gatewayResponse),
		requests:  make(map[string][]gatewayRequest),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req gatewayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fs.requests[r.URL.Path] = append(fs.requests[r.URL.Path], req)

		if r.URL.Path == "/login/release" {
			atomic.AddInt32(&fs.releases, 1)
		}

		resp, ok := fs.responses[r.URL.Path]
		if !ok {
			resp = gatewayResponse{Status: gwStatusAuthorized}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func newTestGateway(srv *httptest.Server) *LoginGateway {
	return &LoginGateway{
		baseURL: srv.URL + "/",
		apiKey:  "test-key",
		client:  srv.Client(),
	}
}

func TestRequestCodeHappyPath(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{LoginID: "login-1"}
	fs.responses["/login/export"] = gatewayResponse{SessionString: "1BQANOTEz..."}

	gw := newTestGateway(srv)
	sess, err := gw.RequestCode(context.Background(), "+12345678901")
	require.NoError(t, err)

	outcome, err := sess.SubmitCode(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, CodeAccepted, outcome)

	exported, err := sess.ExportSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1BQANOTEz...", exported)

	// Release is idempotent toward the caller but hits the sidecar once
	sess.Release()
	sess.Release()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.releases))

	// Requests carried the login id from sendCode
	require.Len(t, fs.requests["/login/submitCode"], 1)
	assert.Equal(t, "login-1", fs.requests["/login/submitCode"][0].LoginID)
	assert.Equal(t, "12345", fs.requests["/login/submitCode"][0].Code)
}

func TestRequestCodeFloodWait(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{Error: gwErrFloodWait, RetryAfter: 3600}

	gw := newTestGateway(srv)
	_, err := gw.RequestCode(context.Background(), "+12345678901")

	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, time.Hour, rateLimited.RetryAfter)
}

func TestRequestCodeInvalidNumber(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{Error: gwErrPhoneNumberInvalid}

	gw := newTestGateway(srv)
	_, err := gw.RequestCode(context.Background(), "+12345678901")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func TestSubmitCodeRejected(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{LoginID: "login-1"}
	fs.responses["/login/submitCode"] = gatewayResponse{Error: gwErrPhoneCodeInvalid, Message: "wrong code"}

	gw := newTestGateway(srv)
	sess, err := gw.RequestCode(context.Background(), "+12345678901")
	require.NoError(t, err)

	_, err = sess.SubmitCode(context.Background(), "12345")
	var rejected *CodeRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Detail, "wrong code")
}

func TestSubmitCodePasswordNeeded(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{LoginID: "login-1"}
	fs.responses["/login/submitCode"] = gatewayResponse{Status: gwStatusPasswordNeeded}

	gw := newTestGateway(srv)
	sess, err := gw.RequestCode(context.Background(), "+12345678901")
	require.NoError(t, err)

	outcome, err := sess.SubmitCode(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, CodePasswordNeeded, outcome)

	// Export must refuse until the password step completes
	_, err = sess.ExportSession(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)

	err = sess.SubmitPassword(context.Background(), "hunter2")
	require.NoError(t, err)

	fs.responses["/login/export"] = gatewayResponse{SessionString: "session"}
	_, err = sess.ExportSession(context.Background())
	assert.NoError(t, err)
}

func TestSubmitPasswordRejected(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{LoginID: "login-1"}
	fs.responses["/login/submitPassword"] = gatewayResponse{Error: gwErrPasswordInvalid}

	gw := newTestGateway(srv)
	sess, err := gw.RequestCode(context.Background(), "+12345678901")
	require.NoError(t, err)

	err = sess.SubmitPassword(context.Background(), "wrong")
	var rejected *PasswordRejectedError
	assert.ErrorAs(t, err, &rejected)
}

func TestSendCodeUnknownError(t *testing.T) {
	fs, srv := newFakeSidecar(t)
	fs.responses["/login/sendCode"] = gatewayResponse{Error: "PHONE_NUMBER_BANNED", Message: "banned"}

	gw := newTestGateway(srv)
	_, err := gw.RequestCode(context.Background(), "+12345678901")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHONE_NUMBER_BANNED")

	var rateLimited *RateLimitedError
	assert.False(t, errors.As(err, &rateLimited))
}
