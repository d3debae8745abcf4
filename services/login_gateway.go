// services/login_gateway.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// LoginGateway talks to the MTProto login sidecar that performs the actual
// phone-code exchange. It implements Verifier; one gateway serves all jobs.
type LoginGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	redis   *redis.Client
}

// NewLoginGateway creates a new login gateway client. The redis client is
// optional; without it flood-wait memoisation is disabled.
func NewLoginGateway(redisClient *redis.Client) *LoginGateway {
	baseURL := os.Getenv("LOGIN_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9090/v1/"
	}
	apiKey := os.Getenv("LOGIN_GATEWAY_KEY")

	if apiKey == "" {
		log.Printf("WARNING: LOGIN_GATEWAY_KEY is missing")
		log.Printf("Please set it for the login gateway to accept requests")
	} else {
		log.Printf("Login Gateway Configuration:")
		log.Printf("  Base URL: %s", baseURL)
		log.Printf("  API Key: [CONFIGURED]")
	}

	return &LoginGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		redis:   redisClient,
	}
}

// gatewayRequest is the sidecar request body
type gatewayRequest struct {
	Phone      string `json:"phone,omitempty"`
	ClientName string `json:"clientName,omitempty"`
	LoginID    string `json:"loginId,omitempty"`
	Code       string `json:"code,omitempty"`
	Password   string `json:"password,omitempty"`
}

// gatewayResponse is the sidecar response body
type gatewayResponse struct {
	Status        string `json:"status"`
	LoginID       string `json:"loginId,omitempty"`
	SessionString string `json:"sessionString,omitempty"`
	Error         string `json:"error,omitempty"`
	RetryAfter    int    `json:"retryAfter,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Sidecar error codes, mirroring the verification service's own taxonomy
const (
	gwErrFloodWait          = "FLOOD_WAIT"
	gwErrPhoneNumberInvalid = "PHONE_NUMBER_INVALID"
	gwErrPhoneCodeInvalid   = "PHONE_CODE_INVALID"
	gwErrPhoneCodeExpired   = "PHONE_CODE_EXPIRED"
	gwErrPhoneCodeEmpty     = "PHONE_CODE_EMPTY"
	gwErrPasswordInvalid    = "PASSWORD_HASH_INVALID"
	gwErrNotAuthorized      = "NOT_AUTHORIZED"
)

// Sidecar statuses
const (
	gwStatusAuthorized     = "authorized"
	gwStatusPasswordNeeded = "password_needed"
)

// makeRequest performs a POST to the sidecar and decodes the response
func (g *LoginGateway) makeRequest(ctx context.Context, endpoint string, payload gatewayRequest) (*gatewayResponse, error) {
	url := g.baseURL + endpoint

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)

	if os.Getenv("LOGIN_GATEWAY_DEBUG") == "true" {
		log.Printf("Login gateway request: %s phone=%s loginId=%s", url, payload.Phone, payload.LoginID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var gwResp gatewayResponse
	if err := json.Unmarshal(respBody, &gwResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if os.Getenv("LOGIN_GATEWAY_DEBUG") == "true" {
		log.Printf("Login gateway response: status=%s error=%s", gwResp.Status, gwResp.Error)
	}

	return &gwResp, nil
}

// floodWaitKey is the redis key memoising a number's flood-wait deadline
func floodWaitKey(phone string) string {
	return "floodwait:" + phone
}

// checkFloodWait returns a RateLimitedError when a previous FLOOD_WAIT for
// this number has not elapsed yet, saving a pointless sidecar round trip.
func (g *LoginGateway) checkFloodWait(ctx context.Context, phone string) error {
	if g.redis == nil {
		return nil
	}
	ttl, err := g.redis.TTL(ctx, floodWaitKey(phone)).Result()
	if err != nil || ttl <= 0 {
		return nil
	}
	return &RateLimitedError{RetryAfter: ttl}
}

// recordFloodWait memoises a FLOOD_WAIT response for the given number
func (g *LoginGateway) recordFloodWait(ctx context.Context, phone string, retryAfter time.Duration) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Set(ctx, floodWaitKey(phone), "1", retryAfter).Err(); err != nil {
		log.Printf("Failed to record flood wait for %s: %v", phone, err)
	}
}

// RequestCode asks the sidecar to send a verification code to the number and
// returns a session bound to that login attempt.
func (g *LoginGateway) RequestCode(ctx context.Context, phone string) (LoginSession, error) {
	if err := g.checkFloodWait(ctx, phone); err != nil {
		return nil, err
	}

	resp, err := g.makeRequest(ctx, "login/sendCode", gatewayRequest{
		Phone:      phone,
		ClientName: "bulk_" + uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	switch resp.Error {
	case "":
	case gwErrFloodWait:
		retryAfter := time.Duration(resp.RetryAfter) * time.Second
		g.recordFloodWait(ctx, phone, retryAfter)
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	case gwErrPhoneNumberInvalid:
		return nil, ErrInvalidNumber
	default:
		return nil, fmt.Errorf("send code failed: %s", gatewayErrorDetail(resp))
	}

	if resp.LoginID == "" {
		return nil, fmt.Errorf("send code failed: gateway returned no login id")
	}

	return &gatewaySession{gateway: g, loginID: resp.LoginID, phone: phone}, nil
}

// gatewaySession is one in-progress login on the sidecar
type gatewaySession struct {
	gateway    *LoginGateway
	loginID    string
	phone      string
	authorized bool
	release    sync.Once
}

// SubmitCode forwards the OTP to the sidecar
func (s *gatewaySession) SubmitCode(ctx context.Context, code string) (CodeOutcome, error) {
	resp, err := s.gateway.makeRequest(ctx, "login/submitCode", gatewayRequest{
		LoginID: s.loginID,
		Code:    code,
	})
	if err != nil {
		return 0, err
	}

	switch resp.Error {
	case "":
	case gwErrPhoneCodeInvalid, gwErrPhoneCodeExpired, gwErrPhoneCodeEmpty:
		return 0, &CodeRejectedError{Detail: gatewayErrorDetail(resp)}
	default:
		return 0, fmt.Errorf("submit code failed: %s", gatewayErrorDetail(resp))
	}

	if resp.Status == gwStatusPasswordNeeded {
		return CodePasswordNeeded, nil
	}
	s.authorized = true
	return CodeAccepted, nil
}

// SubmitPassword forwards the two-step password to the sidecar
func (s *gatewaySession) SubmitPassword(ctx context.Context, password string) error {
	resp, err := s.gateway.makeRequest(ctx, "login/submitPassword", gatewayRequest{
		LoginID:  s.loginID,
		Password: password,
	})
	if err != nil {
		return err
	}

	switch resp.Error {
	case "":
	case gwErrPasswordInvalid:
		return &PasswordRejectedError{Detail: gatewayErrorDetail(resp)}
	default:
		return fmt.Errorf("submit password failed: %s", gatewayErrorDetail(resp))
	}

	s.authorized = true
	return nil
}

// ExportSession pulls the durable session string for a completed login
func (s *gatewaySession) ExportSession(ctx context.Context) (string, error) {
	if !s.authorized {
		return "", ErrNotAuthorized
	}

	resp, err := s.gateway.makeRequest(ctx, "login/export", gatewayRequest{LoginID: s.loginID})
	if err != nil {
		return "", err
	}
	if resp.Error == gwErrNotAuthorized {
		return "", ErrNotAuthorized
	}
	if resp.Error != "" {
		return "", fmt.Errorf("export failed: %s", gatewayErrorDetail(resp))
	}
	if resp.SessionString == "" {
		return "", fmt.Errorf("export failed: gateway returned no session string")
	}
	return resp.SessionString, nil
}

// Release disconnects the sidecar login. Guaranteed to hit the sidecar at
// most once; errors are logged, never propagated, since release runs on every
// exit path including failures.
func (s *gatewaySession) Release() {
	s.release.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		_, err := s.gateway.makeRequest(ctx, "login/release", gatewayRequest{LoginID: s.loginID})
		if err != nil {
			log.Printf("Failed to release login session for %s: %v", s.phone, err)
		}
	})
}

func gatewayErrorDetail(resp *gatewayResponse) string {
	if resp.Message != "" {
		return fmt.Sprintf("%s (%s)", resp.Error, resp.Message)
	}
	return resp.Error
}
