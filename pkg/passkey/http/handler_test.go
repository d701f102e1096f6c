// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
		Credentials: passkey.NewMemoryCredentialRepository(),
		Challenges:  passkey.NewMemoryChallengeStore(),
	})
	require.NoError(t, err)
	return NewHandler(svc)
}

func TestHandler_BeginRegistration(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		body       interface{}
		wantStatus int
		wantErr    string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			body:       nil,
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "method not allowed",
		},
		{
			name:       "invalid body",
			method:     http.MethodPost,
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid request body",
		},
		{
			name:       "missing user id",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{},
			wantStatus: http.StatusBadRequest,
			wantErr:    "user_id is required",
		},
		{
			name:       "success",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{UserID: "alice"},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != nil {
				if s, ok := tt.body.(string); ok {
					body = strings.NewReader(s)
				} else {
					b, _ := json.Marshal(tt.body)
					body = bytes.NewReader(b)
				}
			}

			req := httptest.NewRequest(tt.method, "/registration/begin", body)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.BeginRegistration(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantErr != "" {
				var errResp ErrorResponse
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				require.NoError(t, err)
				assert.Contains(t, errResp.Message, tt.wantErr)
			} else if tt.wantStatus == http.StatusOK {
				assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))
			}
		})
	}
}

func TestHandler_FinishRegistration(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		sessionID  string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "method not allowed",
		},
		{
			name:       "missing session ID",
			method:     http.MethodPost,
			body:       "{}",
			wantStatus: http.StatusBadRequest,
			wantErr:    "session ID header is required",
		},
		{
			name:       "invalid attestation response",
			method:     http.MethodPost,
			sessionID:  "test-session",
			body:       "not valid json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid attestation response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/registration/finish", strings.NewReader(tt.body))
			if tt.sessionID != "" {
				req.Header.Set(HeaderSessionID, tt.sessionID)
			}
			rec := httptest.NewRecorder()

			h.FinishRegistration(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantErr != "" {
				var errResp ErrorResponse
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				require.NoError(t, err)
				assert.Contains(t, errResp.Message, tt.wantErr)
			}
		})
	}
}

func TestHandler_BeginLogin(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "unknown user has no credentials",
			method:     http.MethodPost,
			body:       `{"user_id":"nobody"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeNoCredentials,
		},
		{
			name:       "empty body starts discoverable flow",
			method:     http.MethodPost,
			body:       "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty object starts discoverable flow",
			method:     http.MethodPost,
			body:       "{}",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/login/begin", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.BeginLogin(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var errResp ErrorResponse
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				require.NoError(t, err)
				assert.Equal(t, tt.wantCode, errResp.Error)
			} else {
				assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))
			}
		})
	}
}

func TestHandler_FinishLogin(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		sessionID  string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "method not allowed",
		},
		{
			name:       "missing session ID",
			method:     http.MethodPost,
			body:       "{}",
			wantStatus: http.StatusBadRequest,
			wantErr:    "session ID header is required",
		},
		{
			name:       "invalid assertion response",
			method:     http.MethodPost,
			sessionID:  "test-session",
			body:       "not valid json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid assertion response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/login/finish", strings.NewReader(tt.body))
			if tt.sessionID != "" {
				req.Header.Set(HeaderSessionID, tt.sessionID)
			}
			rec := httptest.NewRecorder()

			h.FinishLogin(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantErr != "" {
				var errResp ErrorResponse
				err := json.NewDecoder(rec.Body).Decode(&errResp)
				require.NoError(t, err)
				assert.Contains(t, errResp.Message, tt.wantErr)
			}
		})
	}
}

func TestHandler_RegistrationStatus(t *testing.T) {
	h := newTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/registration/status", nil)
		rec := httptest.NewRecorder()
		h.RegistrationStatus(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("missing user id reports not registered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/registration/status", nil)
		rec := httptest.NewRecorder()
		h.RegistrationStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp RegistrationStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Registered)
	})

	t.Run("unknown user reports not registered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/registration/status?user_id=alice", nil)
		rec := httptest.NewRecorder()
		h.RegistrationStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp RegistrationStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Registered)
	})
}

func TestHandler_SessionStatus(t *testing.T) {
	h := newTestHandler(t)

	t.Run("missing session ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
		rec := httptest.NewRecorder()
		h.SessionStatus(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session reports not pending", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
		req.Header.Set(HeaderSessionID, "nonexistent")
		rec := httptest.NewRecorder()
		h.SessionStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp SessionStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Pending)
		assert.Empty(t, resp.Purpose)
	})

	t.Run("pending registration ceremony", func(t *testing.T) {
		// Start a ceremony directly through the service
		_, sessionID, err := h.service.BeginRegistration(context.Background(), "alice")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/session/status", nil)
		req.Header.Set(HeaderSessionID, sessionID)
		rec := httptest.NewRecorder()
		h.SessionStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp SessionStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Pending)
		assert.Equal(t, "registration", resp.Purpose)
	})
}

func TestHandler_ServiceErrorMapping(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no pending registration", passkey.ErrNoPendingRegistration, http.StatusBadRequest, ErrorCodeInvalidSession},
		{"challenge not found", passkey.ErrChallengeNotFound, http.StatusBadRequest, ErrorCodeInvalidSession},
		{"challenge expired", passkey.ErrChallengeExpired, http.StatusBadRequest, ErrorCodeSessionExpired},
		{"credential exists", passkey.ErrCredentialAlreadyExists, http.StatusConflict, ErrorCodeCredentialExists},
		{"no credentials", passkey.ErrNoCredentials, http.StatusBadRequest, ErrorCodeNoCredentials},
		{"signature invalid", passkey.ErrSignatureInvalid, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"counter regression", passkey.ErrCounterRegression, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"credential not found", passkey.ErrCredentialNotFound, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"invalid request", passkey.ErrInvalidRequest, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, ErrorCodeInternalError},
		{"wrapped error", passkey.NewError("counter check", passkey.ErrCounterRegression), http.StatusUnauthorized, ErrorCodeVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.handleServiceError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Equal(t, tt.wantCode, errResp.Error)

			// Verification failures share one opaque message
			if tt.wantCode == ErrorCodeVerificationFailed {
				assert.Equal(t, "verification failed", errResp.Message)
			}
		})
	}
}

func TestHandler_RegistrationRecordsMetrics(t *testing.T) {
	h := newTestHandler(t)

	metrics.Enable()
	metrics.CeremoniesTotal.Reset()
	metrics.CeremonyDuration.Reset()
	credsBefore := testutil.ToFloat64(metrics.CredentialsRegisteredTotal)

	rp := virtualwebauthn.RelyingParty{
		Name:   "Example",
		ID:     "example.com",
		Origin: "https://example.com",
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// Begin registration over HTTP
	body, err := json.Marshal(BeginRegistrationRequest{UserID: "alice"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/registration/begin", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BeginRegistration(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sessionID)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(rec.Body.String())
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedOptions)

	// Finish registration over HTTP
	req = httptest.NewRequest(http.MethodPost, "/registration/finish", strings.NewReader(attestation))
	req.Header.Set(HeaderSessionID, sessionID)
	rec = httptest.NewRecorder()
	h.FinishRegistration(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// One begin series and one finish series, both success
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.CeremoniesTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.CeremonyDuration))
	assert.Equal(t, credsBefore+1, testutil.ToFloat64(metrics.CredentialsRegisteredTotal))
}

func TestHandler_FailedCeremonyRecordsErrorMetrics(t *testing.T) {
	h := newTestHandler(t)

	metrics.Enable()
	metrics.CeremoniesTotal.Reset()
	metrics.ErrorsTotal.Reset()

	// Begin login for a user with no credentials
	body, err := json.Marshal(BeginLoginRequest{UserID: "ghost"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/login/begin", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BeginLogin(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.CeremoniesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ErrorsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.ErrorsTotal.WithLabelValues(metrics.CeremonyAuthentication, "no_credentials")))
}
