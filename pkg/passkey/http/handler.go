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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Handler provides HTTP handlers for passkey operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "user_id": "alice"
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Session-Id (session identifier for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	start := time.Now()
	options, sessionID, err := h.service.BeginRegistration(r.Context(), req.UserID)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageBegin, ceremonyStatus(err), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError(metrics.CeremonyRegistration, errorType(err))
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Session-Id (from BeginRegistration)
// Request body: Attestation response from authenticator
// Response: RegistrationResponse with the resulting credential summary
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	start := time.Now()
	cred, err := h.service.FinishRegistration(r.Context(), sessionID, response)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageFinish, ceremonyStatus(err), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError(metrics.CeremonyRegistration, errorType(err))
		h.handleServiceError(w, err)
		return
	}
	metrics.RecordCredentialRegistered()

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		UserID:     cred.UserID,
		DeviceType: string(cred.DeviceType),
		BackedUp:   cred.BackedUp,
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{
//	    "user_id": "alice" // optional
//	}
//
// If user_id is omitted, the discoverable credentials flow is used.
// Response: WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Session-Id (session identifier for FinishLogin)
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body for discoverable credentials
		req = BeginLoginRequest{}
	}

	start := time.Now()
	options, sessionID, err := h.service.BeginAuthentication(r.Context(), req.UserID)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StageBegin, ceremonyStatus(err), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError(metrics.CeremonyAuthentication, errorType(err))
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishLogin handles POST /login/finish
//
// Header: X-Session-Id (from BeginLogin)
// Request body: Assertion response from authenticator
// Response: AuthResponse with token and user ID
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	start := time.Now()
	result, err := h.service.FinishAuthentication(r.Context(), sessionID, response)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StageFinish, ceremonyStatus(err), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordError(metrics.CeremonyAuthentication, errorType(err))
		h.handleServiceError(w, err)
		return
	}

	token, err := h.service.IssueToken(r.Context(), result.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:  token,
		UserID: result.UserID,
	})
}

// RegistrationStatus handles GET /registration/status
//
// Query param or header: user_id
// Response: {"registered": true/false}
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: false})
		return
	}

	registered, err := h.service.IsRegistered(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: registered})
}

// SessionStatus handles GET /session/status
//
// Header: X-Session-Id
// Response: {"pending": true/false, "purpose": "registration"|"authentication"}
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	purpose, err := h.service.PendingCeremony(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, passkey.ErrChallengeNotFound) {
			h.writeJSON(w, http.StatusOK, SessionStatusResponse{Pending: false})
			return
		}
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SessionStatusResponse{
		Pending: true,
		Purpose: string(purpose),
	})
}

// handleServiceError maps service errors to HTTP responses. Verification
// failures and counter regressions share one generic unauthorized response
// so callers cannot probe which stage rejected the assertion.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrNoPendingRegistration),
		errors.Is(err, passkey.ErrChallengeNotFound):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "no pending ceremony for session")
	case errors.Is(err, passkey.ErrChallengeExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeSessionExpired, "session expired")
	case errors.Is(err, passkey.ErrCredentialAlreadyExists):
		h.writeError(w, http.StatusConflict, ErrorCodeCredentialExists, "credential already registered")
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, passkey.ErrSignatureInvalid),
		errors.Is(err, passkey.ErrCounterRegression),
		errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// ceremonyStatus renders a service result as a metric status label.
func ceremonyStatus(err error) string {
	if err != nil {
		return metrics.StatusError
	}
	return metrics.StatusSuccess
}

// errorType buckets a service error for the error counter.
func errorType(err error) string {
	switch {
	case errors.Is(err, passkey.ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, passkey.ErrNoPendingRegistration),
		errors.Is(err, passkey.ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, passkey.ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, passkey.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, passkey.ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, passkey.ErrCredentialAlreadyExists):
		return "credential_exists"
	case errors.Is(err, passkey.ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, passkey.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, passkey.ErrStorageFailure):
		return "storage_failure"
	default:
		return "internal"
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
