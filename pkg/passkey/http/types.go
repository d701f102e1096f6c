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

// HeaderSessionID is the header name for the session ID.
const HeaderSessionID = "X-Session-Id"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// UserID is the user's chosen identifier (required).
	UserID string `json:"user_id"`
}

// BeginLoginRequest is the request body for starting authentication.
type BeginLoginRequest struct {
	// UserID is the user identifier (optional).
	// If not provided, discoverable credentials flow is used.
	UserID string `json:"user_id,omitempty"`
}

// RegistrationStatusResponse is the response for registration status.
type RegistrationStatusResponse struct {
	// Registered indicates if the user has registered credentials.
	Registered bool `json:"registered"`
}

// SessionStatusResponse reports the ceremony pending for a session ID.
type SessionStatusResponse struct {
	// Pending indicates a ceremony is in flight for the session.
	Pending bool `json:"pending"`

	// Purpose is "registration" or "authentication" when pending.
	Purpose string `json:"purpose,omitempty"`
}

// RegistrationResponse is the response after successful registration.
type RegistrationResponse struct {
	// UserID is the user identifier the credential was registered to.
	UserID string `json:"user_id"`

	// DeviceType is "single-device" or "multi-device".
	DeviceType string `json:"device_type"`

	// BackedUp indicates the credential is currently backed up.
	BackedUp bool `json:"backed_up"`
}

// AuthResponse is the response after successful login.
type AuthResponse struct {
	// Token is the authentication token (JWT or base64 user ID).
	Token string `json:"token"`

	// UserID is the user identifier.
	UserID string `json:"user_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidSession     = "invalid_session"
	ErrorCodeSessionExpired     = "session_expired"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeCredentialExists   = "credential_exists"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeInternalError      = "internal_error"
)
