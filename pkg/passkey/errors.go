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

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and repository operations.
var (
	// ErrChallengeNotFound is returned when a session has no live challenge
	// of the expected purpose.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired is returned when a challenge exceeded its TTL
	// before consumption.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrNoPendingRegistration is returned when a registration completion
	// arrives for a session with no pending registration identity.
	ErrNoPendingRegistration = errors.New("no pending registration")

	// ErrSignatureInvalid is returned when cryptographic verification of a
	// ceremony response is rejected. The underlying reason is logged, never
	// surfaced to clients.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrCounterRegression is returned when an assertion reports a sign
	// counter that did not advance past the stored value, signalling a
	// possible cloned authenticator. Treated as a hard failure.
	ErrCounterRegression = errors.New("sign counter regression")

	// ErrStaleCounter is returned by CredentialRepository.UpdateCounter when
	// the new counter is not strictly greater than the stored value at the
	// moment of the update.
	ErrStaleCounter = errors.New("stale sign counter")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned when a credential ID collides
	// with an existing row, regardless of owner.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrStorageFailure is returned when the underlying persistence is
	// unavailable or produced an unexpected result.
	ErrStorageFailure = errors.New("storage failure")

	// ErrNoCredentials is returned when a username-first authentication is
	// requested for a user with no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrInvalidRequest is returned when a request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and error.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsChallengeExpired returns true if the error indicates an expired challenge.
func IsChallengeExpired(err error) bool {
	return errors.Is(err, ErrChallengeExpired)
}

// IsChallengeNotFound returns true if the error indicates a missing challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsCounterRegression returns true if the error indicates a sign counter regression.
func IsCounterRegression(err error) bool {
	return errors.Is(err, ErrCounterRegression)
}

// IsStorageFailure returns true if the error indicates a backend fault.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// IsSignatureInvalid returns true if the error indicates verification was rejected.
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}
