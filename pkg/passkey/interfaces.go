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
	"context"
	"time"
)

// CredentialRepository persists credential records. Implementations must be
// safe for concurrent use. All methods return ErrStorageFailure-wrapped
// errors for backend faults and the named sentinels for domain conditions.
type CredentialRepository interface {
	// Insert stores a new credential. Returns ErrCredentialAlreadyExists
	// when a credential with the same ID is already present, for any user.
	Insert(ctx context.Context, cred *Credential) error

	// FindByID returns the credential with the given ID or
	// ErrCredentialNotFound.
	FindByID(ctx context.Context, credentialID []byte) (*Credential, error)

	// FindByUser returns all credentials registered to the user, in
	// registration order. An unknown user yields an empty slice, not an
	// error.
	FindByUser(ctx context.Context, userID string) ([]*Credential, error)

	// UpdateCounter sets the credential's sign counter to newCounter only
	// if newCounter is strictly greater than the stored value. Returns
	// ErrStaleCounter when the compare-and-set loses, and
	// ErrCredentialNotFound when the credential does not exist.
	UpdateCounter(ctx context.Context, credentialID []byte, newCounter uint32) error
}

// ChallengeStore persists pending ceremony challenges keyed by session ID.
// Implementations must be safe for concurrent use; Take must be atomic so
// that exactly one caller wins for a given session ID.
type ChallengeStore interface {
	// Put stores a challenge, replacing any previous challenge for the
	// same session ID.
	Put(ctx context.Context, ch *Challenge) error

	// Take atomically retrieves and deletes the challenge for the session
	// ID. Returns ErrChallengeNotFound when no challenge is stored.
	Take(ctx context.Context, sessionID string) (*Challenge, error)

	// Peek returns the challenge without consuming it, or
	// ErrChallengeNotFound.
	Peek(ctx context.Context, sessionID string) (*Challenge, error)

	// DeleteExpired removes challenges that expired at or before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TokenGenerator mints bearer tokens for authenticated users. Wired by the
// HTTP layer after a successful authentication ceremony.
type TokenGenerator interface {
	// GenerateToken returns a signed token asserting the user's identity.
	GenerateToken(ctx context.Context, userID string) (string, error)
}
