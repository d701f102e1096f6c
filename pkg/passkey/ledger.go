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
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// Purpose identifies which ceremony a challenge was issued for. A challenge
// issued for one purpose cannot be consumed by the other.
type Purpose string

const (
	// PurposeRegistration marks a challenge issued by BeginRegistration.
	PurposeRegistration Purpose = "registration"

	// PurposeAuthentication marks a challenge issued by BeginAuthentication.
	PurposeAuthentication Purpose = "authentication"
)

// Challenge is one pending ceremony, keyed by session ID. It carries the
// library session data required to verify the eventual response.
type Challenge struct {
	// SessionID is the opaque handle returned to the client.
	SessionID string `json:"session_id"`

	// Purpose is the ceremony the challenge was issued for.
	Purpose Purpose `json:"purpose"`

	// UserID is the user the challenge was issued for. Empty for
	// discoverable (usernameless) authentication.
	UserID string `json:"user_id,omitempty"`

	// Session is the go-webauthn session data holding the challenge bytes,
	// allowed credential IDs and verification requirements.
	Session webauthn.SessionData `json:"session"`

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the challenge becomes unusable.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its lifetime at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeLedger issues and consumes single-use ceremony challenges on top
// of a ChallengeStore. Consumption is destructive: under concurrent finishes
// for the same session ID exactly one caller obtains the challenge.
type ChallengeLedger struct {
	store  ChallengeStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewChallengeLedger creates a ledger over the given store. Challenges live
// for ttl; a zero ttl falls back to 5 minutes.
func NewChallengeLedger(store ChallengeStore, ttl time.Duration, logger *slog.Logger) *ChallengeLedger {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeLedger{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue stores a new challenge for the session ID. Re-issuing under the same
// session ID supersedes the previous challenge.
func (l *ChallengeLedger) Issue(ctx context.Context, sessionID string, purpose Purpose, userID string, session webauthn.SessionData) (*Challenge, error) {
	now := l.now().UTC()
	ch := &Challenge{
		SessionID: sessionID,
		Purpose:   purpose,
		UserID:    userID,
		Session:   session,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.store.Put(ctx, ch); err != nil {
		return nil, WrapError("ledger.issue", err)
	}
	return ch, nil
}

// Consume atomically removes and returns the challenge for the session ID.
// The challenge is removed even when it turns out to be expired or issued
// for a different purpose, so a failed finish always costs the challenge.
func (l *ChallengeLedger) Consume(ctx context.Context, sessionID string, purpose Purpose) (*Challenge, error) {
	ch, err := l.store.Take(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ch.Expired(l.now().UTC()) {
		return nil, ErrChallengeExpired
	}
	if ch.Purpose != purpose {
		return nil, ErrChallengeNotFound
	}
	return ch, nil
}

// Pending returns the challenge for the session ID without consuming it.
// Expired challenges are reported as not found.
func (l *ChallengeLedger) Pending(ctx context.Context, sessionID string) (*Challenge, error) {
	ch, err := l.store.Peek(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ch.Expired(l.now().UTC()) {
		return nil, ErrChallengeNotFound
	}
	return ch, nil
}

// StartCleanup runs a background sweep that deletes expired challenges every
// interval until the context is cancelled.
func (l *ChallengeLedger) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := l.store.DeleteExpired(ctx, l.now().UTC())
				if err != nil {
					l.logger.Error("challenge cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					metrics.RecordChallengesExpired(removed)
					l.logger.Debug("expired challenges removed", "count", removed)
				}
			}
		}
	}()
}
