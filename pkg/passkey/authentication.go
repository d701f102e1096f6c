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
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// BeginAuthentication starts an authentication ceremony. With a user ID the
// assertion options carry an allow list of that user's credentials; a user
// with no credentials yields ErrNoCredentials. An empty user ID starts a
// discoverable (usernameless) ceremony with an empty allow list.
//
// As with BeginRegistration, the session ID is a per-ceremony handle minted
// fresh on every call; challenge supersession applies per handle.
func (s *Service) BeginAuthentication(ctx context.Context, userID string) (*protocol.CredentialAssertion, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}

	var options *protocol.CredentialAssertion
	var session *webauthn.SessionData
	var err error

	if userID == "" {
		options, session, err = s.verifier.BeginDiscoverableLogin()
	} else {
		user, loadErr := s.loadUser(ctx, userID)
		if loadErr != nil {
			return nil, "", loadErr
		}
		if len(user.credentials) == 0 {
			return nil, "", ErrNoCredentials
		}
		options, session, err = s.verifier.BeginLogin(user)
	}
	if err != nil {
		return nil, "", WrapError("begin authentication", err)
	}

	sessionID := uuid.NewString()
	if _, err := s.ledger.Issue(ctx, sessionID, PurposeAuthentication, userID, *session); err != nil {
		return nil, "", err
	}

	s.logger.Debug("authentication ceremony started",
		"user_id", userID,
		"session_id", sessionID,
		"discoverable", userID == "")

	return options, sessionID, nil
}

// FinishAuthentication completes an authentication ceremony. The challenge
// is consumed up front so replays and failed attempts both spend it. On
// success the credential's sign counter has already been advanced in the
// repository.
func (s *Service) FinishAuthentication(ctx context.Context, sessionID string, response *protocol.ParsedCredentialAssertionData) (*AuthResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, NewError("finish authentication", ErrInvalidRequest)
	}

	ch, err := s.ledger.Consume(ctx, sessionID, PurposeAuthentication)
	if err != nil {
		return nil, err
	}

	stored, err := s.creds.FindByID(ctx, response.RawID)
	if err != nil {
		return nil, err
	}

	// In the username-first flow the signing credential must belong to the
	// user the challenge was issued for.
	if ch.UserID != "" && stored.UserID != ch.UserID {
		return nil, NewError("validate assertion", ErrSignatureInvalid)
	}

	user, err := s.loadUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}

	var verified *webauthn.Credential
	if ch.UserID == "" {
		verified, err = s.verifier.ValidateDiscoverableLogin(
			func(rawID, userHandle []byte) (webauthn.User, error) {
				return user, nil
			},
			ch.Session,
			response,
		)
	} else {
		verified, err = s.verifier.ValidateLogin(user, ch.Session, response)
	}
	if err != nil {
		s.logger.Debug("assertion verification failed",
			"user_id", stored.UserID,
			"session_id", sessionID,
			"error", err)
		return nil, NewError("validate assertion", ErrSignatureInvalid)
	}

	if err := s.applyCounterPolicy(ctx, stored, verified); err != nil {
		return nil, err
	}

	stored.SignCounter = verified.Authenticator.SignCount
	stored.BackedUp = verified.Flags.BackupState

	s.logger.Info("authentication succeeded",
		"user_id", stored.UserID,
		"sign_counter", stored.SignCounter)

	return &AuthResult{UserID: stored.UserID, Credential: stored}, nil
}

// applyCounterPolicy enforces signature counter monotonicity. Multi-device
// (synced) credentials do not maintain reliable counters, so the check is
// skipped for them. Authenticators that never implement a counter report
// zero on every assertion; a zero-to-zero transition is accepted. Anything
// else must strictly increase or the assertion is treated as a possible
// clone.
func (s *Service) applyCounterPolicy(ctx context.Context, stored *Credential, verified *webauthn.Credential) error {
	reported := verified.Authenticator.SignCount

	if stored.DeviceType == DeviceTypeMultiDevice {
		if reported > stored.SignCounter {
			// Keep the stored counter fresh, losing the race is fine here.
			if err := s.creds.UpdateCounter(ctx, stored.ID, reported); err != nil &&
				!errors.Is(err, ErrStaleCounter) {
				return WrapError("update counter", err)
			}
		}
		return nil
	}

	if verified.Authenticator.CloneWarning {
		return NewError("counter check", ErrCounterRegression)
	}
	if stored.SignCounter == 0 && reported == 0 {
		return nil
	}
	if reported <= stored.SignCounter {
		return NewError("counter check", ErrCounterRegression)
	}

	if err := s.creds.UpdateCounter(ctx, stored.ID, reported); err != nil {
		// A lost compare-and-set means a concurrent assertion already
		// advanced past this value, which is the regression case.
		if errors.Is(err, ErrStaleCounter) {
			return NewError("counter check", ErrCounterRegression)
		}
		return WrapError("update counter", err)
	}
	return nil
}
