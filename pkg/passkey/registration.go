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

// BeginRegistration starts a registration ceremony for the user. Returns
// the creation options to send to the client and the session ID binding
// the eventual response to this challenge. The user's existing credentials
// are placed on the exclude list so an authenticator will not re-register.
//
// The session ID is a per-ceremony handle: every call mints a fresh one, so
// a new challenge supersedes a prior one only when both are issued under the
// same handle (callers that reuse a session ID via the ledger directly).
func (s *Service) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if userID == "" {
		return nil, "", NewError("begin registration", ErrInvalidRequest)
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	options, session, err := s.verifier.BeginRegistration(user,
		webauthn.WithExclusions(user.descriptors()),
	)
	if err != nil {
		return nil, "", WrapError("begin registration", err)
	}

	sessionID := uuid.NewString()
	if _, err := s.ledger.Issue(ctx, sessionID, PurposeRegistration, userID, *session); err != nil {
		return nil, "", err
	}

	s.logger.Debug("registration ceremony started",
		"user_id", userID,
		"session_id", sessionID,
		"excluded", len(user.credentials))

	return options, sessionID, nil
}

// FinishRegistration completes a registration ceremony. The challenge for
// the session ID is consumed whether or not verification succeeds, so a
// failed attempt cannot be retried against the same challenge.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, NewError("finish registration", ErrInvalidRequest)
	}

	ch, err := s.ledger.Consume(ctx, sessionID, PurposeRegistration)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return nil, ErrNoPendingRegistration
		}
		return nil, err
	}

	user, err := s.loadUser(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.CreateCredential(user, ch.Session, response)
	if err != nil {
		s.logger.Debug("attestation verification failed",
			"user_id", ch.UserID,
			"session_id", sessionID,
			"error", err)
		return nil, NewError("create credential", ErrSignatureInvalid)
	}

	cred := FromWebAuthnCredential(ch.UserID, verified)
	if err := s.creds.Insert(ctx, cred); err != nil {
		if errors.Is(err, ErrCredentialAlreadyExists) {
			return nil, err
		}
		return nil, WrapError("insert credential", err)
	}

	s.logger.Info("credential registered",
		"user_id", ch.UserID,
		"device_type", cred.DeviceType,
		"backed_up", cred.BackedUp)

	return cred, nil
}
