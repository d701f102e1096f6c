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
	"encoding/base64"
	"fmt"
	"log/slog"
)

// Service provides passkey registration and authentication operations.
type Service struct {
	verifier   Verifier
	config     *Config
	creds      CredentialRepository
	ledger     *ChallengeLedger
	tokens     TokenGenerator // optional
	logger     *slog.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the passkey configuration (required).
	Config *Config

	// Credentials is the credential persistence layer (required).
	Credentials CredentialRepository

	// Challenges is the pending-challenge persistence layer (required).
	Challenges ChallengeStore

	// Tokens is an optional token generator for post-auth tokens.
	// If nil, IssueToken returns the base64-encoded user ID.
	Tokens TokenGenerator

	// Verifier overrides the signature verifier. If nil, a go-webauthn
	// instance is created from Config.
	Verifier Verifier

	// Logger is an optional structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	// Set defaults and validate
	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	verifier := params.Verifier
	if verifier == nil {
		wa, err := newLibraryVerifier(params.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
		}
		verifier = wa
	}

	return &Service{
		verifier:   verifier,
		config:     params.Config,
		creds:      params.Credentials,
		ledger:     NewChallengeLedger(params.Challenges, params.Config.ChallengeTTL, logger),
		tokens:     params.Tokens,
		logger:     logger,
		configured: true,
	}, nil
}

// IsRegistered checks if a user has any registered credentials.
func (s *Service) IsRegistered(ctx context.Context, userID string) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}
	if userID == "" {
		return false, nil
	}

	creds, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return false, WrapError("find credentials", err)
	}
	return len(creds) > 0, nil
}

// Credentials retrieves all credentials registered to a user.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.creds.FindByUser(ctx, userID)
}

// PendingCeremony returns the purpose of the challenge pending for the
// session ID without consuming it. Returns ErrChallengeNotFound when no
// ceremony is in flight.
func (s *Service) PendingCeremony(ctx context.Context, sessionID string) (Purpose, error) {
	if !s.configured {
		return "", ErrNotConfigured
	}

	ch, err := s.ledger.Pending(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return ch.Purpose, nil
}

// IssueToken mints a bearer token for an authenticated user. Without a
// configured TokenGenerator it falls back to the base64-encoded user ID.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if !s.configured {
		return "", ErrNotConfigured
	}

	if s.tokens != nil {
		return s.tokens.GenerateToken(ctx, userID)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(userID)), nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Ledger exposes the challenge ledger, primarily for wiring its cleanup
// sweep into the server lifecycle.
func (s *Service) Ledger() *ChallengeLedger {
	return s.ledger
}

// loadUser assembles a ceremony user from the user's stored credentials.
func (s *Service) loadUser(ctx context.Context, userID string) (*ceremonyUser, error) {
	creds, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return nil, WrapError("find credentials", err)
	}
	return &ceremonyUser{id: userID, credentials: creds}, nil
}
