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

// Package passkey implements a WebAuthn Relying-Party core: challenge
// issuance bound to a browser session, verification of registration and
// authentication ceremonies against the bound challenge, and the
// credential repository consistency rules (global credential-ID
// uniqueness, counter-based clone detection).
//
// The package wraps the go-webauthn/webauthn library behind a narrow
// Verifier interface and provides:
//   - A ChallengeLedger enforcing single-use, time-bounded challenges
//     with at most one live challenge per session
//   - Pluggable CredentialRepository and ChallengeStore interfaces with
//     in-memory implementations for development and testing
//   - Registration and authentication ceremonies with repository-level
//     compare-and-swap sign counter enforcement
//   - Optional JWT generation after a successful ceremony
//
// # Architecture
//
//  1. Ceremony layer (Service) - BeginRegistration, FinishRegistration,
//     BeginAuthentication, FinishAuthentication
//  2. Challenge layer (ChallengeLedger, ChallengeStore) - single-use
//     challenge binding per session
//  3. Storage layer (CredentialRepository) - pluggable persistence;
//     see the sqlite subpackage for a SQL-backed implementation
//  4. HTTP layer (pkg/passkey/http) - composable HTTP handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    Credentials: passkey.NewMemoryCredentialRepository(),
//	    Challenges:  passkey.NewMemoryChallengeStore(),
//	})
//
// For production, back the repository with the sqlite subpackage or your
// own implementation of the storage interfaces.
//
// # WebAuthn Specification Compliance
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package passkey
