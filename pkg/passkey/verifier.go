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
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Verifier is the subset of the go-webauthn API the ceremonies depend on.
// *webauthn.WebAuthn satisfies it directly; tests substitute a stub to
// exercise failure paths without forging signatures.
type Verifier interface {
	// BeginRegistration generates creation options and session data for a
	// new registration ceremony.
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)

	// CreateCredential verifies an attestation response against the
	// session and returns the new credential.
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)

	// BeginLogin generates assertion options for a known user.
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)

	// BeginDiscoverableLogin generates assertion options with an empty
	// allow list for discoverable credentials.
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)

	// ValidateLogin verifies an assertion response for a known user.
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)

	// ValidateDiscoverableLogin verifies an assertion response, resolving
	// the user through the handler from the response's user handle.
	ValidateDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

var _ Verifier = (*webauthn.WebAuthn)(nil)

// newLibraryVerifier builds the default go-webauthn backed verifier.
func newLibraryVerifier(cfg *Config) (*webauthn.WebAuthn, error) {
	return webauthn.New(cfg.ToWebAuthnConfig())
}
