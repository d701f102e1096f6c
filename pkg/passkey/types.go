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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// DeviceType classifies a credential by its backup eligibility.
type DeviceType string

const (
	// DeviceTypeSingleDevice is a credential bound to one authenticator.
	// Its sign counter is expected to advance on every assertion.
	DeviceTypeSingleDevice DeviceType = "single-device"

	// DeviceTypeMultiDevice is a synced (backup-eligible) credential.
	// Such credentials typically do not maintain reliable sign counters,
	// so counter-based clone detection is skipped for them.
	DeviceTypeMultiDevice DeviceType = "multi-device"
)

// Credential is the public-key record stored by the Relying Party after a
// successful registration ceremony. The credential ID is globally unique
// across all users; the record is never deleted by this core.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning user identifier. The identifier is an opaque
	// nickname chosen at registration; no other PII is stored.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format, opaque to
	// this core.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// SignCounter is the authenticator-reported signature counter used for
	// clone detection. Monotonically non-decreasing over the credential's
	// life; updated only by the authentication ceremony.
	SignCounter uint32 `json:"sign_counter"`

	// DeviceType records whether the credential is single-device or
	// multi-device (synced).
	DeviceType DeviceType `json:"device_type"`

	// BackedUp indicates the credential is currently backed up.
	BackedUp bool `json:"backed_up"`

	// Transports lists the transports claimed by the authenticator at
	// registration. Empty when the response did not specify any.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`
}

// Descriptor returns the credential's descriptor for allow/exclude lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transports,
	}
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.DeviceType == DeviceTypeMultiDevice,
			BackupState:    c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCounter,
		},
	}
}

// FromWebAuthnCredential creates a Credential from a verified go-webauthn
// credential. The device type follows the standard WebAuthn convention:
// a backup-eligible credential is a multi-device (synced) credential.
func FromWebAuthnCredential(userID string, wc *webauthn.Credential) *Credential {
	deviceType := DeviceTypeSingleDevice
	if wc.Flags.BackupEligible {
		deviceType = DeviceTypeMultiDevice
	}
	transports := wc.Transport
	if transports == nil {
		transports = []protocol.AuthenticatorTransport{}
	}
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		SignCounter:     wc.Authenticator.SignCount,
		DeviceType:      deviceType,
		BackedUp:        wc.Flags.BackupState,
		Transports:      transports,
		AAGUID:          wc.Authenticator.AAGUID,
		CreatedAt:       time.Now().UTC(),
	}
}

// AuthResult is the outcome of a successful authentication ceremony. The
// caller is responsible for marking its session authenticated for UserID.
type AuthResult struct {
	// UserID is the owner of the credential that signed the assertion.
	UserID string `json:"user_id"`

	// Credential is the resolved credential with its updated sign counter.
	Credential *Credential `json:"credential"`
}

// ceremonyUser adapts a user identifier and its registered credentials to
// the webauthn.User interface for the duration of one ceremony request.
// Users are identified by nickname only; name and display name are the
// identifier itself so no additional PII enters the options payload.
type ceremonyUser struct {
	id          string
	credentials []*Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.id
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.id
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.credentials))
	for i, c := range u.credentials {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}

// descriptors returns exclude/allow list entries for the user's credentials.
func (u *ceremonyUser) descriptors() []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, len(u.credentials))
	for i, c := range u.credentials {
		out[i] = c.Descriptor()
	}
	return out
}
