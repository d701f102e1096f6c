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

package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// CredentialRepository implements passkey.CredentialRepository over SQLite.
type CredentialRepository struct {
	store *Store
}

// NewCredentialRepository creates a credential repository over the store.
func NewCredentialRepository(store *Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

var _ passkey.CredentialRepository = (*CredentialRepository)(nil)

// encodeCredentialID renders a binary credential ID as the primary key.
func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// Insert stores a new credential.
func (r *CredentialRepository) Insert(ctx context.Context, cred *passkey.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.store == nil || r.store.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(cred.ID) == 0 {
		return fmt.Errorf("credential id is required")
	}
	if cred.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	transports, err := json.Marshal(cred.Transports)
	if err != nil {
		return fmt.Errorf("marshal transports: %w", err)
	}

	_, err = r.store.sqlDB.ExecContext(
		ctx,
		`INSERT INTO credentials (
		   credential_id,
		   user_id,
		   public_key,
		   attestation_type,
		   sign_counter,
		   device_type,
		   backed_up,
		   transports,
		   aaguid,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		encodeCredentialID(cred.ID),
		cred.UserID,
		cred.PublicKey,
		cred.AttestationType,
		cred.SignCounter,
		string(cred.DeviceType),
		boolToInt(cred.BackedUp),
		string(transports),
		cred.AAGUID,
		toMillis(cred.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrCredentialAlreadyExists
		}
		return storageErr("insert credential", err)
	}
	return nil
}

// FindByID returns the credential with the given ID.
func (r *CredentialRepository) FindByID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil || r.store == nil || r.store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := r.store.sqlDB.QueryRowContext(
		ctx,
		`SELECT credential_id, user_id, public_key, attestation_type,
		        sign_counter, device_type, backed_up, transports, aaguid, created_at
		   FROM credentials WHERE credential_id = ?`,
		encodeCredentialID(credentialID),
	)
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, storageErr("find credential", err)
	}
	return cred, nil
}

// FindByUser returns the user's credentials in registration order.
func (r *CredentialRepository) FindByUser(ctx context.Context, userID string) ([]*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil || r.store == nil || r.store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := r.store.sqlDB.QueryContext(
		ctx,
		`SELECT credential_id, user_id, public_key, attestation_type,
		        sign_counter, device_type, backed_up, transports, aaguid, created_at
		   FROM credentials WHERE user_id = ? ORDER BY created_at, credential_id`,
		userID,
	)
	if err != nil {
		return nil, storageErr("query credentials", err)
	}
	defer rows.Close()

	creds := []*passkey.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, storageErr("scan credential", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate credentials", err)
	}
	return creds, nil
}

// UpdateCounter advances the sign counter with a compare-and-set. The row
// updates only when newCounter is strictly greater than the stored value.
func (r *CredentialRepository) UpdateCounter(ctx context.Context, credentialID []byte, newCounter uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.store == nil || r.store.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	key := encodeCredentialID(credentialID)
	res, err := r.store.sqlDB.ExecContext(
		ctx,
		`UPDATE credentials SET sign_counter = ? WHERE credential_id = ? AND sign_counter < ?`,
		newCounter, key, newCounter,
	)
	if err != nil {
		return storageErr("update counter", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a lost compare-and-set from a missing credential.
	var exists int
	err = r.store.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM credentials WHERE credential_id = ?`,
		key,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return passkey.ErrCredentialNotFound
	}
	if err != nil {
		return storageErr("check credential", err)
	}
	return passkey.ErrStaleCounter
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*passkey.Credential, error) {
	var (
		encodedID  string
		userID     string
		publicKey  []byte
		attType    string
		counter    uint32
		deviceType string
		backedUp   int
		transports string
		aaguid     []byte
		createdAt  int64
	)
	if err := row.Scan(&encodedID, &userID, &publicKey, &attType,
		&counter, &deviceType, &backedUp, &transports, &aaguid, &createdAt); err != nil {
		return nil, err
	}

	id, err := base64.RawURLEncoding.DecodeString(encodedID)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	var transportList []protocol.AuthenticatorTransport
	if err := json.Unmarshal([]byte(transports), &transportList); err != nil {
		return nil, fmt.Errorf("unmarshal transports: %w", err)
	}

	return &passkey.Credential{
		ID:              id,
		UserID:          userID,
		PublicKey:       publicKey,
		AttestationType: attType,
		SignCounter:     counter,
		DeviceType:      passkey.DeviceType(deviceType),
		BackedUp:        backedUp != 0,
		Transports:      transportList,
		AAGUID:          aaguid,
		CreatedAt:       fromMillis(createdAt),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
