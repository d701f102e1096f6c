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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// ChallengeStore implements passkey.ChallengeStore over SQLite.
type ChallengeStore struct {
	store *Store
}

// NewChallengeStore creates a challenge store over the store.
func NewChallengeStore(store *Store) *ChallengeStore {
	return &ChallengeStore{store: store}
}

var _ passkey.ChallengeStore = (*ChallengeStore)(nil)

// Put stores a challenge, replacing any previous one for the session ID.
func (s *ChallengeStore) Put(ctx context.Context, ch *passkey.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.store == nil || s.store.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if ch.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	sessionJSON, err := json.Marshal(ch.Session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.store.sqlDB.ExecContext(
		ctx,
		`INSERT INTO challenges (session_id, purpose, user_id, session_json, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   purpose = excluded.purpose,
		   user_id = excluded.user_id,
		   session_json = excluded.session_json,
		   issued_at = excluded.issued_at,
		   expires_at = excluded.expires_at`,
		ch.SessionID,
		string(ch.Purpose),
		ch.UserID,
		string(sessionJSON),
		toMillis(ch.IssuedAt),
		toMillis(ch.ExpiresAt),
	)
	if err != nil {
		return storageErr("put challenge", err)
	}
	return nil
}

// Take atomically retrieves and deletes the challenge for the session ID.
// A single DELETE ... RETURNING statement makes concurrent takers race on
// the row itself: exactly one gets it back, the rest see no rows and get
// ErrChallengeNotFound.
func (s *ChallengeStore) Take(ctx context.Context, sessionID string) (*passkey.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.store == nil || s.store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.store.sqlDB.QueryRowContext(
		ctx,
		`DELETE FROM challenges WHERE session_id = ?
		 RETURNING session_id, purpose, user_id, session_json, issued_at, expires_at`,
		sessionID,
	)
	ch, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, storageErr("take challenge", err)
	}
	return ch, nil
}

// Peek returns the challenge without consuming it.
func (s *ChallengeStore) Peek(ctx context.Context, sessionID string) (*passkey.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.store == nil || s.store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.store.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, purpose, user_id, session_json, issued_at, expires_at
		   FROM challenges WHERE session_id = ?`,
		sessionID,
	)
	ch, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, storageErr("peek challenge", err)
	}
	return ch, nil
}

// DeleteExpired removes challenges that expired at or before now.
func (s *ChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.store == nil || s.store.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	res, err := s.store.sqlDB.ExecContext(
		ctx,
		`DELETE FROM challenges WHERE expires_at <= ?`,
		toMillis(now),
	)
	if err != nil {
		return 0, storageErr("delete expired", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("rows affected", err)
	}
	return int(affected), nil
}

func scanChallenge(row rowScanner) (*passkey.Challenge, error) {
	var (
		sessionID   string
		purpose     string
		userID      string
		sessionJSON string
		issuedAt    int64
		expiresAt   int64
	)
	if err := row.Scan(&sessionID, &purpose, &userID, &sessionJSON, &issuedAt, &expiresAt); err != nil {
		return nil, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &passkey.Challenge{
		SessionID: sessionID,
		Purpose:   passkey.Purpose(purpose),
		UserID:    userID,
		Session:   session,
		IssuedAt:  fromMillis(issuedAt),
		ExpiresAt: fromMillis(expiresAt),
	}, nil
}
