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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "passkey.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage path is required")

	_, err = Open("   ")
	require.Error(t, err)
}

func TestStore_Ping(t *testing.T) {
	store := openTempStore(t)
	require.NoError(t, store.Ping())

	var nilStore *Store
	assert.Error(t, nilStore.Ping())
}

func TestStore_Close(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "passkey.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var nilStore *Store
	assert.NoError(t, nilStore.Close())
}

func TestStore_BackendFaultsSurfaceStorageFailure(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "passkey.db"))
	require.NoError(t, err)
	repo := NewCredentialRepository(store)
	challenges := NewChallengeStore(store)

	require.NoError(t, store.Close())

	now := time.Now().UTC()
	cred := &passkey.Credential{
		ID:        []byte("cred-1"),
		UserID:    "alice",
		PublicKey: []byte("pk"),
		CreatedAt: now,
	}

	err = repo.Insert(ctx, cred)
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)
	assert.True(t, passkey.IsStorageFailure(err))

	_, err = repo.FindByID(ctx, cred.ID)
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	_, err = repo.FindByUser(ctx, "alice")
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	err = repo.UpdateCounter(ctx, cred.ID, 1)
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	err = challenges.Put(ctx, &passkey.Challenge{
		SessionID: "session-1",
		Purpose:   passkey.PurposeRegistration,
		Session:   webauthn.SessionData{},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	})
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	_, err = challenges.Take(ctx, "session-1")
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	_, err = challenges.Peek(ctx, "session-1")
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)

	_, err = challenges.DeleteExpired(ctx, now)
	assert.ErrorIs(t, err, passkey.ErrStorageFailure)
}

func TestCredentialRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTempStore(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred := &passkey.Credential{
		ID:              []byte{1, 2, 3},
		UserID:          "alice",
		PublicKey:       []byte{4, 5, 6},
		AttestationType: "none",
		SignCounter:     1,
		DeviceType:      passkey.DeviceTypeMultiDevice,
		BackedUp:        true,
		Transports:      []protocol.AuthenticatorTransport{protocol.Internal, protocol.Hybrid},
		AAGUID:          []byte{7, 7, 7},
		CreatedAt:       now,
	}

	require.NoError(t, repo.Insert(ctx, cred))

	got, err := repo.FindByID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, cred.PublicKey, got.PublicKey)
	assert.Equal(t, "none", got.AttestationType)
	assert.Equal(t, uint32(1), got.SignCounter)
	assert.Equal(t, passkey.DeviceTypeMultiDevice, got.DeviceType)
	assert.True(t, got.BackedUp)
	assert.Equal(t, cred.Transports, got.Transports)
	assert.Equal(t, cred.AAGUID, got.AAGUID)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestCredentialRepository_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTempStore(t))

	cred := &passkey.Credential{
		ID:        []byte{1, 2, 3},
		UserID:    "alice",
		PublicKey: []byte{1},
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Insert(ctx, cred))

	// Same ID, same user
	err := repo.Insert(ctx, cred)
	assert.ErrorIs(t, err, passkey.ErrCredentialAlreadyExists)

	// Same ID, different user: the credential ID is globally unique
	err = repo.Insert(ctx, &passkey.Credential{
		ID:        []byte{1, 2, 3},
		UserID:    "bob",
		PublicKey: []byte{2},
		CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, passkey.ErrCredentialAlreadyExists)
}

func TestCredentialRepository_FindByID_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTempStore(t))

	_, err := repo.FindByID(ctx, []byte{9, 9, 9})
	assert.ErrorIs(t, err, passkey.ErrCredentialNotFound)
}

func TestCredentialRepository_FindByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTempStore(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range [][]byte{{1}, {2}, {3}} {
		require.NoError(t, repo.Insert(ctx, &passkey.Credential{
			ID:        id,
			UserID:    "alice",
			PublicKey: []byte{byte(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Insert(ctx, &passkey.Credential{
		ID:        []byte{4},
		UserID:    "bob",
		PublicKey: []byte{4},
		CreatedAt: base,
	}))

	creds, err := repo.FindByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, creds, 3)

	// Registration order is preserved
	assert.Equal(t, []byte{1}, creds[0].ID)
	assert.Equal(t, []byte{2}, creds[1].ID)
	assert.Equal(t, []byte{3}, creds[2].ID)

	// Unknown user returns empty, not an error
	creds, err = repo.FindByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestCredentialRepository_UpdateCounter(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTempStore(t))

	require.NoError(t, repo.Insert(ctx, &passkey.Credential{
		ID:          []byte{1},
		UserID:      "alice",
		PublicKey:   []byte{1},
		SignCounter: 5,
		CreatedAt:   time.Now(),
	}))

	// Unknown credential
	err := repo.UpdateCounter(ctx, []byte{9}, 10)
	assert.ErrorIs(t, err, passkey.ErrCredentialNotFound)

	// Not strictly greater
	err = repo.UpdateCounter(ctx, []byte{1}, 5)
	assert.ErrorIs(t, err, passkey.ErrStaleCounter)
	err = repo.UpdateCounter(ctx, []byte{1}, 4)
	assert.ErrorIs(t, err, passkey.ErrStaleCounter)

	// Strictly greater succeeds
	require.NoError(t, repo.UpdateCounter(ctx, []byte{1}, 6))

	got, err := repo.FindByID(ctx, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, uint32(6), got.SignCounter)
}

func TestChallengeStore_PutTakePeek(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(openTempStore(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := &passkey.Challenge{
		SessionID: "session-1",
		Purpose:   passkey.PurposeRegistration,
		UserID:    "alice",
		Session: webauthn.SessionData{
			Challenge: "challenge-bytes",
			UserID:    []byte("alice"),
		},
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, ch))

	// Peek does not consume
	peeked, err := store.Peek(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, passkey.PurposeRegistration, peeked.Purpose)
	assert.Equal(t, "alice", peeked.UserID)
	assert.Equal(t, "challenge-bytes", peeked.Session.Challenge)
	assert.Equal(t, []byte("alice"), peeked.Session.UserID)
	assert.True(t, peeked.IssuedAt.Equal(now))
	assert.True(t, peeked.ExpiresAt.Equal(now.Add(5*time.Minute)))

	// Take consumes
	taken, err := store.Take(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", taken.UserID)

	_, err = store.Peek(ctx, "session-1")
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
	_, err = store.Take(ctx, "session-1")
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
}

func TestChallengeStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(openTempStore(t))

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &passkey.Challenge{
		SessionID: "session-1",
		Purpose:   passkey.PurposeRegistration,
		UserID:    "alice",
		Session:   webauthn.SessionData{Challenge: "first"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, store.Put(ctx, &passkey.Challenge{
		SessionID: "session-1",
		Purpose:   passkey.PurposeAuthentication,
		UserID:    "",
		Session:   webauthn.SessionData{Challenge: "second"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}))

	ch, err := store.Take(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, passkey.PurposeAuthentication, ch.Purpose)
	assert.Equal(t, "second", ch.Session.Challenge)
}

func TestChallengeStore_Put_RequiresSessionID(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(openTempStore(t))

	err := store.Put(ctx, &passkey.Challenge{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session id is required")
}

func TestChallengeStore_TakeConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(openTempStore(t))

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &passkey.Challenge{
		SessionID: "session-1",
		Purpose:   passkey.PurposeAuthentication,
		Session:   webauthn.SessionData{Challenge: "c"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Take(ctx, "session-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, losers int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		losers++
		assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, losers)
}

func TestChallengeStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore(openTempStore(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	put := func(id string, expiresAt time.Time) {
		require.NoError(t, store.Put(ctx, &passkey.Challenge{
			SessionID: id,
			Purpose:   passkey.PurposeRegistration,
			Session:   webauthn.SessionData{},
			IssuedAt:  now.Add(-time.Minute),
			ExpiresAt: expiresAt,
		}))
	}
	put("live", now.Add(time.Minute))
	put("dead-1", now.Add(-time.Second))
	put("dead-2", now)

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Peek(ctx, "live")
	require.NoError(t, err)
	_, err = store.Peek(ctx, "dead-1")
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
}

func TestStore_BacksService(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
		Credentials: NewCredentialRepository(store),
		Challenges:  NewChallengeStore(store),
	})
	require.NoError(t, err)

	// A ceremony started through the service lands in SQLite
	_, sessionID, err := svc.BeginRegistration(ctx, "alice")
	require.NoError(t, err)

	purpose, err := svc.PendingCeremony(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, passkey.PurposeRegistration, purpose)
}
