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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryCredentialRepository is an in-memory implementation of
// CredentialRepository. This is intended for development and testing only.
type MemoryCredentialRepository struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]*Credential
}

// NewMemoryCredentialRepository creates a new in-memory credential repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]*Credential),
	}
}

// Insert stores a new credential.
func (r *MemoryCredentialRepository) Insert(ctx context.Context, cred *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hex.EncodeToString(cred.ID)
	if _, ok := r.byID[key]; ok {
		return ErrCredentialAlreadyExists
	}

	stored := *cred
	r.byID[key] = &stored
	r.byUserID[cred.UserID] = append(r.byUserID[cred.UserID], &stored)

	return nil
}

// FindByID retrieves a credential by its ID.
func (r *MemoryCredentialRepository) FindByID(ctx context.Context, credentialID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	// Return a copy to prevent external modification
	out := *cred
	return &out, nil
}

// FindByUser retrieves all credentials for a user, in registration order.
func (r *MemoryCredentialRepository) FindByUser(ctx context.Context, userID string) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds, ok := r.byUserID[userID]
	if !ok {
		return []*Credential{}, nil
	}

	result := make([]*Credential, len(creds))
	for i, c := range creds {
		out := *c
		result[i] = &out
	}
	return result, nil
}

// UpdateCounter advances the credential's sign counter if and only if
// newCounter is strictly greater than the stored value.
func (r *MemoryCredentialRepository) UpdateCounter(ctx context.Context, credentialID []byte, newCounter uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if newCounter <= cred.SignCounter {
		return ErrStaleCounter
	}

	cred.SignCounter = newCounter
	return nil
}

// Count returns the total number of credentials in the repository.
func (r *MemoryCredentialRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Clear removes all credentials from the repository.
func (r *MemoryCredentialRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Credential)
	r.byUserID = make(map[string][]*Credential)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// This is intended for development and testing only.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
	}
}

// Put stores a challenge, replacing any previous one for the session ID.
func (s *MemoryChallengeStore) Put(ctx context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *ch
	s.challenges[ch.SessionID] = &stored
	return nil
}

// Take atomically retrieves and deletes the challenge for the session ID.
// Exactly one concurrent caller for the same session ID succeeds.
func (s *MemoryChallengeStore) Take(ctx context.Context, sessionID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[sessionID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.challenges, sessionID)
	return ch, nil
}

// Peek returns the challenge without consuming it.
func (s *MemoryChallengeStore) Peek(ctx context.Context, sessionID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[sessionID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	out := *ch
	return &out, nil
}

// DeleteExpired removes challenges that expired at or before now.
func (s *MemoryChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of pending challenges in the store.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
