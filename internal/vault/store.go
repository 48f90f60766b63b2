// Package vault stores credential entries for the identity of the live
// session. Entry secrets are sealed with the session key before they reach
// the byte store; every other field is kept in the clear.
//
// Every operation except Len requires an unlocked session and fails with
// session.ErrVaultLocked or session.ErrSessionExpired otherwise.
//
// List fails as a whole when any entry does not decrypt. The error wraps
// crypto.ErrAuthFailed and names the entry id.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
	"github.com/illarion/keysafe/internal/storage"
)

var (
	ErrNotFound     = errors.New("entry not found")
	ErrInvalidEntry = errors.New("invalid entry")
)

// Store is the vault of the live session. Mutations are serialised and each
// one persists the whole collection with a single Put.
type Store struct {
	mu       sync.Mutex
	db       storage.Store
	sessions *session.Manager
	now      func() time.Time
}

// NewStore returns a vault gated by sessions and persisted into db.
func NewStore(db storage.Store, sessions *session.Manager) *Store {
	return &Store{
		db:       db,
		sessions: sessions,
		now:      time.Now,
	}
}

// List returns every entry with its secret decrypted, in insertion order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	err := s.sessions.WithSession(func(identity string, key []byte) error {
		c, err := s.load(ctx, identity)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(c))
		for i := range c {
			e, err := c[i].open(key)
			if err != nil {
				log.Error().Str("identity", identity).Str("entry", c[i].ID).Msg("entry failed integrity check")
				wipe(entries)
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns a single decrypted entry.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry Entry
	err := s.sessions.WithSession(func(identity string, key []byte) error {
		c, err := s.load(ctx, identity)
		if err != nil {
			return err
		}
		i := c.find(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		entry, err = c[i].open(key)
		return err
	})
	return entry, err
}

// Add seals and appends a new entry and returns its id.
func (s *Store) Add(ctx context.Context, e NewEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.sessions.WithSession(func(identity string, key []byte) error {
		if strings.TrimSpace(e.Title) == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidEntry)
		}

		c, err := s.load(ctx, identity)
		if err != nil {
			return err
		}

		blob, err := crypto.Encrypt(key, e.Secret)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}

		now := s.now().UTC()
		newID := uuid.NewString()
		c = append(c, sealed{
			ID:        newID,
			Title:     e.Title,
			Username:  e.Username,
			Secret:    blob,
			Website:   e.Website,
			Notes:     e.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err := s.save(ctx, identity, c); err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Debug().Str("entry", id).Msg("entry added")
	return id, nil
}

// Update merges p into entry id. The secret is re-sealed only when p sets
// it; an empty patch writes nothing.
func (s *Store) Update(ctx context.Context, id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.WithSession(func(identity string, key []byte) error {
		if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidEntry)
		}

		c, err := s.load(ctx, identity)
		if err != nil {
			return err
		}
		i := c.find(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if p.Empty() {
			return nil
		}
		if err := c[i].apply(p, key, s.now().UTC()); err != nil {
			return err
		}
		return s.save(ctx, identity, c)
	})
}

// Delete removes entry id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.WithSession(func(identity string, key []byte) error {
		c, err := s.load(ctx, identity)
		if err != nil {
			return err
		}
		c, ok := c.remove(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return s.save(ctx, identity, c)
	})
}

// Count returns the number of entries in the live session's vault.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.sessions.WithSession(func(identity string, key []byte) error {
		c, err := s.load(ctx, identity)
		n = len(c)
		return err
	})
	return n, err
}

// Len returns the number of entries stored for identity without a session.
// Only public fields are read.
func (s *Store) Len(ctx context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, identity)
	return len(c), err
}

// Reencrypt re-seals every secret of identity's vault from oldKey to newKey
// and returns the previous persisted collection so the caller can Restore it.
// It does not consult the session manager.
func (s *Store) Reencrypt(ctx context.Context, identity string, oldKey, newKey []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.db.Get(ctx, storage.NSVaults, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	c, err := parseCollection(previous)
	if err != nil {
		return nil, err
	}

	for i := range c {
		plain, err := crypto.Decrypt(oldKey, c[i].Secret)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", c[i].ID, err)
		}
		blob, err := crypto.Encrypt(newKey, plain)
		crypto.ClearBytes(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt secret: %w", err)
		}
		c[i].Secret = blob
	}

	if err := s.save(ctx, identity, c); err != nil {
		return nil, err
	}
	return previous, nil
}

// Restore writes back a collection returned by Reencrypt. A nil previous
// removes the vault.
func (s *Store) Restore(ctx context.Context, identity string, previous []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previous == nil {
		err := s.db.Delete(ctx, storage.NSVaults, identity)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.db.Put(ctx, storage.NSVaults, identity, previous)
}

// load reads identity's collection; a missing vault is empty. Must hold s.mu.
func (s *Store) load(ctx context.Context, identity string) (collection, error) {
	data, err := s.db.Get(ctx, storage.NSVaults, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	return parseCollection(data)
}

// save persists c in a single overwrite. Must hold s.mu.
func (s *Store) save(ctx context.Context, identity string, c collection) error {
	data, err := c.marshal()
	if err != nil {
		return err
	}
	if err := s.db.Put(ctx, storage.NSVaults, identity, data); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return nil
}

func wipe(entries []Entry) {
	for i := range entries {
		crypto.ClearBytes(entries[i].Secret)
	}
}
