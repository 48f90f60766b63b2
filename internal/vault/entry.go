package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/illarion/keysafe/internal/crypto"
)

// Entry is a decrypted vault entry. Secret is plaintext; callers should
// crypto.ClearBytes it when done.
type Entry struct {
	ID        string
	Title     string
	Username  string
	Secret    []byte
	Website   string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntry holds the fields of an entry that does not exist yet.
type NewEntry struct {
	Title    string
	Username string
	Secret   []byte
	Website  string
	Notes    string
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	Title    *string
	Username *string
	Secret   []byte
	Website  *string
	Notes    *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Username == nil && p.Secret == nil &&
		p.Website == nil && p.Notes == nil
}

// sealed is the persisted form of an entry; Secret is nonce||ct||tag.
type sealed struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	Secret    []byte    `json:"secret"`
	Website   string    `json:"website,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *sealed) open(key []byte) (Entry, error) {
	secret, err := crypto.Decrypt(key, s.Secret)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: %w", s.ID, err)
	}
	return Entry{
		ID:        s.ID,
		Title:     s.Title,
		Username:  s.Username,
		Secret:    secret,
		Website:   s.Website,
		Notes:     s.Notes,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

// apply merges p into s, sealing a new secret when one is given.
func (s *sealed) apply(p Patch, key []byte, now time.Time) error {
	if p.Secret != nil {
		blob, err := crypto.Encrypt(key, p.Secret)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}
		s.Secret = blob
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Username != nil {
		s.Username = *p.Username
	}
	if p.Website != nil {
		s.Website = *p.Website
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	s.UpdatedAt = now
	return nil
}

// collection is the ordered list of entries persisted for one identity.
type collection []sealed

func parseCollection(data []byte) (collection, error) {
	var c collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: corrupt vault collection: %v", crypto.ErrAuthFailed, err)
	}
	return c, nil
}

func (c collection) marshal() ([]byte, error) {
	if c == nil {
		c = collection{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vault collection: %w", err)
	}
	return data, nil
}

// find returns the index of id, or -1
func (c collection) find(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// remove deletes id, preserving order
func (c collection) remove(id string) (collection, bool) {
	i := c.find(id)
	if i < 0 {
		return c, false
	}
	return append(c[:i], c[i+1:]...), true
}
