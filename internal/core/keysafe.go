package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
	"github.com/illarion/keysafe/internal/storage"
	"github.com/illarion/keysafe/internal/vault"
	"github.com/illarion/keysafe/internal/verifier"
)

var (
	ErrNotInitialized       = errors.New("identity not initialized")
	ErrAlreadyExists        = errors.New("identity already initialized")
	ErrAuthenticationFailed = errors.New("wrong master secret or signature")
	ErrIdentityRequired     = errors.New("identity required")
	ErrSecretRequired       = fmt.Errorf("%w: master secret required", ErrAuthenticationFailed)
	ErrNotSupported         = errors.New("not supported by storage backend")

	ErrVaultLocked    = session.ErrVaultLocked
	ErrSessionExpired = session.ErrSessionExpired
	ErrIntegrity      = crypto.ErrAuthFailed
	ErrNotFound       = vault.ErrNotFound
)

// Options configures a KeySafe.
type Options struct {
	Session session.Config

	// Iterations used for new master secret records. Zero selects
	// crypto.DefaultIters.
	Iterations int

	SessionOptions []session.Option
}

// KeySafe is the credential vault: one byte store, one session at a time.
type KeySafe struct {
	mu       sync.Mutex // serialises unlock, init and rotation
	db       storage.Store
	verifier *verifier.Verifier
	sessions *session.Manager
	vault    *vault.Store
}

// New creates a locked KeySafe over db. KeySafe takes ownership of db.
func New(db storage.Store, opts Options) *KeySafe {
	sessions := session.NewManager(opts.Session, opts.SessionOptions...)
	return &KeySafe{
		db:       db,
		verifier: verifier.New(opts.Iterations),
		sessions: sessions,
		vault:    vault.NewStore(db, sessions),
	}
}

// Close locks the vault and closes the byte store.
func (k *KeySafe) Close() error {
	k.sessions.Lock()
	return k.db.Close()
}

// Sessions exposes the session manager, e.g. to run its Monitor.
func (k *KeySafe) Sessions() *session.Manager {
	return k.sessions
}

// NormalizeIdentity lowercases and trims an identity such as a wallet address.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Init creates the master secret record for identity without unlocking.
func (k *KeySafe) Init(ctx context.Context, identity string, secret, extra []byte) error {
	id, err := checkCredentials(identity, secret)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, err := k.loadRecord(ctx, id); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	rec, err := k.verifier.Bootstrap(secret, extra)
	if err != nil {
		return fmt.Errorf("failed to create master secret record: %w", err)
	}
	if err := k.saveRecord(ctx, id, rec); err != nil {
		return err
	}

	log.Info().Str("identity", id).Bool("bound", rec.Bound).Msg("identity initialized")
	return nil
}

// Unlock verifies secret (and extra, when the record is bound) for identity
// and opens a session. The first unlock of an unknown identity creates its
// record. A failed unlock leaves the vault locked, even if another session
// was live.
func (k *KeySafe) Unlock(ctx context.Context, identity string, secret, extra []byte) error {
	id, err := checkCredentials(identity, secret)
	if err != nil {
		k.sessions.Discard()
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec, err := k.loadRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return k.bootstrap(ctx, id, secret, extra)
	}
	if err != nil && !errors.Is(err, verifier.ErrUnsupportedRecord) {
		return err
	}

	var root *crypto.SecretKey
	if err == nil {
		root, err = k.verifier.Unseal(secret, extra, rec)
	}
	if err != nil {
		k.sessions.Discard()
		log.Warn().Str("identity", id).Msg("unlock failed")
		return ErrAuthenticationFailed
	}

	key, err := verifier.SessionKey(root, id)
	root.Destroy()
	if err != nil {
		k.sessions.Discard()
		return fmt.Errorf("failed to derive session key: %w", err)
	}

	k.sessions.Open(id, key)
	return nil
}

// bootstrap creates a record for id and opens its first session. A record
// whose caller went away before the session opened is removed again, so no
// identity is left that nobody unlocked. Must hold k.mu.
func (k *KeySafe) bootstrap(ctx context.Context, id string, secret, extra []byte) error {
	rec, root, err := k.verifier.BootstrapKey(secret, extra)
	if err != nil {
		k.sessions.Discard()
		return fmt.Errorf("failed to create master secret record: %w", err)
	}
	key, err := verifier.SessionKey(root, id)
	root.Destroy()
	if err != nil {
		k.sessions.Discard()
		return fmt.Errorf("failed to derive session key: %w", err)
	}

	if err := k.saveRecord(ctx, id, rec); err != nil {
		key.Destroy()
		k.sessions.Discard()
		return err
	}

	if err := ctx.Err(); err != nil {
		key.Destroy()
		k.sessions.Discard()
		if derr := k.db.Delete(context.WithoutCancel(ctx), storage.NSIdentities, id); derr != nil {
			log.Error().Err(derr).Str("identity", id).Msg("failed to roll back new identity")
		}
		return err
	}

	log.Info().Str("identity", id).Bool("bound", rec.Bound).Msg("identity initialized")
	k.sessions.Open(id, key)
	return nil
}

// Lock destroys the session key. Safe to call when locked.
func (k *KeySafe) Lock() {
	k.sessions.Lock()
}

// IsLocked reports whether vault operations would fail for lack of a session.
func (k *KeySafe) IsLocked() bool {
	return k.sessions.IsLocked()
}

// Identity returns the identity of the live session.
func (k *KeySafe) Identity() (string, bool) {
	return k.sessions.Identity()
}

// VerifySecret checks secret and extra for identity without touching the
// session.
func (k *KeySafe) VerifySecret(ctx context.Context, identity string, secret, extra []byte) error {
	id, err := checkCredentials(identity, secret)
	if err != nil {
		return err
	}
	rec, err := k.loadRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotInitialized
	}
	if err != nil && !errors.Is(err, verifier.ErrUnsupportedRecord) {
		return err
	}
	if err != nil || !k.verifier.Verify(secret, extra, rec) {
		return ErrAuthenticationFailed
	}
	return nil
}

// ChangeSecret rotates identity's master secret. Every entry is re-sealed
// under the new session key and a fresh record (new salt) replaces the old
// one.
//
// Only a live session of identity itself is touched. It is locked while the
// vault is re-sealed and reopened under the new secret on success. If
// rotation fails and the vault is back under the old key, a session under the
// old secret is reopened instead. A live session of another identity is left
// as it is and no session is opened for identity.
func (k *KeySafe) ChangeSecret(ctx context.Context, identity string, oldSecret, newSecret, extra []byte) error {
	id, err := checkCredentials(identity, oldSecret)
	if err != nil {
		return err
	}
	if len(newSecret) == 0 {
		return ErrSecretRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec, err := k.loadRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotInitialized
	}
	if err != nil && !errors.Is(err, verifier.ErrUnsupportedRecord) {
		return err
	}

	var oldRoot *crypto.SecretKey
	if err == nil {
		oldRoot, err = k.verifier.Unseal(oldSecret, extra, rec)
	}
	if err != nil {
		return ErrAuthenticationFailed
	}
	oldKey, err := verifier.SessionKey(oldRoot, id)
	oldRoot.Destroy()
	if err != nil {
		return fmt.Errorf("failed to derive session key: %w", err)
	}
	defer func() {
		if oldKey != nil {
			oldKey.Destroy()
		}
	}()

	newRec, newRoot, err := k.verifier.BootstrapKey(newSecret, extra)
	if err != nil {
		return fmt.Errorf("failed to create master secret record: %w", err)
	}
	newKey, err := verifier.SessionKey(newRoot, id)
	newRoot.Destroy()
	if err != nil {
		return fmt.Errorf("failed to derive session key: %w", err)
	}

	live, _ := k.sessions.Identity()
	owned := live == id
	reopenOld := func() {
		if owned {
			k.sessions.Open(id, oldKey)
			oldKey = nil
		}
	}

	// nothing may be sealed under the old key from here on
	if owned {
		k.sessions.Lock()
	}

	previous, err := k.vault.Reencrypt(ctx, id, oldKey.Bytes(), newKey.Bytes())
	if err != nil {
		newKey.Destroy()
		reopenOld()
		return fmt.Errorf("failed to re-encrypt vault: %w", err)
	}

	if err := k.saveRecord(ctx, id, newRec); err != nil {
		newKey.Destroy()
		if rerr := k.vault.Restore(context.WithoutCancel(ctx), id, previous); rerr != nil {
			log.Error().Err(rerr).Str("identity", id).Msg("failed to restore vault after rotation error")
			return err
		}
		reopenOld()
		return err
	}

	log.Info().Str("identity", id).Msg("master secret changed")
	if !owned {
		newKey.Destroy()
		return nil
	}
	k.sessions.Open(id, newKey)
	return nil
}

// ListEntries returns every entry of the live session's vault, decrypted.
func (k *KeySafe) ListEntries(ctx context.Context) ([]vault.Entry, error) {
	return k.vault.List(ctx)
}

// GetEntry returns a single decrypted entry.
func (k *KeySafe) GetEntry(ctx context.Context, id string) (vault.Entry, error) {
	return k.vault.Get(ctx, id)
}

// AddEntry stores a new entry and returns its id.
func (k *KeySafe) AddEntry(ctx context.Context, title, username string, secret []byte, website string) (string, error) {
	return k.AddEntryWithNotes(ctx, title, username, secret, website, "")
}

// AddEntryWithNotes is AddEntry with free-form notes.
func (k *KeySafe) AddEntryWithNotes(ctx context.Context, title, username string, secret []byte, website, notes string) (string, error) {
	return k.vault.Add(ctx, vault.NewEntry{
		Title:    title,
		Username: username,
		Secret:   secret,
		Website:  website,
		Notes:    notes,
	})
}

// UpdateEntry merges p into entry id.
func (k *KeySafe) UpdateEntry(ctx context.Context, id string, p vault.Patch) error {
	return k.vault.Update(ctx, id, p)
}

// DeleteEntry removes entry id.
func (k *KeySafe) DeleteEntry(ctx context.Context, id string) error {
	return k.vault.Delete(ctx, id)
}

// CountEntries returns the number of entries in the live session's vault.
func (k *KeySafe) CountEntries(ctx context.Context) (int, error) {
	return k.vault.Count(ctx)
}

// Identities returns every initialized identity.
func (k *KeySafe) Identities(ctx context.Context) ([]string, error) {
	return k.db.Keys(ctx, storage.NSIdentities)
}

// Compact reclaims free space in the byte store.
func (k *KeySafe) Compact() error {
	c, ok := k.db.(storage.Compacter)
	if !ok {
		return ErrNotSupported
	}
	return c.Compact()
}

func (k *KeySafe) loadRecord(ctx context.Context, id string) (*verifier.Record, error) {
	data, err := k.db.Get(ctx, storage.NSIdentities, id)
	if err != nil {
		return nil, err
	}
	rec, err := verifier.ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verifier.ErrUnsupportedRecord, err)
	}
	return rec, nil
}

func (k *KeySafe) saveRecord(ctx context.Context, id string, rec *verifier.Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	if err := k.db.Put(ctx, storage.NSIdentities, id, data); err != nil {
		return fmt.Errorf("failed to store master secret record: %w", err)
	}
	return nil
}

func checkCredentials(identity string, secret []byte) (string, error) {
	id := NormalizeIdentity(identity)
	if id == "" {
		return "", ErrIdentityRequired
	}
	if len(secret) == 0 {
		return "", ErrSecretRequired
	}
	return id, nil
}
