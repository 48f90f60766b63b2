package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/keyring"
	"github.com/illarion/keysafe/internal/signer"
	"github.com/illarion/keysafe/internal/storage"
	"github.com/illarion/keysafe/internal/vault"
)

// stdin is shared by Confirm and the shell
var stdin = bufio.NewReader(os.Stdin)

// SecretSource tells where a master secret came from
type SecretSource int

const (
	SourceEnv SecretSource = iota
	SourceKeyring
	SourcePrompt
)

// Session is everything a command needs to talk to one vault
type Session struct {
	Config   *config.Config
	KeySafe  *core.KeySafe
	Signer   *signer.Local
	Identity string
	VaultID  string // scopes keyring entries to this database
}

// Close locks the vault and closes the database
func (s *Session) Close() {
	if err := s.KeySafe.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close database: %s\n", err)
	}
}

// Open loads the database configured in cfg and resolves the identity.
// identity overrides the configured one.
func Open(ctx context.Context, cfg *config.Config, identity string) *Session {
	if err := cfg.EnsureStorageDir(); err != nil {
		HandleError(err)
	}

	var (
		db      storage.Store
		vaultID string
	)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			HandleError(err)
		}
		db = s
		abs, err := filepath.Abs(cfg.Storage.Path)
		if err != nil {
			abs = cfg.Storage.Path
		}
		vaultID = "sqlite:" + abs
	default:
		b, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			HandleError(err)
		}
		if err := b.Initialize(); err != nil {
			b.Close()
			HandleError(err)
		}
		if vaultID, err = b.GetOrCreateInstallID(); err != nil {
			b.Close()
			HandleError(err)
		}
		db = b
	}

	ks := core.New(db, core.Options{
		Session:    cfg.Sessions(),
		Iterations: cfg.KDFIterations,
	})

	s := &Session{
		Config:  cfg,
		KeySafe: ks,
		Signer:  signer.NewLocal(cfg.Signer.Name),
		VaultID: vaultID,
	}
	s.Identity = s.resolveIdentity(ctx, identity)
	return s
}

// resolveIdentity picks the flag, then the config, then the local signer address
func (s *Session) resolveIdentity(ctx context.Context, identity string) string {
	if identity == "" {
		identity = s.Config.Identity
	}
	if identity == "" {
		addr, err := s.Signer.Address(ctx)
		if err != nil && !errors.Is(err, signer.ErrNoKey) {
			s.Close()
			HandleError(err)
		}
		identity = addr
	}
	return core.NormalizeIdentity(identity)
}

// RequireIdentity exits unless an identity is known
func (s *Session) RequireIdentity() {
	if s.Identity == "" {
		s.Close()
		fmt.Fprintf(os.Stderr, "Error: no identity\n")
		fmt.Fprintf(os.Stderr, "Run 'keysafe signer init' or pass --identity\n")
		memguard.SafeExit(1)
	}
}

// Extra returns the binding entropy for the session identity, or nil when
// binding is disabled.
func (s *Session) Extra(ctx context.Context) ([]byte, error) {
	if !s.Config.Bound() {
		return nil, nil
	}
	addr, err := s.Signer.Address(ctx)
	if errors.Is(err, signer.ErrNoKey) {
		return nil, fmt.Errorf("signature binding is enabled but signer %q has no key; run 'keysafe signer init'", s.Signer.Name())
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(addr, s.Identity) {
		return nil, fmt.Errorf("identity %s is not the address of signer %q (%s); set signer.binding to none to use other identities", s.Identity, s.Signer.Name(), addr)
	}
	return signer.Extra(ctx, s.Signer)
}

// Unlock opens a session for the identity, exiting on failure
func (s *Session) Unlock(ctx context.Context) {
	s.RequireIdentity()
	if err := s.TryUnlock(ctx); err != nil {
		s.Close()
		HandleError(err)
	}
}

// TryUnlock opens a session for the identity
func (s *Session) TryUnlock(ctx context.Context) error {
	ids, err := s.KeySafe.Identities(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, s.Identity) {
		return core.ErrNotInitialized
	}

	extra, err := s.Extra(ctx)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(extra)

	secret, source, err := GetSecretWithRetry("Enter master secret: ", s.VaultID, s.Identity, func(secret []byte) error {
		return s.KeySafe.Unlock(ctx, s.Identity, secret, extra)
	})
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(secret)

	if source == SourcePrompt {
		OfferToSaveSecret(s.VaultID, s.Identity, secret)
	}
	return nil
}

// GetSecret retrieves the master secret from the environment, the keyring,
// or a prompt, in that order.
// The caller is responsible for calling crypto.ClearBytes on the returned secret
func GetSecret(prompt, vaultID, identity string) ([]byte, SecretSource, error) {
	// Try environment variable first
	if secret := core.GetSecretFromEnv(); secret != nil {
		return secret, SourceEnv, nil
	}

	if vaultID != "" && identity != "" {
		if stored, err := keyring.GetSecret(vaultID, identity); err == nil && stored != "" {
			return []byte(stored), SourceKeyring, nil
		}
	}

	// Prompt user
	secret, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return secret, SourcePrompt, nil
}

// GetSecretWithRetry runs verify with the secret from GetSecret. A keyring
// secret that fails authentication is stale: it is removed and the user is
// prompted instead.
func GetSecretWithRetry(prompt, vaultID, identity string, verify func([]byte) error) ([]byte, SecretSource, error) {
	secret, source, err := GetSecret(prompt, vaultID, identity)
	if err != nil {
		return nil, source, err
	}

	err = verify(secret)
	if err == nil {
		return secret, source, nil
	}
	crypto.ClearBytes(secret)

	if source != SourceKeyring || !errors.Is(err, core.ErrAuthenticationFailed) {
		return nil, source, err
	}

	forgetStaleSecret(os.Stderr, vaultID, identity)

	secret, err = core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	if err := verify(secret); err != nil {
		crypto.ClearBytes(secret)
		return nil, SourcePrompt, err
	}
	return secret, SourcePrompt, nil
}

func forgetStaleSecret(w io.Writer, vaultID, identity string) {
	fmt.Fprintln(w, "Stored keyring secret is out of date, removing it")
	if err := keyring.DeleteSecret(vaultID, identity); err != nil {
		fmt.Fprintf(w, "warning: failed to remove keyring secret: %s\n", err)
	}
}

// GetSecretForInit retrieves a new master secret
// Checks environment variable first, then prompts with confirmation
func GetSecretForInit(prompt string) ([]byte, error) {
	if secret := core.GetSecretFromEnv(); secret != nil {
		return secret, nil
	}
	return core.ReadPasswordConfirm(prompt)
}

// OfferToSaveSecret asks whether to remember a typed secret in the OS keyring
func OfferToSaveSecret(vaultID, identity string, secret []byte) {
	if !term.IsTerminal(int(syscall.Stdin)) || keyring.HasSecret(vaultID, identity) {
		return
	}
	if !Confirm("Save master secret to OS keyring? [y/N] ") {
		return
	}
	if err := keyring.SaveSecret(vaultID, identity, string(secret)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Println("Master secret saved to keyring")
}

// Confirm asks a yes/no question on stdin
func Confirm(question string) bool {
	fmt.Fprint(os.Stderr, question)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// ResolveEntry finds the entry whose id starts with prefix
func ResolveEntry(entries []vault.Entry, prefix string) (vault.Entry, error) {
	if prefix == "" {
		return vault.Entry{}, fmt.Errorf("%w: empty id", core.ErrNotFound)
	}

	var match *vault.Entry
	for i := range entries {
		if entries[i].ID == prefix {
			return entries[i], nil
		}
		if strings.HasPrefix(entries[i].ID, prefix) {
			if match != nil {
				return vault.Entry{}, fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = &entries[i]
		}
	}
	if match == nil {
		return vault.Entry{}, fmt.Errorf("%w: %s", core.ErrNotFound, prefix)
	}
	return *match, nil
}

// ClearEntries wipes decrypted secrets
func ClearEntries(entries []vault.Entry) {
	for i := range entries {
		crypto.ClearBytes(entries[i].Secret)
	}
}

// HandleError prints err for the user and exits
func HandleError(err error) {
	PrintError(err)
	memguard.SafeExit(1)
}

// PrintError prints err for the user
func PrintError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: identity not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'keysafe init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: identity already initialized\n")
		fmt.Fprintf(os.Stderr, "Use 'keysafe status' to see current state\n")
	case errors.Is(err, core.ErrAuthenticationFailed):
		fmt.Fprintf(os.Stderr, "Error: wrong master secret or signature\n")
	case errors.Is(err, core.ErrSessionExpired):
		fmt.Fprintf(os.Stderr, "Error: session expired, unlock again\n")
	case errors.Is(err, core.ErrVaultLocked):
		fmt.Fprintf(os.Stderr, "Error: vault is locked, unlock first\n")
	case errors.Is(err, core.ErrIntegrity):
		fmt.Fprintf(os.Stderr, "Error: vault data failed its integrity check: %s\n", err)
		fmt.Fprintf(os.Stderr, "The database may be corrupted or tampered with\n")
	case errors.Is(err, core.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'keysafe ls' to see entry ids\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}
