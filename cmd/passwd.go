package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/keyring"
)

// Passwd changes the master secret and re-encrypts every entry
func Passwd(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.RequireIdentity()

	extra, err := s.Extra(ctx)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(extra)

	// Get current secret with retry on stale keyring
	current, _, err := GetSecretWithRetry("Enter current master secret: ", s.VaultID, s.Identity, func(secret []byte) error {
		return s.KeySafe.VerifySecret(ctx, s.Identity, secret, extra)
	})
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(current)

	// New secret is always typed
	updated, err := core.ReadPasswordConfirm("new master secret: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(updated)

	if err := s.KeySafe.ChangeSecret(ctx, s.Identity, current, updated, extra); err != nil {
		HandleError(err)
	}

	if keyring.HasSecret(s.VaultID, s.Identity) {
		if err := keyring.SaveSecret(s.VaultID, s.Identity, string(updated)); err == nil {
			fmt.Println("Keyring updated with new master secret")
		} else {
			fmt.Fprintf(os.Stderr, "warning: failed to update keyring: %s\n", err)
		}
	}

	// Compact database after rewriting the vault
	if err := s.KeySafe.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("✓ Master secret changed")
}
