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

// KeyringSave saves the master secret to the OS keyring
func KeyringSave(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.RequireIdentity()

	extra, err := s.Extra(ctx)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(extra)

	// Prompt for secret
	secret, err := core.ReadPassword("Enter master secret: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(secret)

	// Verify secret is correct
	if err := s.KeySafe.VerifySecret(ctx, s.Identity, secret, extra); err != nil {
		HandleError(err)
	}

	if err := keyring.SaveSecret(s.VaultID, s.Identity, string(secret)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Master secret saved to keyring")
}

// KeyringDelete removes the master secret from the OS keyring
func KeyringDelete(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.RequireIdentity()

	if err := keyring.DeleteSecret(s.VaultID, s.Identity); err != nil {
		fmt.Println("No master secret stored in keyring")
		return
	}

	fmt.Println("Master secret removed from keyring")
}

// KeyringStatus checks if a master secret is stored in the keyring
func KeyringStatus(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.RequireIdentity()

	if keyring.HasSecret(s.VaultID, s.Identity) {
		fmt.Println("Master secret: stored in keyring")
	} else {
		fmt.Println("Master secret: not stored")
	}
}
