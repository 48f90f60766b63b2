package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/crypto"
)

// Init creates the master secret record for an identity. With signature
// binding and no explicit identity, the local signer key is created on demand.
func Init(ctx context.Context, cfg *config.Config, identity string) {
	s := Open(ctx, cfg, identity)
	defer s.Close()

	if s.Identity == "" && cfg.Bound() {
		addr, err := s.Signer.Create()
		if err != nil {
			HandleError(err)
		}
		fmt.Printf("✓ Created signer %q (%s)\n", s.Signer.Name(), addr)
		s.Identity = addr
	}
	s.RequireIdentity()

	extra, err := s.Extra(ctx)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(extra)

	// Read secret (env var or prompt with confirmation)
	secret, err := GetSecretForInit("master secret: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(secret)

	if err := s.KeySafe.Init(ctx, s.Identity, secret, extra); err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Initialized %s\n", s.Identity)
	if extra != nil {
		fmt.Printf("  Bound to signer %q\n", s.Signer.Name())
	}

	OfferToSaveSecret(s.VaultID, s.Identity, secret)
}
