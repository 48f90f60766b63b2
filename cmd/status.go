package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/keyring"
	"github.com/illarion/keysafe/internal/signer"
)

// Status shows identities, storage and signer state. No secret is required.
func Status(ctx context.Context, cfg *config.Config) {
	s := Open(ctx, cfg, "")
	defer s.Close()

	status, err := s.KeySafe.Status(ctx)
	if err != nil {
		HandleError(err)
	}

	size, _ := fileSize(cfg.Storage.Path)
	fmt.Printf("Database: %s (%s, %s)\n", cfg.Storage.Path, cfg.Storage.Backend, formatSize(size))
	if !status.LastModified.IsZero() {
		fmt.Printf("Last modified: %s\n", status.LastModified.Format(time.RFC3339))
	}
	fmt.Printf("Encryption: %s, %s\n", status.Algorithm, status.KDF)

	addr, err := s.Signer.Address(ctx)
	switch {
	case errors.Is(err, signer.ErrNoKey):
		fmt.Printf("Signer %q: no key\n", s.Signer.Name())
	case err != nil:
		fmt.Printf("Signer %q: %s\n", s.Signer.Name(), err)
	default:
		fmt.Printf("Signer %q: %s (binding: %s)\n", s.Signer.Name(), addr, cfg.Signer.Binding)
	}

	fmt.Println("\nIdentities:")
	if len(status.Identities) == 0 {
		fmt.Println("  (none)")
		fmt.Println("\nRun 'keysafe init' to create one")
		return
	}
	for _, is := range status.Identities {
		marker := " "
		if is.Identity == s.Identity {
			marker = "*"
		}
		if is.Error != "" {
			fmt.Printf(" %s %s: error: %s\n", marker, is.Identity, is.Error)
			continue
		}
		fmt.Printf(" %s %s: %d entries", marker, is.Identity, is.Entries)
		if is.Bound {
			fmt.Print(", signer bound")
		}
		if keyring.HasSecret(s.VaultID, is.Identity) {
			fmt.Print(", secret in keyring")
		}
		fmt.Printf(" (created %s, %d iterations)\n", is.CreatedAt.Format(time.RFC3339), is.KDFIterations)
	}
}
