package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/signer"
)

// SignerInit creates the local signer key
func SignerInit(ctx context.Context, cfg *config.Config) {
	l := signer.NewLocal(cfg.Signer.Name)
	if _, err := l.Address(ctx); err == nil {
		fmt.Printf("Signer %q already has a key\n", l.Name())
		SignerShow(ctx, cfg)
		return
	} else if !errors.Is(err, signer.ErrNoKey) {
		HandleError(err)
	}

	addr, err := l.Create()
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Created signer %q\n", l.Name())
	fmt.Printf("  Address: %s\n", addr)
}

// SignerShow prints the local signer address
func SignerShow(ctx context.Context, cfg *config.Config) {
	l := signer.NewLocal(cfg.Signer.Name)
	addr, err := l.Address(ctx)
	if errors.Is(err, signer.ErrNoKey) {
		fmt.Printf("Signer %q: no key\n", l.Name())
		fmt.Println("Run 'keysafe signer init' to create one")
		return
	}
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("Signer:  %s\n", l.Name())
	fmt.Printf("Address: %s\n", addr)
	fmt.Printf("Binding: %s\n", cfg.Signer.Binding)
}

// SignerReset deletes the local signer key. Identities bound to it can no
// longer be unlocked.
func SignerReset(ctx context.Context, cfg *config.Config, force bool) {
	l := signer.NewLocal(cfg.Signer.Name)
	addr, err := l.Address(ctx)
	if errors.Is(err, signer.ErrNoKey) {
		fmt.Printf("Signer %q: no key\n", l.Name())
		return
	}
	if err != nil {
		HandleError(err)
	}

	if !force {
		fmt.Printf("Identities bound to %s will be unusable.\n", addr)
		if !Confirm("Delete signer key? [y/N] ") {
			fmt.Println("Aborted")
			return
		}
	}
	if err := l.Reset(); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Removed signer %q\n", l.Name())
}
