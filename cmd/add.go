package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/crypto"
)

// EntryFields are the plaintext fields given on the command line
type EntryFields struct {
	Title    string
	Username string
	Website  string
	Notes    string
}

// Add stores a new entry. The entry secret is always prompted for.
func Add(ctx context.Context, cfg *config.Config, identity string, f EntryFields) {
	if f.Title == "" {
		HandleError(fmt.Errorf("add requires --title"))
	}

	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.Unlock(ctx)

	secret, err := core.ReadPasswordConfirm("entry secret: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(secret)

	id, err := s.KeySafe.AddEntryWithNotes(ctx, f.Title, f.Username, secret, f.Website, f.Notes)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Added %s (%s)\n", f.Title, short(id))
}
