package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/keysafe/internal/config"
)

// Remove deletes entries by id or unique id prefix
func Remove(ctx context.Context, cfg *config.Config, identity string, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one entry id\n")
		fmt.Fprintf(os.Stderr, "Usage: keysafe rm <id> [id...]\n")
		os.Exit(1)
	}

	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.Unlock(ctx)

	entries, err := s.KeySafe.ListEntries(ctx)
	if err != nil {
		HandleError(err)
	}
	ClearEntries(entries)

	for _, prefix := range ids {
		e, err := ResolveEntry(entries, prefix)
		if err != nil {
			HandleError(err)
		}
		if err := s.KeySafe.DeleteEntry(ctx, e.ID); err != nil {
			HandleError(err)
		}
		fmt.Printf("✓ Removed %s (%s)\n", e.Title, short(e.ID))
	}

	// Compact database to reclaim space
	if err := s.KeySafe.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}
}
