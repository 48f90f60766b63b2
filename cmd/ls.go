package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/vault"
)

const shortID = 8

// Ls lists the entries of the identity's vault
func Ls(ctx context.Context, cfg *config.Config, identity string, show bool) {
	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.Unlock(ctx)

	entries, err := s.KeySafe.ListEntries(ctx)
	if err != nil {
		HandleError(err)
	}
	defer ClearEntries(entries)

	printEntries(entries, show)
}

func printEntries(entries []vault.Entry, show bool) {
	if len(entries) == 0 {
		fmt.Println("No entries")
		return
	}

	for _, e := range entries {
		printEntry(e, show)
	}
}

func printEntry(e vault.Entry, show bool) {
	fmt.Printf("  %s  %s\n", short(e.ID), e.Title)
	if e.Username != "" {
		fmt.Printf("      username: %s\n", e.Username)
	}
	if show {
		fmt.Printf("      secret:   %s\n", e.Secret)
	} else {
		fmt.Printf("      secret:   ********\n")
	}
	if e.Website != "" {
		fmt.Printf("      website:  %s\n", e.Website)
	}
	if e.Notes != "" {
		fmt.Printf("      notes:    %s\n", e.Notes)
	}
}

func short(id string) string {
	if len(id) > shortID {
		return id[:shortID]
	}
	return id
}
