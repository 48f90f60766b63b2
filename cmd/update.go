package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/illarion/keysafe/internal/config"
	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/vault"
)

// UpdateFields holds the fields given to update; nil means unchanged
type UpdateFields struct {
	Title    *string
	Username *string
	Website  *string
	Notes    *string
	Secret   bool // prompt for a new entry secret
}

// Patch returns the field changes; the secret is filled in after prompting
func (f UpdateFields) Patch() vault.Patch {
	return vault.Patch{
		Title:    f.Title,
		Username: f.Username,
		Website:  f.Website,
		Notes:    f.Notes,
	}
}

// Update changes fields of one entry. With dryRun the changes are only shown.
func Update(ctx context.Context, cfg *config.Config, identity, prefix string, f UpdateFields, dryRun bool) {
	if f.Patch().Empty() && !f.Secret {
		HandleError(fmt.Errorf("nothing to update; pass --title, --username, --website, --notes or --secret"))
	}

	s := Open(ctx, cfg, identity)
	defer s.Close()
	s.Unlock(ctx)

	entries, err := s.KeySafe.ListEntries(ctx)
	if err != nil {
		HandleError(err)
	}
	defer ClearEntries(entries)

	e, err := ResolveEntry(entries, prefix)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("%s (%s)\n", e.Title, short(e.ID))
	printFieldDiff("title", e.Title, f.Title)
	printFieldDiff("username", e.Username, f.Username)
	printFieldDiff("website", e.Website, f.Website)
	printFieldDiff("notes", e.Notes, f.Notes)
	if f.Secret {
		fmt.Println("  secret: changed")
	}

	if dryRun {
		fmt.Println("Dry run, nothing written")
		return
	}

	p := f.Patch()
	if f.Secret {
		secret, err := core.ReadPasswordConfirm("new entry secret: ")
		if err != nil {
			HandleError(err)
		}
		defer crypto.ClearBytes(secret)
		p.Secret = secret
	}

	if err := s.KeySafe.UpdateEntry(ctx, e.ID, p); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Updated %s\n", short(e.ID))
}

func printFieldDiff(name, old string, updated *string) {
	if updated == nil || *updated == old {
		return
	}
	fmt.Printf("  %s: %s\n", name, diffText(old, *updated))
}

// diffText renders a character diff as [-removed-]{+added+}
func diffText(a, b string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		}
	}
	return sb.String()
}
