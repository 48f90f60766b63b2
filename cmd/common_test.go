package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/keysafe/internal/core"
	"github.com/illarion/keysafe/internal/keyring"
	"github.com/illarion/keysafe/internal/vault"
)

func TestResolveEntry(t *testing.T) {
	entries := []vault.Entry{
		{ID: "3f2a9c10-0000-4000-8000-000000000001", Title: "GitHub"},
		{ID: "3f2b1d22-0000-4000-8000-000000000002", Title: "GitLab"},
		{ID: "a0c4e5f6-0000-4000-8000-000000000003", Title: "Mail"},
	}

	e, err := ResolveEntry(entries, "a0c4")
	if err != nil {
		t.Fatalf("ResolveEntry failed: %v", err)
	}
	if e.Title != "Mail" {
		t.Errorf("expected Mail, got %s", e.Title)
	}

	e, err = ResolveEntry(entries, entries[1].ID)
	if err != nil || e.Title != "GitLab" {
		t.Errorf("full id: got %q, %v", e.Title, err)
	}

	if _, err := ResolveEntry(entries, "3f2"); err == nil {
		t.Error("expected error for ambiguous prefix")
	}

	if _, err := ResolveEntry(entries, "ffff"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := ResolveEntry(entries, ""); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty prefix, got %v", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 bytes"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.size); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestForgetStaleSecret(t *testing.T) {
	gokeyring.MockInit()
	if err := keyring.SaveSecret("vault-1", "0xabc", "old"); err != nil {
		t.Fatalf("SaveSecret failed: %v", err)
	}

	var out bytes.Buffer
	forgetStaleSecret(&out, "vault-1", "0xabc")
	if keyring.HasSecret("vault-1", "0xabc") {
		t.Error("stale secret should be removed")
	}
	if strings.Contains(out.String(), "warning") {
		t.Errorf("unexpected warning: %q", out.String())
	}

	gokeyring.MockInitWithError(errors.New("keyring locked"))
	out.Reset()
	forgetStaleSecret(&out, "vault-1", "0xabc")
	if !strings.Contains(out.String(), "warning: failed to remove keyring secret: keyring locked") {
		t.Errorf("expected a warning, got %q", out.String())
	}
}
