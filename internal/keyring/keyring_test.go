package keyring

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSecretRoundTrip(t *testing.T) {
	keyring.MockInit()

	if HasSecret("vault-1", "0xabc") {
		t.Fatal("Secret should not be stored yet")
	}
	if err := SaveSecret("vault-1", "0xabc", "correct-horse"); err != nil {
		t.Fatalf("SaveSecret failed: %v", err)
	}
	if !HasSecret("vault-1", "0xabc") {
		t.Error("Secret should be stored")
	}
	if HasSecret("vault-2", "0xabc") {
		t.Error("Secrets should be scoped per vault")
	}

	got, err := GetSecret("vault-1", "0xabc")
	if err != nil || got != "correct-horse" {
		t.Errorf("GetSecret: got %q, %v", got, err)
	}

	if err := DeleteSecret("vault-1", "0xabc"); err != nil {
		t.Fatalf("DeleteSecret failed: %v", err)
	}
	if _, err := GetSecret("vault-1", "0xabc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSeedRoundTrip(t *testing.T) {
	keyring.MockInit()

	seed := bytes.Repeat([]byte{0x42}, 32)
	if err := SaveSeed("default", seed); err != nil {
		t.Fatalf("SaveSeed failed: %v", err)
	}
	got, err := GetSeed("default")
	if err != nil {
		t.Fatalf("GetSeed failed: %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Error("Seed mismatch")
	}

	if err := DeleteSeed("default"); err != nil {
		t.Fatalf("DeleteSeed failed: %v", err)
	}
	if err := DeleteSeed("default"); err != nil {
		t.Errorf("Deleting a missing seed should succeed: %v", err)
	}
	if _, err := GetSeed("default"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
