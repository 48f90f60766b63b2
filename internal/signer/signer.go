// Package signer models the external signing capability (a wallet) that
// supplies an identity and, optionally, the extra entropy bound into an
// identity's master secret record.
//
// The extra entropy is the signer's signature over Challenge. It must be
// reproducible, so only deterministic signature schemes are usable.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/keyring"
)

// Challenge is the fixed message signed to produce binding entropy.
const Challenge = "KEYSAFE_AUTH_V1"

// DefaultName is the keyring name of the default local signer.
const DefaultName = "default"

var ErrNoKey = errors.New("signer has no key")

// Signer is an external identity that can sign messages.
type Signer interface {
	Address(ctx context.Context) (string, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Extra returns s's signature over Challenge.
func Extra(ctx context.Context, s Signer) ([]byte, error) {
	sig, err := s.SignMessage(ctx, []byte(Challenge))
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}
	return sig, nil
}

// AddressOf derives a 0x-prefixed address from an ed25519 public key.
func AddressOf(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[:20])
}

// Local is an ed25519 signer whose seed lives in the OS keyring. The seed is
// read on every call, so removing it from the keyring disconnects the signer.
type Local struct {
	name string
}

var _ Signer = (*Local)(nil)

// NewLocal returns the local signer stored under name.
func NewLocal(name string) *Local {
	if name == "" {
		name = DefaultName
	}
	return &Local{name: name}
}

// Name returns the keyring name of the signer.
func (l *Local) Name() string {
	return l.name
}

// Create generates and stores a key unless one exists, and returns the address.
func (l *Local) Create() (string, error) {
	if _, err := keyring.GetSeed(l.name); err == nil {
		return l.Address(context.Background())
	}

	seed, err := crypto.GenerateRandom(ed25519.SeedSize)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(seed)

	if err := keyring.SaveSeed(l.name, seed); err != nil {
		return "", fmt.Errorf("failed to store signer key: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	defer crypto.ClearBytes(priv)
	addr := AddressOf(priv.Public().(ed25519.PublicKey))

	log.Info().Str("signer", l.name).Str("address", addr).Msg("signer key created")
	return addr, nil
}

// Reset deletes the stored key.
func (l *Local) Reset() error {
	if err := keyring.DeleteSeed(l.name); err != nil {
		return fmt.Errorf("failed to delete signer key: %w", err)
	}
	log.Info().Str("signer", l.name).Msg("signer key removed")
	return nil
}

// Address returns the signer's address, or ErrNoKey when no key is stored.
func (l *Local) Address(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	priv, err := l.key()
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(priv)
	return AddressOf(priv.Public().(ed25519.PublicKey)), nil
}

// SignMessage signs msg with the stored key.
func (l *Local) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	priv, err := l.key()
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(priv)
	return ed25519.Sign(priv, msg), nil
}

func (l *Local) key() (ed25519.PrivateKey, error) {
	seed, err := keyring.GetSeed(l.name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(seed)

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer %q: invalid seed length %d", l.name, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
