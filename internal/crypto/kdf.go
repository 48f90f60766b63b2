package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KDFName      = "pbkdf2-sha256"
	SaltSize     = 16     // Salt size in bytes
	DefaultIters = 210000 // Default PBKDF2 iterations (OWASP minimum)
	MinIters     = 100000 // Records below this are refused
)

var (
	ErrWeakKDF     = errors.New("kdf iteration count below minimum")
	ErrInvalidSalt = errors.New("invalid salt")
)

// KDF handles key derivation from master secrets
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF() (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: DefaultIters,
	}, nil
}

// DeriveKey derives a KeySize key from secret and the optional extra entropy.
// The same secret, extra, salt and iteration count always yield the same key.
func (k *KDF) DeriveKey(secret, extra []byte) ([]byte, error) {
	if k.Iterations < MinIters {
		return nil, fmt.Errorf("%w: %d", ErrWeakKDF, k.Iterations)
	}
	if len(k.Salt) == 0 {
		return nil, ErrInvalidSalt
	}

	material := keyMaterial(secret, extra)
	defer ClearBytes(material)

	return pbkdf2.Key(material, k.Salt, k.Iterations, KeySize, sha256.New), nil
}

// keyMaterial length-prefixes secret so that secret/extra boundaries are fixed.
func keyMaterial(secret, extra []byte) []byte {
	m := make([]byte, 4, 4+len(secret)+len(extra))
	binary.BigEndian.PutUint32(m, uint32(len(secret)))
	m = append(m, secret...)
	return append(m, extra...)
}

// ExpandKey derives a KeySize sub-key from root with HKDF-SHA256.
// Distinct info strings give independent keys.
func ExpandKey(root []byte, info string) ([]byte, error) {
	if len(root) != KeySize {
		return nil, ErrInvalidKey
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, root, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to expand key: %w", err)
	}
	return out, nil
}
