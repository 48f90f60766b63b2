package keyring

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "keysafe"

// ErrNotFound is returned when nothing is stored under the requested name.
var ErrNotFound = keyring.ErrNotFound

func secretAccount(vaultID, identity string) string {
	return "secret:" + identity + "@" + vaultID
}

func seedAccount(name string) string {
	return "signer:" + name
}

// SaveSecret stores a master secret in the OS keyring
func SaveSecret(vaultID, identity, secret string) error {
	return keyring.Set(serviceName, secretAccount(vaultID, identity), secret)
}

// GetSecret retrieves a master secret from the OS keyring
func GetSecret(vaultID, identity string) (string, error) {
	return keyring.Get(serviceName, secretAccount(vaultID, identity))
}

// DeleteSecret removes a master secret from the OS keyring
func DeleteSecret(vaultID, identity string) error {
	return keyring.Delete(serviceName, secretAccount(vaultID, identity))
}

// HasSecret checks if a master secret is stored in the keyring
func HasSecret(vaultID, identity string) bool {
	_, err := keyring.Get(serviceName, secretAccount(vaultID, identity))
	return err == nil
}

// SaveSeed stores a signer seed, hex encoded
func SaveSeed(name string, seed []byte) error {
	return keyring.Set(serviceName, seedAccount(name), hex.EncodeToString(seed))
}

// GetSeed retrieves a signer seed
func GetSeed(name string) ([]byte, error) {
	encoded, err := keyring.Get(serviceName, seedAccount(name))
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("corrupt signer seed %q: %w", name, err)
	}
	return seed, nil
}

// DeleteSeed removes a signer seed. Deleting a missing seed is not an error.
func DeleteSeed(name string) error {
	err := keyring.Delete(serviceName, seedAccount(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
