// Package verifier proves knowledge of a master secret without storing it.
//
// Bootstrap derives a root key from the secret, encrypts a random token under a
// verification sub-key and returns the salt and ciphertext as a Record. Verify
// re-derives the key from the record's salt and succeeds iff the token opens.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/crypto"
)

const (
	TokenSize   = 32
	verifyInfo  = "keysafe/verify/v1"
	sessionInfo = "keysafe/entries/v1/"
)

var (
	ErrVerificationFailed = errors.New("master secret verification failed")
	ErrBindingMismatch    = errors.New("extra entropy binding does not match record")
)

// Verifier creates and checks master secret records.
type Verifier struct {
	iterations int
}

// New returns a verifier that bootstraps records with the given PBKDF2
// iteration count. Zero selects crypto.DefaultIters.
func New(iterations int) *Verifier {
	if iterations == 0 {
		iterations = crypto.DefaultIters
	}
	return &Verifier{iterations: iterations}
}

// Bootstrap creates a record for secret. Whether extra is non-empty is
// recorded, and every later verification must match it.
func (v *Verifier) Bootstrap(secret, extra []byte) (*Record, error) {
	rec, root, err := v.BootstrapKey(secret, extra)
	if err != nil {
		return nil, err
	}
	root.Destroy()
	return rec, nil
}

// BootstrapKey is Bootstrap that also hands back the derived root key so the
// caller can open a session without a second derivation.
func (v *Verifier) BootstrapKey(secret, extra []byte) (*Record, *crypto.SecretKey, error) {
	if len(secret) == 0 {
		return nil, nil, errors.New("master secret is required")
	}

	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, nil, err
	}
	kdf.Iterations = v.iterations

	rootBytes, err := kdf.DeriveKey(secret, extra)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive key: %w", err)
	}
	root, err := crypto.NewSecretKey(rootBytes)
	if err != nil {
		return nil, nil, err
	}

	token, err := crypto.GenerateRandom(TokenSize)
	if err != nil {
		root.Destroy()
		return nil, nil, err
	}
	defer crypto.ClearBytes(token)

	verifyKey, err := crypto.ExpandKey(root.Bytes(), verifyInfo)
	if err != nil {
		root.Destroy()
		return nil, nil, err
	}
	enc := crypto.NewEncryptor(verifyKey)
	defer enc.Destroy()

	sealed, err := enc.Encrypt(token)
	if err != nil {
		root.Destroy()
		return nil, nil, fmt.Errorf("failed to encrypt verification token: %w", err)
	}

	rec := &Record{
		Version:      RecordVersion,
		KDF:          KDFParams{Name: crypto.KDFName, Iterations: kdf.Iterations},
		Salt:         kdf.Salt,
		Verification: sealed,
		Bound:        len(extra) > 0,
		CreatedAt:    time.Now().UTC(),
	}
	return rec, root, nil
}

// Verify reports whether secret and extra match rec. It never returns an
// error: wrong secret, corruption and version mismatch all read as false.
func (v *Verifier) Verify(secret, extra []byte, rec *Record) bool {
	root, err := v.Unseal(secret, extra, rec)
	if err != nil {
		return false
	}
	root.Destroy()
	return true
}

// Unseal verifies secret and extra against rec and returns the root key.
// All failures wrap ErrVerificationFailed.
func (v *Verifier) Unseal(secret, extra []byte, rec *Record) (*crypto.SecretKey, error) {
	root, err := unseal(secret, extra, rec)
	if err != nil {
		// the cause never carries key material
		log.Debug().Str("cause", err.Error()).Msg("master secret verification failed")
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	return root, nil
}

func unseal(secret, extra []byte, rec *Record) (*crypto.SecretKey, error) {
	if err := rec.check(); err != nil {
		return nil, err
	}
	if rec.Bound != (len(extra) > 0) {
		return nil, ErrBindingMismatch
	}

	kdf := &crypto.KDF{Salt: rec.Salt, Iterations: rec.KDF.Iterations}
	rootBytes, err := kdf.DeriveKey(secret, extra)
	if err != nil {
		return nil, err
	}
	root, err := crypto.NewSecretKey(rootBytes)
	if err != nil {
		return nil, err
	}

	verifyKey, err := crypto.ExpandKey(root.Bytes(), verifyInfo)
	if err != nil {
		root.Destroy()
		return nil, err
	}
	enc := crypto.NewEncryptor(verifyKey)
	defer enc.Destroy()

	token, err := enc.Decrypt(rec.Verification)
	if err != nil {
		root.Destroy()
		return nil, err
	}
	crypto.ClearBytes(token)

	return root, nil
}

// SessionKey expands the identity-bound key used for vault entries.
func SessionKey(root *crypto.SecretKey, identity string) (*crypto.SecretKey, error) {
	key, err := crypto.ExpandKey(root.Bytes(), sessionInfo+identity)
	if err != nil {
		return nil, err
	}
	return crypto.NewSecretKey(key)
}
