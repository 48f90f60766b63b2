package verifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illarion/keysafe/internal/crypto"
)

// RecordVersion is the current MasterSecretRecord format.
const RecordVersion = 1

var ErrUnsupportedRecord = errors.New("unsupported master secret record")

// KDFParams pins the derivation parameters a record was created with.
type KDFParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
}

// Record is the persisted proof of a master secret: a salt and an
// encrypted random token. Neither the secret nor a hash of it is stored.
type Record struct {
	Version      int       `json:"version"`
	KDF          KDFParams `json:"kdf"`
	Salt         []byte    `json:"salt"`
	Verification []byte    `json:"verification"`
	Bound        bool      `json:"bound"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Marshal encodes the record as JSON; byte fields are base64.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

// ParseRecord decodes a record produced by Marshal.
func ParseRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

// check validates the fields that select how the record is opened.
func (r *Record) check() error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrUnsupportedRecord)
	}
	if r.Version != RecordVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedRecord, r.Version)
	}
	if r.KDF.Name != crypto.KDFName {
		return fmt.Errorf("%w: kdf %q", ErrUnsupportedRecord, r.KDF.Name)
	}
	if len(r.Salt) != crypto.SaltSize {
		return fmt.Errorf("%w: salt length %d", ErrUnsupportedRecord, len(r.Salt))
	}
	return nil
}
