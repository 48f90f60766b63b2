package core

import (
	"context"
	"errors"
	"time"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
	"github.com/illarion/keysafe/internal/storage"
)

// IdentityStatus describes one initialized identity.
type IdentityStatus struct {
	Identity      string
	Bound         bool // record requires signer entropy
	Entries       int
	KDFIterations int
	CreatedAt     time.Time
	Error         string // set when the record or vault could not be read
}

// StatusInfo contains keysafe status (no secret required)
type StatusInfo struct {
	Identities   []IdentityStatus
	LastModified time.Time
	Algorithm    string
	KDF          string
	State        session.State
	Session      *session.Info // nil when locked
}

// Status reports what is stored without decrypting anything.
func (k *KeySafe) Status(ctx context.Context) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status := &StatusInfo{
		Algorithm: "AES-256-GCM",
		KDF:       crypto.KDFName,
		State:     k.sessions.State(),
	}

	if m, ok := k.db.(storage.Modifier); ok {
		if modified, err := m.GetModified(); err == nil {
			status.LastModified = modified
		}
	}

	if info, ok := k.sessions.Info(); ok {
		status.Session = &info
	}

	ids, err := k.Identities(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		is := IdentityStatus{Identity: id}
		rec, err := k.loadRecord(ctx, id)
		if err != nil {
			is.Error = err.Error()
			status.Identities = append(status.Identities, is)
			continue
		}
		is.Bound = rec.Bound
		is.KDFIterations = rec.KDF.Iterations
		is.CreatedAt = rec.CreatedAt

		n, err := k.vault.Len(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			is.Error = err.Error()
		}
		is.Entries = n
		status.Identities = append(status.Identities, is)
	}

	return status, nil
}
