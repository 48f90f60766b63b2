package storage

import (
	"context"
	"errors"
	"time"
)

// Namespaces used by keysafe.
const (
	NSIdentities = "identities" // master secret records, keyed by identity
	NSVaults     = "vaults"     // entry collections, keyed by identity
)

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("storage is closed")
)

// Store is an opaque namespaced key-value byte store. Put overwrites
// atomically; values returned by Get are owned by the caller. Operations
// after Close return ErrClosed.
type Store interface {
	Get(ctx context.Context, ns, key string) ([]byte, error)
	Put(ctx context.Context, ns, key string, value []byte) error
	Delete(ctx context.Context, ns, key string) error
	Keys(ctx context.Context, ns string) ([]string, error)
	Close() error
}

// Modifier is implemented by stores that track their last write.
type Modifier interface {
	GetModified() (time.Time, error)
}

// Compacter is implemented by stores that can reclaim free space.
type Compacter interface {
	Compact() error
}
