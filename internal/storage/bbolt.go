package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// FormatVersion is written to the config bucket on Initialize.
const FormatVersion = "1"

// Bucket names
var (
	ConfigBucket = []byte("config") // format version, timestamps, install id - unencrypted
)

// Config keys
var (
	ConfigVersion   = []byte("version")
	ConfigCreated   = []byte("created")
	ConfigModified  = []byte("modified")
	ConfigInstallID = []byte("install_id")
)

// Bolt provides BBolt-based storage for keysafe
type Bolt struct {
	db *bolt.DB
}

var (
	_ Store     = (*Bolt)(nil)
	_ Modifier  = (*Bolt)(nil)
	_ Compacter = (*Bolt)(nil)
)

// Open opens or creates a keysafe database
func Open(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close closes the database
func (s *Bolt) Close() error {
	return s.db.Close()
}

// Initialize creates the bucket structure for a new keysafe
func (s *Bolt) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, []byte(NSIdentities), []byte(NSVaults)} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Bolt) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// Get returns a copy of the value stored under ns/key
func (s *Bolt) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return ErrNotFound
		}
		v := bucket.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, closedErr(err)
}

// Put stores value under ns/key, replacing any previous value
func (s *Bolt) Put(ctx context.Context, ns, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ns, err)
		}
		if err := bucket.Put([]byte(key), value); err != nil {
			return err
		}
		return touch(tx)
	})
	return closedErr(err)
}

// Delete removes ns/key. Returns ErrNotFound when it does not exist.
func (s *Bolt) Delete(ctx context.Context, ns, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil || bucket.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		if err := bucket.Delete([]byte(key)); err != nil {
			return err
		}
		return touch(tx)
	})
	return closedErr(err)
}

// Keys returns the keys of ns in byte order
func (s *Bolt) Keys(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, closedErr(err)
}

// closedErr maps bbolt's not-open error to ErrClosed
func closedErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// touch records the modification time when the config bucket exists
func touch(tx *bolt.Tx) error {
	config := tx.Bucket(ConfigBucket)
	if config == nil {
		return nil
	}
	modified, _ := time.Now().MarshalBinary()
	return config.Put(ConfigModified, modified)
}

// GetModified retrieves the last modified timestamp
func (s *Bolt) GetModified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(ConfigModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// GetInstallID retrieves the install ID from config bucket
func (s *Bolt) GetInstallID() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(ConfigInstallID)
		if data == nil {
			return fmt.Errorf("install_id not found")
		}
		id = string(data)
		return nil
	})
	return id, err
}

// GetOrCreateInstallID retrieves existing install ID or generates a new one
func (s *Bolt) GetOrCreateInstallID() (string, error) {
	id, err := s.GetInstallID()
	if err == nil {
		return id, nil
	}

	id = uuid.NewString()
	err = s.db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return err
		}
		// another writer may have won the race
		if existing := config.Get(ConfigInstallID); existing != nil {
			id = string(existing)
			return nil
		}
		return config.Put(ConfigInstallID, []byte(id))
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting entries or identities to reclaim disk space.
func (s *Bolt) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	// Create new database
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	// Reopen database
	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
