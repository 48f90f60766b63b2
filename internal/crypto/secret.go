package crypto

import (
	"github.com/awnumar/memguard"
)

// SecretKey is a key held in locked, guarded memory.
// The key bytes are wiped when Destroy is called; Destroy is safe to call more than once.
type SecretKey struct {
	buf *memguard.LockedBuffer
}

// NewSecretKey moves key into guarded memory. The source slice is wiped.
func NewSecretKey(key []byte) (*SecretKey, error) {
	if len(key) != KeySize {
		memguard.WipeBytes(key)
		return nil, ErrInvalidKey
	}
	buf := memguard.NewBufferFromBytes(key)
	buf.Freeze()
	return &SecretKey{buf: buf}, nil
}

// Bytes returns the key. The slice is only valid until Destroy.
func (s *SecretKey) Bytes() []byte {
	if !s.Alive() {
		return nil
	}
	return s.buf.Bytes()
}

// Copy returns a heap copy of the key; the caller must ClearBytes it.
func (s *SecretKey) Copy() []byte {
	b := s.Bytes()
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Alive reports whether the key has not been destroyed.
func (s *SecretKey) Alive() bool {
	return s != nil && s.buf != nil && s.buf.IsAlive()
}

// Destroy wipes and releases the key.
func (s *SecretKey) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	s.buf.Destroy()
}
