package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/internal/crypto"
)

const (
	DefaultDuration   = 12 * time.Hour   // absolute session ceiling
	DefaultInactivity = 30 * time.Minute // sliding inactivity window
)

var (
	ErrVaultLocked    = errors.New("vault is locked")
	ErrSessionExpired = errors.New("session expired")
)

// State is the lock state of a Manager.
type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Config sets the session windows. Zero values select the defaults.
type Config struct {
	Duration   time.Duration
	Inactivity time.Duration
}

// Info describes the live session without exposing its key.
type Info struct {
	Identity     string
	CreatedAt    time.Time
	ExpiresAt    time.Time // absolute ceiling
	IdleDeadline time.Time // sliding deadline, never after ExpiresAt
}

type session struct {
	key          *crypto.SecretKey
	identity     string
	createdAt    time.Time
	expiresAt    time.Time
	idleDeadline time.Time
}

// Manager owns at most one live session and the key it holds.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	current *session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a locked Manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Inactivity <= 0 || cfg.Inactivity > cfg.Duration {
		cfg.Inactivity = minDuration(DefaultInactivity, cfg.Duration)
	}
	m := &Manager{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a session for identity holding key, replacing and destroying
// any live session. The Manager takes ownership of key.
func (m *Manager) Open(identity string, key *crypto.SecretKey) Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.clear("replaced")
	}

	now := m.now()
	s := &session{
		key:       key,
		identity:  identity,
		createdAt: now,
		expiresAt: now.Add(m.cfg.Duration),
	}
	s.idleDeadline = minTime(now.Add(m.cfg.Inactivity), s.expiresAt)
	m.current = s

	log.Info().
		Str("identity", identity).
		Time("expires_at", s.expiresAt).
		Msg("vault unlocked")

	return s.info()
}

// Lock destroys the session key and returns to Locked. Safe when already locked.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear("lock")
}

// IsLocked reports whether there is no usable session. An expired session
// is locked as a side effect.
func (m *Manager) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireLocked() != nil
}

// State returns Locked or Unlocked after an expiry check.
func (m *Manager) State() State {
	if m.IsLocked() {
		return Locked
	}
	return Unlocked
}

// Info returns the live session description.
func (m *Manager) Info() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expireLocked() != nil {
		return Info{}, false
	}
	return m.current.info(), true
}

// Identity returns the identity of the live session.
func (m *Manager) Identity() (string, bool) {
	info, ok := m.Info()
	return info.Identity, ok
}

// SessionKey returns a copy of the session key, or nil and false when locked
// or expired. The caller must crypto.ClearBytes the copy.
func (m *Manager) SessionKey() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expireLocked() != nil {
		return nil, false
	}
	return m.current.key.Copy(), true
}

// WithSession runs fn with the live session's identity and key. It fails with
// ErrVaultLocked when there is no session and ErrSessionExpired when the
// session ran out, locking it. When fn succeeds the inactivity deadline
// slides forward, capped by the absolute ceiling.
//
// The key slice is only valid during fn. fn must not call back into m.
func (m *Manager) WithSession(fn func(identity string, key []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.expireLocked(); err != nil {
		return err
	}

	s := m.current
	if err := fn(s.identity, s.key.Bytes()); err != nil {
		return err
	}

	s.idleDeadline = minTime(m.now().Add(m.cfg.Inactivity), s.expiresAt)
	return nil
}

// CheckExpiry locks an expired session. It reports whether it did.
func (m *Manager) CheckExpiry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Is(m.expireLocked(), ErrSessionExpired)
}

// IdentityLost locks the session when it belongs to identity. An empty
// identity locks any session.
func (m *Manager) IdentityLost(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	if identity != "" && identity != m.current.identity {
		return
	}
	m.clear("identity lost")
}

// expireLocked returns nil when a live session exists. Must hold m.mu.
func (m *Manager) expireLocked() error {
	if m.current == nil {
		return ErrVaultLocked
	}
	if !m.now().Before(m.current.deadline()) {
		m.clear("expired")
		return ErrSessionExpired
	}
	return nil
}

// clear destroys the key and drops the session. Must hold m.mu.
func (m *Manager) clear(reason string) {
	if m.current == nil {
		return
	}
	identity := m.current.identity
	m.current.key.Destroy()
	m.current = nil

	log.Info().
		Str("identity", identity).
		Str("reason", reason).
		Msg("vault locked")
}

func (s *session) deadline() time.Time {
	return minTime(s.idleDeadline, s.expiresAt)
}

func (s *session) info() Info {
	return Info{
		Identity:     s.identity,
		CreatedAt:    s.createdAt,
		ExpiresAt:    s.expiresAt,
		IdleDeadline: s.idleDeadline,
	}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// Discard drops the live session after a failed re-unlock. The Manager stays
// Locked until the next successful Open.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear("re-unlock failed")
}
