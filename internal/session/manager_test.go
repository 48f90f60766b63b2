package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illarion/keysafe/internal/crypto"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newKey(t *testing.T) (*crypto.SecretKey, []byte) {
	t.Helper()
	raw, err := crypto.GenerateRandom(crypto.KeySize)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	want := append([]byte(nil), raw...)
	key, err := crypto.NewSecretKey(raw)
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	return key, want
}

func newTestManager(clock *fakeClock) *Manager {
	return NewManager(Config{Duration: 2 * time.Hour, Inactivity: 30 * time.Minute}, WithClock(clock.Now))
}

func noop(string, []byte) error { return nil }

func TestManagerStartsLocked(t *testing.T) {
	m := newTestManager(newFakeClock())

	if !m.IsLocked() {
		t.Error("New manager should be locked")
	}
	if m.State() != Locked {
		t.Errorf("State: got %s, want locked", m.State())
	}
	if key, ok := m.SessionKey(); ok || key != nil {
		t.Error("SessionKey should report no key while locked")
	}
	if err := m.WithSession(noop); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Expected ErrVaultLocked, got %v", err)
	}
}

func TestOpenAndLock(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, want := newKey(t)

	info := m.Open("0xabc", key)
	if info.Identity != "0xabc" {
		t.Errorf("Identity: got %s, want 0xabc", info.Identity)
	}
	if !info.ExpiresAt.Equal(clock.Now().Add(2 * time.Hour)) {
		t.Errorf("ExpiresAt: got %v", info.ExpiresAt)
	}
	if !info.IdleDeadline.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Errorf("IdleDeadline: got %v", info.IdleDeadline)
	}
	if m.IsLocked() {
		t.Fatal("Manager should be unlocked after Open")
	}

	got, ok := m.SessionKey()
	if !ok || !bytes.Equal(got, want) {
		t.Error("SessionKey should return the session key")
	}
	crypto.ClearBytes(got)

	var seen string
	if err := m.WithSession(func(identity string, k []byte) error {
		seen = identity
		if !bytes.Equal(k, want) {
			t.Error("WithSession passed the wrong key")
		}
		return nil
	}); err != nil {
		t.Fatalf("WithSession failed: %v", err)
	}
	if seen != "0xabc" {
		t.Errorf("WithSession identity: got %s", seen)
	}

	m.Lock()
	if !m.IsLocked() {
		t.Error("Manager should be locked after Lock")
	}
	if key.Alive() {
		t.Error("Lock should destroy the session key")
	}
	if err := m.WithSession(noop); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Expected ErrVaultLocked, got %v", err)
	}

	// Locking twice is harmless
	m.Lock()
}

func TestInactivityExpiry(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, _ := newKey(t)
	m.Open("0xabc", key)

	clock.Advance(30 * time.Minute)

	if err := m.WithSession(noop); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}
	if key.Alive() {
		t.Error("Expiry should destroy the session key")
	}
	if err := m.WithSession(noop); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Expected ErrVaultLocked after expiry, got %v", err)
	}
}

func TestSessionKeyAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, want := newKey(t)
	m.Open("0xabc", key)

	got, ok := m.SessionKey()
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("SessionKey before expiry: ok=%v", ok)
	}
	crypto.ClearBytes(got)

	clock.Advance(31 * time.Minute)

	got, ok = m.SessionKey()
	if ok || got != nil {
		t.Errorf("SessionKey after idle deadline: got %x, %v", got, ok)
	}
	if key.Alive() {
		t.Error("Expired session key should be destroyed")
	}
	if m.State() != Locked {
		t.Errorf("State: got %s, want locked", m.State())
	}
}

func TestActivitySlidesDeadline(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, _ := newKey(t)
	m.Open("0xabc", key)

	// Keep the session busy every 20 minutes for 100 minutes
	for i := 0; i < 5; i++ {
		clock.Advance(20 * time.Minute)
		if err := m.WithSession(noop); err != nil {
			t.Fatalf("WithSession at step %d failed: %v", i, err)
		}
	}

	info, ok := m.Info()
	if !ok {
		t.Fatal("Session should still be live")
	}
	if !info.IdleDeadline.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Errorf("IdleDeadline not slid: got %v", info.IdleDeadline)
	}
}

func TestFailedOperationDoesNotSlide(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, _ := newKey(t)
	m.Open("0xabc", key)
	before, _ := m.Info()

	clock.Advance(10 * time.Minute)
	boom := errors.New("boom")
	if err := m.WithSession(func(string, []byte) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected fn error, got %v", err)
	}

	after, _ := m.Info()
	if !after.IdleDeadline.Equal(before.IdleDeadline) {
		t.Error("A failed operation should not slide the deadline")
	}
}

func TestCeilingWinsOverActivity(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	key, _ := newKey(t)
	info := m.Open("0xabc", key)

	for clock.Now().Add(20 * time.Minute).Before(info.ExpiresAt) {
		clock.Advance(20 * time.Minute)
		if err := m.WithSession(noop); err != nil {
			t.Fatalf("WithSession failed: %v", err)
		}
		cur, _ := m.Info()
		if cur.IdleDeadline.After(info.ExpiresAt) {
			t.Fatalf("IdleDeadline %v passed the ceiling %v", cur.IdleDeadline, info.ExpiresAt)
		}
	}

	clock.Advance(info.ExpiresAt.Sub(clock.Now()))
	if err := m.WithSession(noop); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired at the ceiling, got %v", err)
	}
}

func TestReopenReplacesSession(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(clock)
	first, _ := newKey(t)
	second, want := newKey(t)

	m.Open("0xabc", first)
	m.Open("0xdef", second)

	if first.Alive() {
		t.Error("Replaced session key should be destroyed")
	}
	identity, ok := m.Identity()
	if !ok || identity != "0xdef" {
		t.Errorf("Identity: got %q, want 0xdef", identity)
	}
	got, _ := m.SessionKey()
	if !bytes.Equal(got, want) {
		t.Error("SessionKey should return the replacement key")
	}
	crypto.ClearBytes(got)
	m.Lock()
}

func TestIdentityLost(t *testing.T) {
	m := newTestManager(newFakeClock())
	key, _ := newKey(t)
	m.Open("0xabc", key)

	m.IdentityLost("0xother")
	if m.IsLocked() {
		t.Fatal("Losing an unrelated identity should not lock")
	}

	m.IdentityLost("0xabc")
	if !m.IsLocked() {
		t.Error("Losing the session identity should lock")
	}
	if key.Alive() {
		t.Error("Identity loss should destroy the session key")
	}
}

type staticAddress struct {
	addr string
	err  error
}

func (s staticAddress) Address(context.Context) (string, error) {
	return s.addr, s.err
}

func TestPoll(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()

	t.Run("matching address keeps session", func(t *testing.T) {
		m := newTestManager(clock)
		key, _ := newKey(t)
		m.Open("0xabc", key)
		m.Poll(ctx, staticAddress{addr: "0xABC"})
		if m.IsLocked() {
			t.Error("Matching address should keep the session")
		}
		m.Lock()
	})

	t.Run("changed address locks", func(t *testing.T) {
		m := newTestManager(clock)
		key, _ := newKey(t)
		m.Open("0xabc", key)
		m.Poll(ctx, staticAddress{addr: "0xdef"})
		if !m.IsLocked() {
			t.Error("Changed address should lock")
		}
	})

	t.Run("signer error locks", func(t *testing.T) {
		m := newTestManager(clock)
		key, _ := newKey(t)
		m.Open("0xabc", key)
		m.Poll(ctx, staticAddress{err: errors.New("disconnected")})
		if !m.IsLocked() {
			t.Error("Signer error should lock")
		}
	})

	t.Run("expiry without signer", func(t *testing.T) {
		local := newFakeClock()
		m := newTestManager(local)
		key, _ := newKey(t)
		m.Open("0xabc", key)
		local.Advance(time.Hour)
		m.Poll(ctx, nil)
		if !m.IsLocked() {
			t.Error("Poll should lock an expired session")
		}
	})
}

func TestMonitorStopsWithContext(t *testing.T) {
	m := newTestManager(newFakeClock())
	key, _ := newKey(t)
	m.Open("0xabc", key)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Monitor(ctx, staticAddress{addr: "0xdef"}, time.Millisecond)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !m.IsLocked() {
		select {
		case <-deadline:
			t.Fatal("Monitor did not lock on address change")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not stop after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(Config{})
	key, _ := newKey(t)
	m.Open("0xabc", key)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.WithSession(noop)
				_ = m.IsLocked()
			}
		}()
	}
	wg.Wait()
	m.Lock()
}

func TestDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.Duration != DefaultDuration || m.cfg.Inactivity != DefaultInactivity {
		t.Errorf("Unexpected defaults: %+v", m.cfg)
	}

	m = NewManager(Config{Duration: 10 * time.Minute})
	if m.cfg.Inactivity != 10*time.Minute {
		t.Errorf("Inactivity should be capped by duration, got %v", m.cfg.Inactivity)
	}
}
