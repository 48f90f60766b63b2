package session

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMonitorInterval is how often Monitor polls.
const DefaultMonitorInterval = 30 * time.Second

// AddressSource reports the identity currently presented by the external
// signer, e.g. the connected wallet address.
type AddressSource interface {
	Address(ctx context.Context) (string, error)
}

// Monitor checks the session every interval until ctx is done. Expired
// sessions are locked, and when src is non-nil a session whose identity no
// longer matches src's address (or whose address lookup fails) is locked too.
func (m *Manager) Monitor(ctx context.Context, src AddressSource, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx, src)
		}
	}
}

// Poll runs a single Monitor check.
func (m *Manager) Poll(ctx context.Context, src AddressSource) {
	if m.CheckExpiry() {
		return
	}
	if src == nil {
		return
	}

	identity, ok := m.Identity()
	if !ok {
		return
	}

	addr, err := src.Address(ctx)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("signer unavailable")
		m.IdentityLost(identity)
		return
	}
	if !strings.EqualFold(strings.TrimSpace(addr), identity) {
		log.Warn().Str("identity", identity).Msg("signer address changed")
		m.IdentityLost(identity)
	}
}
