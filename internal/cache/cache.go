package cache

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tourcast/tourcast/internal/types"
)

// Manager maps fingerprints to completed tours with a TTL. A hit
// short-circuits the whole pipeline. Entries near expiry can be refreshed
// ahead of time by the pre-generation scheduler.
type Manager struct {
	logger *slog.Logger
	tours  *gocache.Cache
	ttl    time.Duration
}

func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		logger: logger,
		tours:  gocache.New(ttl, ttl/4),
		ttl:    ttl,
	}
}

// Lookup returns the cached tour for a fingerprint, if any.
func (m *Manager) Lookup(fingerprint string) (*types.Tour, bool) {
	v, ok := m.tours.Get(fingerprint)
	if !ok {
		return nil, false
	}
	tour, ok := v.(*types.Tour)
	return tour, ok
}

// Store caches a tour under its fingerprint. A non-positive ttl uses the
// manager default.
func (m *Manager) Store(fingerprint string, tour *types.Tour, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.tours.Set(fingerprint, tour, ttl)
	m.logger.Debug("tour cached",
		slog.String("fingerprint", fingerprint),
		slog.Duration("ttl", ttl))
}

// ExpiringSoon lists cached fingerprints whose entry expires within the
// given window. Used by the scheduler to refresh popular entries early.
func (m *Manager) ExpiringSoon(window time.Duration) []string {
	var out []string
	deadline := time.Now().Add(window)
	for fp, item := range m.tours.Items() {
		if item.Expiration > 0 && time.Unix(0, item.Expiration).Before(deadline) {
			out = append(out, fp)
		}
	}
	return out
}
