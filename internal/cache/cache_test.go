package cache

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourcast/tourcast/internal/types"
)

func newTestManager(ttl time.Duration) *Manager {
	return NewManager(ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManager_LookupMissThenHit(t *testing.T) {
	m := newTestManager(time.Hour)

	_, ok := m.Lookup("fp-1")
	assert.False(t, ok)

	tour := &types.Tour{ID: uuid.New(), Fingerprint: "fp-1", OverallStatus: types.TourReady}
	m.Store("fp-1", tour, 0)

	got, ok := m.Lookup("fp-1")
	require.True(t, ok)
	assert.Equal(t, tour.ID, got.ID)
}

func TestManager_TTLExpiry(t *testing.T) {
	m := newTestManager(time.Hour)

	tour := &types.Tour{ID: uuid.New(), Fingerprint: "fp-2"}
	m.Store("fp-2", tour, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	_, ok := m.Lookup("fp-2")
	assert.False(t, ok)
}

func TestManager_ExpiringSoon(t *testing.T) {
	m := newTestManager(time.Hour)

	m.Store("soon", &types.Tour{Fingerprint: "soon"}, 100*time.Millisecond)
	m.Store("later", &types.Tour{Fingerprint: "later"}, time.Hour)

	expiring := m.ExpiringSoon(time.Second)
	assert.Contains(t, expiring, "soon")
	assert.NotContains(t, expiring, "later")
}
