package places

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tourcast/tourcast/internal/types"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, placeTypes []string, language string, maxResults int) ([]Place, error) {
	args := m.Called(ctx, lat, lon, radiusMeters, placeTypes, language, maxResults)
	if v := args.Get(0); v != nil {
		return v.([]Place), args.Error(1)
	}
	return nil, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func retrieveRequest(durationMinutes int, cats ...types.Category) types.TourRequest {
	return types.TourRequest{
		Lat:             48.8584,
		Lon:             2.2945,
		RadiusMeters:    1500,
		DurationMinutes: durationMinutes,
		Categories:      cats,
		Language:        "en",
	}
}

func TestRetriever_Retrieve(t *testing.T) {
	ctx := context.Background()
	loc := types.Location{Lat: 48.8584, Lon: 2.2945}

	t.Run("caps by duration and orders geographically", func(t *testing.T) {
		searcher := new(MockSearcher)
		searcher.On("SearchNearby", mock.Anything, loc.Lat, loc.Lon, 1500, mock.Anything, "en", mock.Anything).
			Return([]Place{
				{ID: "far", Name: "Far", Lat: 48.90, Lon: 2.35},
				{ID: "near", Name: "Near", Lat: 48.8585, Lon: 2.2946},
				{ID: "mid", Name: "Mid", Lat: 48.87, Lon: 2.31},
			}, nil)

		r := NewRetriever(searcher, 12, 10, discardLogger())
		// 36 minutes at 12 min/POI admits 3 stops.
		pois, err := r.Retrieve(ctx, loc, retrieveRequest(36, types.CategoryHistory))
		require.NoError(t, err)
		require.Len(t, pois, 3)

		assert.Equal(t, "near", pois[0].ID)
		assert.Equal(t, "mid", pois[1].ID)
		assert.Equal(t, "far", pois[2].ID)
		for i, p := range pois {
			assert.Equal(t, i, p.Position)
		}
		searcher.AssertExpectations(t)
	})

	t.Run("short duration keeps a single stop", func(t *testing.T) {
		searcher := new(MockSearcher)
		searcher.On("SearchNearby", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]Place{
				{ID: "a", Lat: 48.859, Lon: 2.295},
				{ID: "b", Lat: 48.860, Lon: 2.296},
			}, nil)

		r := NewRetriever(searcher, 12, 10, discardLogger())
		pois, err := r.Retrieve(ctx, loc, retrieveRequest(10, types.CategoryArt))
		require.NoError(t, err)
		assert.Len(t, pois, 1)
	})

	t.Run("deduplicates across categories", func(t *testing.T) {
		searcher := new(MockSearcher)
		shared := Place{ID: "louvre", Name: "Louvre", Lat: 48.8606, Lon: 2.3376}
		searcher.On("SearchNearby", mock.Anything, mock.Anything, mock.Anything, mock.Anything, types.PlaceTypesFor(types.CategoryHistory), mock.Anything, mock.Anything).
			Return([]Place{shared, {ID: "pantheon", Lat: 48.8462, Lon: 2.3464}}, nil)
		searcher.On("SearchNearby", mock.Anything, mock.Anything, mock.Anything, mock.Anything, types.PlaceTypesFor(types.CategoryArt), mock.Anything, mock.Anything).
			Return([]Place{shared, {ID: "orsay", Lat: 48.8600, Lon: 2.3266}}, nil)

		r := NewRetriever(searcher, 12, 10, discardLogger())
		pois, err := r.Retrieve(ctx, loc, retrieveRequest(120, types.CategoryHistory, types.CategoryArt))
		require.NoError(t, err)

		ids := make(map[string]int)
		for _, p := range pois {
			ids[p.ID]++
		}
		assert.Equal(t, 1, ids["louvre"])
		assert.Len(t, pois, 3)
	})

	t.Run("zero results is permanent", func(t *testing.T) {
		searcher := new(MockSearcher)
		searcher.On("SearchNearby", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]Place{}, nil)

		r := NewRetriever(searcher, 12, 10, discardLogger())
		_, err := r.Retrieve(ctx, loc, retrieveRequest(60, types.CategoryNature))
		require.Error(t, err)
		assert.True(t, types.IsPermanent(err))
		assert.False(t, types.IsTransient(err))
	})

	t.Run("provider failure propagates", func(t *testing.T) {
		searcher := new(MockSearcher)
		transient := &types.TransientExternalError{Provider: "places", Err: assert.AnError}
		searcher.On("SearchNearby", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, transient)

		r := NewRetriever(searcher, 12, 10, discardLogger())
		_, err := r.Retrieve(ctx, loc, retrieveRequest(60, types.CategoryHistory))
		require.Error(t, err)
		assert.True(t, types.IsTransient(err))
	})
}
