package places

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourcast/tourcast/internal/types"
)

// Searcher is the provider surface the retriever needs.
type Searcher interface {
	SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, placeTypes []string, language string, maxResults int) ([]Place, error)
}

// Retriever turns a resolved location plus request preferences into an
// ordered, capped list of points of interest.
type Retriever interface {
	Retrieve(ctx context.Context, loc types.Location, req types.TourRequest) ([]types.PointOfInterest, error)
}

type RetrieverImpl struct {
	logger        *slog.Logger
	client        Searcher
	minutesPerPOI int
	maxPOIs       int
}

var _ Retriever = (*RetrieverImpl)(nil)

func NewRetriever(client Searcher, minutesPerPOI, maxPOIs int, logger *slog.Logger) *RetrieverImpl {
	if minutesPerPOI <= 0 {
		minutesPerPOI = 12
	}
	if maxPOIs <= 0 {
		maxPOIs = 10
	}
	return &RetrieverImpl{
		logger:        logger,
		client:        client,
		minutesPerPOI: minutesPerPOI,
		maxPOIs:       maxPOIs,
	}
}

// Retrieve queries the provider once per requested category, merges the
// results in relevance order, deduplicates by place ID, caps the count by
// the requested duration and orders the survivors into a geographic
// visiting path. Zero results across all categories is a permanent
// failure; there is nothing a retry could surface.
func (r *RetrieverImpl) Retrieve(ctx context.Context, loc types.Location, req types.TourRequest) ([]types.PointOfInterest, error) {
	ctx, span := otel.Tracer("PlacesRetriever").Start(ctx, "Retrieve", trace.WithAttributes(
		attribute.Float64("location.lat", loc.Lat),
		attribute.Float64("location.lon", loc.Lon),
		attribute.Int("request.radius_meters", req.RadiusMeters),
	))
	defer span.End()

	l := r.logger.With(slog.String("component", "PlacesRetriever"))

	limit := req.DurationMinutes / r.minutesPerPOI
	if limit < 1 {
		limit = 1
	}
	if limit > r.maxPOIs {
		limit = r.maxPOIs
	}

	perCategory := make([][]types.PointOfInterest, 0, len(req.Categories))
	for _, cat := range req.Categories {
		found, err := r.client.SearchNearby(ctx, loc.Lat, loc.Lon, req.RadiusMeters,
			types.PlaceTypesFor(cat), req.Language, r.maxPOIs)
		if err != nil {
			l.ErrorContext(ctx, "nearby search failed",
				slog.String("category", string(cat)), slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "nearby search failed")
			return nil, err
		}
		pois := make([]types.PointOfInterest, 0, len(found))
		for _, p := range found {
			pois = append(pois, types.PointOfInterest{
				ID:        p.ID,
				Name:      p.Name,
				Lat:       p.Lat,
				Lon:       p.Lon,
				Category:  cat,
				Address:   p.Address,
				Summary:   p.Summary,
				PhotoRefs: p.PhotoRefs,
			})
		}
		perCategory = append(perCategory, pois)
	}

	merged := interleave(perCategory)
	if len(merged) == 0 {
		err := &types.PermanentExternalError{Provider: "places", Reason: "no points of interest found"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "no points of interest")
		return nil, err
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}

	ordered := orderByPath(loc, merged)
	l.InfoContext(ctx, "points of interest retrieved",
		slog.Int("count", len(ordered)), slog.Int("limit", limit))
	span.SetStatus(codes.Ok, "points of interest retrieved")
	return ordered, nil
}

// interleave merges per-category result lists round-robin, preserving each
// list's relevance order and keeping the first occurrence of a duplicate ID.
func interleave(lists [][]types.PointOfInterest) []types.PointOfInterest {
	var merged []types.PointOfInterest
	seen := make(map[string]struct{})
	for i := 0; ; i++ {
		progressed := false
		for _, list := range lists {
			if i >= len(list) {
				continue
			}
			progressed = true
			poi := list[i]
			if _, ok := seen[poi.ID]; ok {
				continue
			}
			seen[poi.ID] = struct{}{}
			merged = append(merged, poi)
		}
		if !progressed {
			return merged
		}
	}
}

// orderByPath assigns visiting positions with a nearest-neighbour walk
// starting from the tour's origin, so consecutive stops are close together.
func orderByPath(origin types.Location, pois []types.PointOfInterest) []types.PointOfInterest {
	remaining := make([]types.PointOfInterest, len(pois))
	copy(remaining, pois)

	ordered := make([]types.PointOfInterest, 0, len(remaining))
	curLat, curLon := origin.Lat, origin.Lon
	for len(remaining) > 0 {
		best := 0
		bestDist := squaredDistance(curLat, curLon, remaining[0].Lat, remaining[0].Lon)
		for i := 1; i < len(remaining); i++ {
			if d := squaredDistance(curLat, curLon, remaining[i].Lat, remaining[i].Lon); d < bestDist {
				best, bestDist = i, d
			}
		}
		next := remaining[best]
		next.Position = len(ordered)
		ordered = append(ordered, next)
		curLat, curLon = next.Lat, next.Lon
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

func squaredDistance(lat1, lon1, lat2, lon2 float64) float64 {
	// Longitude degrees shrink with latitude; good enough at city scale.
	dLat := lat2 - lat1
	dLon := (lon2 - lon1) * math.Cos(lat1*math.Pi/180)
	return dLat*dLat + dLon*dLon
}
