package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourcast/tourcast/internal/places"
	"github.com/tourcast/tourcast/internal/types"
)

// TextSearcher resolves a free-text hint to a concrete place.
type TextSearcher interface {
	SearchText(ctx context.Context, query, language string) (*places.Place, error)
}

// Resolver produces the canonical tour location from a request. A place
// hint, when present, takes precedence over the raw coordinates.
type Resolver interface {
	Resolve(ctx context.Context, req types.TourRequest) (types.Location, error)
}

type ResolverImpl struct {
	logger   *slog.Logger
	searcher TextSearcher
}

var _ Resolver = (*ResolverImpl)(nil)

func NewResolver(searcher TextSearcher, logger *slog.Logger) *ResolverImpl {
	return &ResolverImpl{logger: logger, searcher: searcher}
}

// Resolve validates the coordinates and, when a place hint is given, pins
// the location to the hint's best match. A hint that matches nothing is a
// permanent failure: retrying the same hint cannot produce a different
// answer.
func (r *ResolverImpl) Resolve(ctx context.Context, req types.TourRequest) (types.Location, error) {
	ctx, span := otel.Tracer("GeolocationResolver").Start(ctx, "Resolve", trace.WithAttributes(
		attribute.Float64("request.lat", req.Lat),
		attribute.Float64("request.lon", req.Lon),
		attribute.String("request.place_hint", req.PlaceHint),
	))
	defer span.End()

	l := r.logger.With(slog.String("component", "GeolocationResolver"))

	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		err := &types.InvalidLocationError{
			Reason: fmt.Sprintf("coordinates out of range: lat=%f lon=%f", req.Lat, req.Lon),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "coordinates out of range")
		return types.Location{}, err
	}

	if req.PlaceHint == "" {
		span.SetStatus(codes.Ok, "coordinates accepted")
		return types.Location{Lat: req.Lat, Lon: req.Lon}, nil
	}

	match, err := r.searcher.SearchText(ctx, req.PlaceHint, req.Language)
	if err != nil {
		l.ErrorContext(ctx, "place hint lookup failed",
			slog.String("hint", req.PlaceHint), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "place hint lookup failed")
		return types.Location{}, err
	}
	if match == nil {
		err := &types.InvalidLocationError{Reason: fmt.Sprintf("place hint %q matched nothing", req.PlaceHint)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "place hint unmatched")
		return types.Location{}, err
	}

	l.DebugContext(ctx, "place hint resolved",
		slog.String("hint", req.PlaceHint), slog.String("place", match.Name))
	span.SetStatus(codes.Ok, "place hint resolved")
	return types.Location{Lat: match.Lat, Lon: match.Lon, PlaceName: match.Name}, nil
}
