package preview

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourcast/tourcast/internal/types"
)

const defaultPreviewSegments = 2

// Project truncates a tour to its guest-facing preview: the first few
// segments keep their audio references, the rest is reduced to a count.
func Project(tour *types.Tour, previewSegments int) *types.TourPreview {
	if previewSegments <= 0 {
		previewSegments = defaultPreviewSegments
	}
	n := previewSegments
	if n > len(tour.Segments) {
		n = len(tour.Segments)
	}
	segments := make([]types.Segment, n)
	copy(segments, tour.Segments[:n])
	return &types.TourPreview{
		TourID:            tour.ID,
		Fingerprint:       tour.Fingerprint,
		Preview:           true,
		Segments:          segments,
		RemainingSegments: len(tour.Segments) - n,
	}
}

// TourFinder resolves a fingerprint to its finished tour.
type TourFinder interface {
	Tour(ctx context.Context, fingerprint string) (*types.Tour, error)
}

// Service serves guest previews of finished tours.
type Service interface {
	GetPreview(ctx context.Context, fingerprint string) (*types.TourPreview, error)
}

type ServiceImpl struct {
	logger          *slog.Logger
	finder          TourFinder
	previewSegments int
}

var _ Service = (*ServiceImpl)(nil)

func NewPreviewService(finder TourFinder, previewSegments int, logger *slog.Logger) *ServiceImpl {
	if previewSegments <= 0 {
		previewSegments = defaultPreviewSegments
	}
	return &ServiceImpl{
		logger:          logger,
		finder:          finder,
		previewSegments: previewSegments,
	}
}

// GetPreview returns the preview projection for a fingerprint, or nil when
// no finished tour exists.
func (s *ServiceImpl) GetPreview(ctx context.Context, fingerprint string) (*types.TourPreview, error) {
	ctx, span := otel.Tracer("PreviewService").Start(ctx, "GetPreview", trace.WithAttributes(
		attribute.String("fingerprint", fingerprint),
	))
	defer span.End()

	tour, err := s.finder.Tour(ctx, fingerprint)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load tour for preview",
			slog.String("fingerprint", fingerprint), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "tour lookup failed")
		return nil, err
	}
	if tour == nil {
		span.SetStatus(codes.Ok, "no tour")
		return nil, nil
	}

	span.SetStatus(codes.Ok, "preview served")
	return Project(tour, s.previewSegments), nil
}
