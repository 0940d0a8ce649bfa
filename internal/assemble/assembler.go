package assemble

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourcast/tourcast/internal/types"
)

// Assembler turns finished segments into a tour: ordering, duration
// fitting and partial-failure accounting.
type Assembler struct {
	logger       *slog.Logger
	tolerancePct int
}

func NewAssembler(tolerancePct int, logger *slog.Logger) *Assembler {
	if tolerancePct <= 0 {
		tolerancePct = 20
	}
	return &Assembler{logger: logger, tolerancePct: tolerancePct}
}

// Assemble builds the final tour from whatever segments survived. Failed
// segments are dropped and mark the tour degraded; a tour whose total
// spoken time overshoots the requested duration beyond tolerance loses its
// weakest stops until it fits. Every run that reaches assembly with at
// least one usable segment produces a READY tour.
func (a *Assembler) Assemble(ctx context.Context, fingerprint string, req types.TourRequest, pois []types.PointOfInterest, segments []types.Segment) (*types.Tour, error) {
	ctx, span := otel.Tracer("TourAssembler").Start(ctx, "Assemble", trace.WithAttributes(
		attribute.String("fingerprint", fingerprint),
		attribute.Int("segments", len(segments)),
	))
	defer span.End()

	l := a.logger.With(slog.String("component", "TourAssembler"), slog.String("fingerprint", fingerprint))

	var usable []types.Segment
	var dropped []types.DroppedPOI
	degraded := false
	for _, seg := range segments {
		if seg.Status == types.SegmentAudioDone {
			usable = append(usable, seg)
			continue
		}
		degraded = true
		reason := seg.FailureReason
		if reason == "" {
			reason = "segment generation failed"
		}
		dropped = append(dropped, types.DroppedPOI{POIID: seg.POIID, Reason: reason})
	}

	if len(usable) == 0 {
		span.RecordError(types.ErrNoUsableSegments)
		span.SetStatus(codes.Error, "no usable segments")
		return nil, types.ErrNoUsableSegments
	}

	sort.Slice(usable, func(i, j int) bool { return usable[i].Position < usable[j].Position })

	total := 0
	for _, seg := range usable {
		total += seg.EstimatedDurationSeconds
	}

	maxSeconds := req.DurationMinutes * 60 * (100 + a.tolerancePct) / 100
	poisByID := make(map[string]types.PointOfInterest, len(pois))
	for _, p := range pois {
		poisByID[p.ID] = p
	}

	for total > maxSeconds && len(usable) > 1 {
		victim := weakestSegment(usable, poisByID, req)
		seg := usable[victim]
		total -= seg.EstimatedDurationSeconds
		usable = append(usable[:victim], usable[victim+1:]...)
		dropped = append(dropped, types.DroppedPOI{POIID: seg.POIID, Reason: "exceeds requested duration"})
		l.DebugContext(ctx, "segment trimmed for duration",
			slog.String("poi_id", seg.POIID), slog.Int("total_seconds", total))
	}

	for i := range usable {
		usable[i].Position = i
	}

	tour := &types.Tour{
		ID:            uuid.New(),
		Fingerprint:   fingerprint,
		Segments:      usable,
		OverallStatus: types.TourReady,
		Degraded:      degraded,
		DroppedPOIs:   dropped,
		TotalSeconds:  total,
		CreatedAt:     time.Now().UTC(),
	}

	l.InfoContext(ctx, "tour assembled",
		slog.Int("segments", len(usable)),
		slog.Int("dropped", len(dropped)),
		slog.Int("total_seconds", total),
		slog.Bool("degraded", degraded))
	span.SetStatus(codes.Ok, "tour assembled")
	return tour, nil
}

// weakestSegment picks the trim victim: the stop whose category ranks
// lowest in the request's preference order, then the one farthest from the
// tour origin.
func weakestSegment(segments []types.Segment, pois map[string]types.PointOfInterest, req types.TourRequest) int {
	rank := func(c types.Category) int {
		for i, rc := range req.Categories {
			if rc == c {
				return i
			}
		}
		return len(req.Categories)
	}
	dist := func(p types.PointOfInterest) float64 {
		dLat := p.Lat - req.Lat
		dLon := p.Lon - req.Lon
		return dLat*dLat + dLon*dLon
	}

	worst := 0
	for i := 1; i < len(segments); i++ {
		pi, okI := pois[segments[i].POIID]
		pw, okW := pois[segments[worst].POIID]
		if !okI {
			continue
		}
		if !okW {
			worst = i
			continue
		}
		ri, rw := rank(pi.Category), rank(pw.Category)
		if ri > rw || (ri == rw && dist(pi) > dist(pw)) {
			worst = i
		}
	}
	return worst
}
