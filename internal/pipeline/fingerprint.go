package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tourcast/tourcast/internal/types"
)

// Fingerprinter derives the deterministic cache/dedup key for a request.
// Coordinates are snapped to a grid cell and the duration to a bucket, so
// logically equal requests collapse onto one fingerprint regardless of
// field ordering or insignificant coordinate noise.
type Fingerprinter struct {
	GridDegrees   float64
	BucketMinutes int
}

func NewFingerprinter(gridDegrees float64, bucketMinutes int) *Fingerprinter {
	if gridDegrees <= 0 {
		gridDegrees = 0.002
	}
	if bucketMinutes <= 0 {
		bucketMinutes = 15
	}
	return &Fingerprinter{GridDegrees: gridDegrees, BucketMinutes: bucketMinutes}
}

// Fingerprint returns the hex SHA-256 digest of the request's canonical form.
func (f *Fingerprinter) Fingerprint(req types.TourRequest) string {
	latCell := int64(math.Floor(req.Lat / f.GridDegrees))
	lonCell := int64(math.Floor(req.Lon / f.GridDegrees))
	bucket := req.DurationMinutes / f.BucketMinutes

	cats := make([]string, 0, len(req.Categories))
	seen := make(map[string]struct{}, len(req.Categories))
	for _, c := range req.Categories {
		name := strings.ToLower(string(c))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		cats = append(cats, name)
	}
	sort.Strings(cats)

	canonical := fmt.Sprintf("lat=%d|lon=%d|dur=%d|cats=%s|lang=%s",
		latCell, lonCell, bucket, strings.Join(cats, ","), strings.ToLower(req.Language))

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ValidateRequest rejects malformed requests before a run is created.
func ValidateRequest(req types.TourRequest) error {
	if req.Lat < -90 || req.Lat > 90 {
		return &types.ValidationError{Field: "lat", Reason: "out of range"}
	}
	if req.Lon < -180 || req.Lon > 180 {
		return &types.ValidationError{Field: "lon", Reason: "out of range"}
	}
	if req.DurationMinutes <= 0 {
		return &types.ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if req.RadiusMeters <= 0 {
		return &types.ValidationError{Field: "radius_meters", Reason: "must be positive"}
	}
	if len(req.Categories) == 0 {
		return &types.ValidationError{Field: "categories", Reason: "at least one required"}
	}
	if req.Language == "" {
		return &types.ValidationError{Field: "language", Reason: "required"}
	}
	return nil
}
