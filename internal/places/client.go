package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tourcast/tourcast/internal/types"
)

const fieldMask = "places.id,places.displayName,places.location,places.formattedAddress,places.types,places.editorialSummary,places.photos.name"

// Place is one result from the places provider, prior to category tagging.
type Place struct {
	ID         string
	Name       string
	Lat        float64
	Lon        float64
	Address    string
	Summary    string
	PlaceTypes []string
	PhotoRefs  []string
}

// Client talks to the Places API (v1 JSON surface). All methods classify
// provider failures as transient or permanent so callers never inspect
// HTTP status codes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	MaxResultCount      int      `json:"maxResultCount"`
	LanguageCode        string   `json:"languageCode,omitempty"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

type searchTextRequest struct {
	TextQuery      string `json:"textQuery"`
	LanguageCode   string `json:"languageCode,omitempty"`
	MaxResultCount int    `json:"maxResultCount"`
}

type placePayload struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	Location         latLng   `json:"location"`
	FormattedAddress string   `json:"formattedAddress"`
	Types            []string `json:"types"`
	EditorialSummary struct {
		Text string `json:"text"`
	} `json:"editorialSummary"`
	Photos []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

type searchResponse struct {
	Places []placePayload `json:"places"`
}

// SearchNearby returns places of the given types around a point, in the
// provider's relevance order.
func (c *Client) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, placeTypes []string, language string, maxResults int) ([]Place, error) {
	body := searchNearbyRequest{
		IncludedTypes:  placeTypes,
		MaxResultCount: maxResults,
		LanguageCode:   language,
	}
	body.LocationRestriction.Circle.Center = latLng{Latitude: lat, Longitude: lon}
	body.LocationRestriction.Circle.Radius = float64(radiusMeters)

	var resp searchResponse
	if err := c.post(ctx, "/places:searchNearby", body, &resp); err != nil {
		return nil, err
	}
	return toPlaces(resp.Places), nil
}

// SearchText resolves a free-text place hint to its best match, or nil when
// the provider finds nothing.
func (c *Client) SearchText(ctx context.Context, query, language string) (*Place, error) {
	body := searchTextRequest{TextQuery: query, LanguageCode: language, MaxResultCount: 1}

	var resp searchResponse
	if err := c.post(ctx, "/places:searchText", body, &resp); err != nil {
		return nil, err
	}
	places := toPlaces(resp.Places)
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal places request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build places request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &types.TransientExternalError{Provider: "places", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "places API error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &types.TransientExternalError{
				Provider: "places",
				Err:      fmt.Errorf("status %d", resp.StatusCode),
			}
		}
		return &types.PermanentExternalError{
			Provider: "places",
			Reason:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.TransientExternalError{
			Provider: "places",
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func toPlaces(payloads []placePayload) []Place {
	out := make([]Place, 0, len(payloads))
	for _, p := range payloads {
		place := Place{
			ID:         p.ID,
			Name:       p.DisplayName.Text,
			Lat:        p.Location.Latitude,
			Lon:        p.Location.Longitude,
			Address:    p.FormattedAddress,
			Summary:    p.EditorialSummary.Text,
			PlaceTypes: p.Types,
		}
		for _, ph := range p.Photos {
			place.PhotoRefs = append(place.PhotoRefs, ph.Name)
		}
		out = append(out, place)
	}
	return out
}
