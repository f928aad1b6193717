package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/rider-core/internal/config"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/observability"
)

// MinQueryLength is the shortest trimmed query that reaches the provider.
const MinQueryLength = 3

var (
	// ErrNoResults means the provider answered but had no predictions.
	ErrNoResults = errors.New("places: no results")
	// ErrNotFound means a detail or geocode lookup matched nothing.
	ErrNotFound = errors.New("places: not found")
	// ErrFailure covers transport errors, bad statuses and undecodable bodies.
	ErrFailure = errors.New("places: lookup failed")
)

// Lookup is the contract the resolver depends on.
type Lookup interface {
	Search(ctx context.Context, query string) ([]models.Suggestion, error)
	Resolve(ctx context.Context, suggestionID string) (models.Location, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (models.Location, error)
}

// Client talks to the Google Places and Geocoding web services.
type Client struct {
	baseURL  string
	apiKey   string
	bias     models.Coord
	radiusM  int
	region   string
	language string
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(cfg config.PlacesConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		bias:     models.Coord{Lat: cfg.BiasLat, Lon: cfg.BiasLng},
		radiusM:  cfg.RadiusM,
		region:   cfg.Region,
		language: cfg.Language,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Predictions  []struct {
		PlaceID              string `json:"place_id"`
		Description          string `json:"description"`
		StructuredFormatting struct {
			MainText      string `json:"main_text"`
			SecondaryText string `json:"secondary_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type geocodeResult struct {
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location latLng `json:"location"`
	} `json:"geometry"`
}

type detailsResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Result       geocodeResult `json:"result"`
}

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []geocodeResult `json:"results"`
}

// Search returns suggestions biased toward the configured point. Queries
// shorter than MinQueryLength return an empty list without a remote call.
func (c *Client) Search(ctx context.Context, query string) ([]models.Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []models.Suggestion{}, nil
	}
	q := url.Values{}
	q.Set("input", query)
	q.Set("location", formatLatLng(c.bias.Lat, c.bias.Lon))
	q.Set("radius", strconv.Itoa(c.radiusM))
	if c.region != "" {
		q.Set("components", c.region)
	}

	var body autocompleteResponse
	if err := c.get(ctx, "autocomplete", "/place/autocomplete/json", q, &body); err != nil {
		observability.SearchesTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	if body.Status != "OK" || len(body.Predictions) == 0 {
		if body.Status != "OK" && body.Status != "ZERO_RESULTS" {
			c.logger.Warn("autocomplete returned non-OK status",
				zap.String("status", body.Status), zap.String("message", body.ErrorMessage))
		}
		observability.SearchesTotal.WithLabelValues("no_results").Inc()
		return nil, ErrNoResults
	}

	out := make([]models.Suggestion, 0, len(body.Predictions))
	for _, p := range body.Predictions {
		primary := p.StructuredFormatting.MainText
		if primary == "" {
			primary = p.Description
		}
		out = append(out, models.Suggestion{
			ID:            p.PlaceID,
			PrimaryText:   primary,
			SecondaryText: p.StructuredFormatting.SecondaryText,
		})
	}
	observability.SearchesTotal.WithLabelValues("ok").Inc()
	return out, nil
}

// Resolve fetches the coordinate and formatted address of a suggestion.
func (c *Client) Resolve(ctx context.Context, suggestionID string) (models.Location, error) {
	if strings.TrimSpace(suggestionID) == "" {
		return models.Location{}, fmt.Errorf("%w: empty suggestion id", ErrFailure)
	}
	q := url.Values{}
	q.Set("place_id", suggestionID)
	q.Set("fields", "geometry,formatted_address")

	var body detailsResponse
	if err := c.get(ctx, "details", "/place/details/json", q, &body); err != nil {
		return models.Location{}, err
	}
	if err := statusError(body.Status, body.ErrorMessage); err != nil {
		return models.Location{}, err
	}
	return models.Location{
		Latitude:  body.Result.Geometry.Location.Lat,
		Longitude: body.Result.Geometry.Location.Lng,
		Address:   body.Result.FormattedAddress,
	}, nil
}

// ReverseGeocode names the place at a coordinate. The name is the locality
// or sublocality component when present, else the first segment of the
// formatted address.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (models.Location, error) {
	q := url.Values{}
	q.Set("latlng", formatLatLng(lat, lng))

	var body geocodeResponse
	if err := c.get(ctx, "geocode", "/geocode/json", q, &body); err != nil {
		return models.Location{}, err
	}
	if err := statusError(body.Status, body.ErrorMessage); err != nil {
		return models.Location{}, err
	}
	if len(body.Results) == 0 {
		return models.Location{}, ErrNotFound
	}
	r := body.Results[0]
	return models.Location{
		Latitude:  lat,
		Longitude: lng,
		Address:   r.FormattedAddress,
		Name:      placeName(r),
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	if c.language != "" {
		q.Set("language", c.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrFailure, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.PlacesLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrFailure, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http status %d", ErrFailure, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrFailure, endpoint, err)
	}
	return nil
}

func statusError(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return ErrNotFound
	default:
		if message != "" {
			return fmt.Errorf("%w: status %s: %s", ErrFailure, status, message)
		}
		return fmt.Errorf("%w: status %s", ErrFailure, status)
	}
}

func placeName(r geocodeResult) string {
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			if t == "locality" || t == "sublocality" {
				return comp.LongName
			}
		}
	}
	name, _, _ := strings.Cut(r.FormattedAddress, ",")
	return strings.TrimSpace(name)
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}
