// Package geocode resolves free-text addresses to normalized locations via
// the Google Geocoding API.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"googlemaps.github.io/maps"
)

// requestTimeout bounds each geocoding call.
const requestTimeout = 10 * time.Second

// Error is returned when an address cannot be resolved. Status carries the
// upstream response status for diagnostics.
type Error struct {
	Status string
}

func (e *Error) Error() string {
	return fmt.Sprintf("address could not be geocoded (status=%s)", e.Status)
}

// Result is a normalized location for a free-text address.
type Result struct {
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	PlaceID          string
}

// Client wraps the Google Maps geocoding client. Constructed once at startup
// and shared across requests; it holds no per-request state.
type Client struct {
	maps   *maps.Client
	region string
}

// NewClient creates a geocoding client. region optionally biases results
// towards a ccTLD region code. Extra options are used by tests to point the
// client at a mock server.
func NewClient(apiKey, region string, opts ...maps.ClientOption) (*Client, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Client{maps: c, region: region}, nil
}

// statusFromError extracts the geocoding status from a maps client error.
// The client has no typed errors; non-OK statuses surface as
// "maps: STATUS - message". Anything else is a transport failure.
func statusFromError(err error) (string, bool) {
	rest, ok := strings.CutPrefix(err.Error(), "maps: ")
	if !ok {
		return "", false
	}
	status, _, _ := strings.Cut(rest, " - ")
	return status, true
}

// Geocode resolves address to a normalized location. A non-OK upstream
// status or zero results yields an *Error carrying the status; transport
// failures reaching the API return a plain error instead, so callers can
// tell an unresolvable address from a maps outage.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  c.region,
	})
	if err != nil {
		if status, ok := statusFromError(err); ok {
			return nil, &Error{Status: status}
		}
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	if len(results) == 0 {
		return nil, &Error{Status: "ZERO_RESULTS"}
	}

	first := results[0]

	log.Debug().
		Str("formatted_address", first.FormattedAddress).
		Str("place_id", first.PlaceID).
		Msg("Geocoded address")

	return &Result{
		FormattedAddress: first.FormattedAddress,
		Latitude:         first.Geometry.Location.Lat,
		Longitude:        first.Geometry.Location.Lng,
		PlaceID:          first.PlaceID,
	}, nil
}
