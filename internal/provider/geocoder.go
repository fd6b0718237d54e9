package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
)

// Geocoder resolves a free-text location to a coordinate through a
// Nominatim-style search endpoint.
type Geocoder struct {
	client    *httpclient.Client
	breaker   *circuitbreaker.Breaker
	baseURL   string
	userAgent string
}

func NewGeocoder(client *httpclient.Client, breaker *circuitbreaker.Breaker, baseURL, userAgent string) *Geocoder {
	return &Geocoder{
		client:    client,
		breaker:   breaker,
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

// geocodeResult tolerates schema drift: lat/lon arrive as strings, anything
// else is optional and ignored.
type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *Geocoder) Geocode(ctx context.Context, query string) (*Coordinate, error) {
	if err := g.breaker.Guard(ctx, NameGeocoder); err != nil {
		report(ctx, g.breaker, NameGeocoder, err)
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	resp, err := g.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/search?%s", g.baseURL, params.Encode()),
		Header: http.Header{"User-Agent": []string{g.userAgent}},
	})
	if err != nil {
		report(ctx, g.breaker, NameGeocoder, err)
		return nil, err
	}

	coord, err := parseGeocodeResponse(resp.Body)
	report(ctx, g.breaker, NameGeocoder, err)
	if err != nil {
		return nil, err
	}
	return coord, nil
}

func parseGeocodeResponse(body []byte) (*Coordinate, error) {
	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty result set", ErrSchema)
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, fmt.Errorf("%w: lat/lon", ErrSchema)
	}

	return &Coordinate{Lat: lat, Lon: lon, Label: results[0].DisplayName}, nil
}
