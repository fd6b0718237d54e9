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

// POISearch finds grocery stores near a coordinate through an Overpass-style
// interpreter endpoint.
type POISearch struct {
	client  *httpclient.Client
	breaker *circuitbreaker.Breaker
	baseURL string
}

func NewPOISearch(client *httpclient.Client, breaker *circuitbreaker.Breaker, baseURL string) *POISearch {
	return &POISearch{client: client, breaker: breaker, baseURL: baseURL}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Nearby returns grocery POIs within radiusMeters of the coordinate. The
// interpreter wants a POST, but the query is a pure read, so the request is
// explicitly marked idempotent for the retry policy.
func (p *POISearch) Nearby(ctx context.Context, center Coordinate, radiusMeters int) ([]Place, error) {
	if err := p.breaker.Guard(ctx, NamePOISearch); err != nil {
		report(ctx, p.breaker, NamePOISearch, err)
		return nil, err
	}

	query := fmt.Sprintf(
		`[out:json][timeout:20];(node["shop"~"supermarket|grocery|convenience"](around:%d,%f,%f);way["shop"~"supermarket|grocery|convenience"](around:%d,%f,%f););out center;`,
		radiusMeters, center.Lat, center.Lon,
		radiusMeters, center.Lat, center.Lon,
	)

	form := url.Values{}
	form.Set("data", query)

	resp, err := p.client.Do(ctx, httpclient.Request{
		Method:          http.MethodPost,
		URL:             p.baseURL + "/api/interpreter",
		Header:          http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:            []byte(form.Encode()),
		ForceIdempotent: true,
	})
	if err != nil {
		report(ctx, p.breaker, NamePOISearch, err)
		return nil, err
	}

	places, err := parseOverpassResponse(resp.Body)
	report(ctx, p.breaker, NamePOISearch, err)
	if err != nil {
		return nil, err
	}
	return places, nil
}

// parseOverpassResponse maps elements best-effort: an element without an id
// or coordinates is skipped, not a hard failure.
func parseOverpassResponse(body []byte) ([]Place, error) {
	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	places := make([]Place, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		if el.ID == 0 {
			continue
		}

		lat, lon := el.Lat, el.Lon
		if lat == 0 && lon == 0 && el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		if lat == 0 && lon == 0 {
			continue
		}

		name := el.Tags["name"]
		if name == "" {
			name = "Unnamed store"
		}

		places = append(places, Place{
			ExternalID: el.Type + "/" + strconv.FormatInt(el.ID, 10),
			Name:       name,
			Lat:        lat,
			Lon:        lon,
			Tags:       el.Tags,
		})
	}

	return places, nil
}
